package build

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"

	"github.com/podforge/podforge/lib/cluster"
	"github.com/podforge/podforge/lib/logger"
)

// logTailLines is how many recent log lines are surfaced per poll
// cycle while the build runs, so each cycle shows progress without
// reprinting the full history.
const logTailLines = int64(5)

// redactedToken replaces the credential token wherever it appears
// verbatim in surfaced log text.
const redactedToken = "[REDACTED]"

// Monitor polls a workload to a terminal outcome, streaming recent log
// lines while the build runs and the full (redacted) log on failure.
type Monitor struct {
	strategy DeliveryStrategy
	clock    clockwork.Clock
	timeouts Timeouts
	out      io.Writer
}

// NewMonitor returns a monitor writing surfaced logs to out.
func NewMonitor(strategy DeliveryStrategy, clock clockwork.Clock, timeouts Timeouts, out io.Writer) *Monitor {
	return &Monitor{strategy: strategy, clock: clock, timeouts: timeouts, out: out}
}

// Watch polls until the workload reports a terminal phase or the
// build timeout elapses. token is redacted from any surfaced logs.
func (m *Monitor) Watch(ctx context.Context, res ResourceSet, token string) (Outcome, error) {
	log := logger.FromContext(ctx)
	log.Info("monitoring build", "workload", res.WorkloadName, "timeout", m.timeouts.BuildTimeout)

	deadline := m.clock.Now().Add(m.timeouts.BuildTimeout)
	for {
		phase, err := m.strategy.Phase(ctx, res)
		if err != nil {
			return OutcomeFailed, wrapError(KindResource, fmt.Errorf("poll workload %s: %w", res.WorkloadName, err))
		}

		switch phase {
		case cluster.PhaseSucceeded:
			log.Info("build succeeded", "workload", res.WorkloadName)
			return OutcomeSucceeded, nil

		case cluster.PhaseFailed:
			m.surfaceFailureLogs(ctx, res, token)
			return OutcomeFailed, newError(KindBuildFailure, "build %s failed", res.WorkloadName)
		}

		m.printRecentLogs(ctx, res, token)

		if !m.clock.Now().Before(deadline) {
			return OutcomeTimedOut, newError(KindBuildTimeout, "build %s timed out after %s", res.WorkloadName, m.timeouts.BuildTimeout)
		}
		m.clock.Sleep(m.timeouts.MonitorInterval)
	}
}

// printRecentLogs shows the newest few log lines. The workload may
// not be producing logs yet; that is not an error.
func (m *Monitor) printRecentLogs(ctx context.Context, res ResourceSet, token string) {
	tail := logTailLines
	text, err := m.strategy.Logs(ctx, res, &tail)
	if err != nil || text == "" {
		return
	}
	lines := lo.Filter(strings.Split(strings.TrimRight(text, "\n"), "\n"), func(line string, _ int) bool {
		return strings.TrimSpace(line) != ""
	})
	for _, line := range lines {
		fmt.Fprintln(m.out, redact(line, token))
	}
}

// surfaceFailureLogs prints the full build log with the credential
// token redacted. Log retrieval itself is best effort.
func (m *Monitor) surfaceFailureLogs(ctx context.Context, res ResourceSet, token string) {
	text, err := m.strategy.Logs(ctx, res, nil)
	if err != nil {
		logger.FromContext(ctx).Warn("could not fetch build logs", "workload", res.WorkloadName, "error", err)
		return
	}
	fmt.Fprintln(m.out, "build logs:")
	fmt.Fprint(m.out, redact(text, token))
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(m.out)
	}
}

func redact(text, token string) string {
	if token == "" {
		return text
	}
	return strings.ReplaceAll(text, token, redactedToken)
}
