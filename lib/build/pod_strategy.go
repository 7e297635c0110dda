package build

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/podforge/podforge/lib/buildctx"
	"github.com/podforge/podforge/lib/cluster"
	"github.com/podforge/podforge/lib/ignore"
	"github.com/podforge/podforge/lib/logger"
)

// PodStrategy runs the build in a long-lived pod: the pod starts
// first and idles, the filtered context is streamed in with the
// remote-copy primitive, and a sentinel file triggers the build.
type PodStrategy struct {
	client      cluster.Interface
	provisioner *Provisioner
	clock       clockwork.Clock
	timeouts    Timeouts
}

var _ DeliveryStrategy = (*PodStrategy)(nil)

// NewPodStrategy returns the push-and-signal delivery strategy.
func NewPodStrategy(client cluster.Interface, provisioner *Provisioner, clock clockwork.Clock, timeouts Timeouts) *PodStrategy {
	return &PodStrategy{client: client, provisioner: provisioner, clock: clock, timeouts: timeouts}
}

func (s *PodStrategy) Name() string { return "pod" }

func (s *PodStrategy) InstallWorkload(ctx context.Context, res ResourceSet, req Request) error {
	return s.provisioner.InstallPod(ctx, res, BuildPod(res, req.Ref))
}

// AwaitReady polls the pod phase until it reports Running. A Failed
// phase aborts immediately; so does the readiness deadline.
func (s *PodStrategy) AwaitReady(ctx context.Context, res ResourceSet) error {
	log := logger.FromContext(ctx)
	log.Info("waiting for build pod to become ready", "pod", res.WorkloadName)

	deadline := s.clock.Now().Add(s.timeouts.ReadinessTimeout)
	for {
		phase, err := s.client.GetPodPhase(ctx, res.Namespace, res.WorkloadName)
		switch {
		case err != nil && !errors.Is(err, cluster.ErrNotFound):
			return wrapError(KindResource, fmt.Errorf("poll pod %s: %w", res.WorkloadName, err))
		case phase == cluster.PhaseRunning:
			log.Info("build pod is ready", "pod", res.WorkloadName)
			return nil
		case phase == cluster.PhaseFailed:
			return newError(KindBuildFailure, "pod %s failed before becoming ready", res.WorkloadName)
		}

		if !s.clock.Now().Before(deadline) {
			return newError(KindReadinessTimeout, "timed out waiting for pod %s to become ready", res.WorkloadName)
		}
		log.Debug("pod not ready yet", "pod", res.WorkloadName, "phase", phase)
		s.clock.Sleep(s.timeouts.ReadinessInterval)
	}
}

// Deliver pushes the filtered context into the pod's context mount and
// writes the sentinel file so the in-pod script starts the build. An
// empty ignore spec skips staging entirely and ships the root as-is.
func (s *PodStrategy) Deliver(ctx context.Context, res ResourceSet, req Request) error {
	log := logger.FromContext(ctx)

	spec := ignore.Load(req.ContextRoot)

	source := req.ContextRoot
	if !spec.Empty() {
		log.Info("filtering build context", "patterns", spec.Patterns())
		staged, _, err := buildctx.MaterializeDirectory(ctx, req.ContextRoot, spec)
		if err != nil {
			return wrapError(KindTransport, fmt.Errorf("stage build context: %w", err))
		}
		defer os.RemoveAll(staged)
		source = staged
	} else {
		log.Info("no ignore file, shipping context unfiltered")
	}

	if err := s.client.CopyToPod(ctx, res.Namespace, res.WorkloadName, source, ContextMountPath); err != nil {
		return wrapError(KindTransport, fmt.Errorf("copy context into pod: %w", err))
	}
	log.Info("build context uploaded", "pod", res.WorkloadName)

	sentinel := ContextMountPath + "/" + SentinelFile
	if err := s.client.ExecInPod(ctx, res.Namespace, res.WorkloadName, []string{"touch", sentinel}); err != nil {
		return wrapError(KindTransport, fmt.Errorf("write build sentinel: %w", err))
	}
	log.Info("build triggered", "pod", res.WorkloadName)
	return nil
}

func (s *PodStrategy) Phase(ctx context.Context, res ResourceSet) (cluster.WorkloadPhase, error) {
	return s.client.GetPodPhase(ctx, res.Namespace, res.WorkloadName)
}

func (s *PodStrategy) Logs(ctx context.Context, res ResourceSet, tailLines *int64) (string, error) {
	return s.client.PodLogs(ctx, res.Namespace, res.WorkloadName, tailLines)
}

// Teardown is a no-op: the pod strategy stages its context in a
// temporary directory that Deliver already removed.
func (s *PodStrategy) Teardown(ctx context.Context, res ResourceSet) {}
