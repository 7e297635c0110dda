package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"

	"github.com/podforge/podforge/lib/cluster"
	"github.com/podforge/podforge/lib/logger"
)

// Orchestrator drives one build invocation through the lifecycle
// machine: provision, deliver, monitor, clean up. It is single-shot
// and fail-fast; no transition is ever retried.
type Orchestrator struct {
	client      cluster.Interface
	strategy    DeliveryStrategy
	provisioner *Provisioner
	monitor     *Monitor
}

// New wires an orchestrator for the named delivery strategy ("pod" or
// "job"). Surfaced build logs go to out.
func New(client cluster.Interface, strategyName string, clock clockwork.Clock, timeouts Timeouts, out io.Writer) (*Orchestrator, error) {
	provisioner := NewProvisioner(client, clock, timeouts)

	var strategy DeliveryStrategy
	switch strategyName {
	case "pod":
		strategy = NewPodStrategy(client, provisioner, clock, timeouts)
	case "job":
		strategy = NewJobStrategy(client, provisioner)
	default:
		return nil, fmt.Errorf("unknown delivery strategy %q", strategyName)
	}

	return &Orchestrator{
		client:      client,
		strategy:    strategy,
		provisioner: provisioner,
		monitor:     NewMonitor(strategy, clock, timeouts, out),
	}, nil
}

// NewWithStrategy wires an orchestrator around an explicit strategy.
func NewWithStrategy(client cluster.Interface, strategy DeliveryStrategy, provisioner *Provisioner, monitor *Monitor) *Orchestrator {
	return &Orchestrator{
		client:      client,
		strategy:    strategy,
		provisioner: provisioner,
		monitor:     monitor,
	}
}

// Run executes the build to a terminal outcome. The credential secret
// is removed on every exit path reached after it was installed.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Outcome, error) {
	log := logger.FromContext(ctx)

	if req.Username == "" || req.Token == "" {
		return OutcomeFailed, newError(KindConfig, "registry credentials are required")
	}
	if _, err := os.Stat(filepath.Join(req.ContextRoot, "Dockerfile")); err != nil {
		return OutcomeFailed, newError(KindValidation, "no Dockerfile in context root %s", req.ContextRoot)
	}

	res := ResourcesFor(req.Ref)
	log.Info("starting build",
		"image", req.Ref.String(),
		"strategy", o.strategy.Name(),
		"workload", res.WorkloadName)

	if err := o.provisioner.EnsureNamespace(ctx, res.Namespace); err != nil {
		return outcomeFor(err), err
	}

	secret, err := CredentialSecret(res, req.Ref, req.Username, req.Token)
	if err != nil {
		return OutcomeFailed, wrapError(KindResource, err)
	}
	if err := o.provisioner.InstallSecret(ctx, res, secret); err != nil {
		return outcomeFor(err), err
	}

	// From here on the secret exists; every return path below must
	// pass through the coordinator.
	cleanup := NewCoordinator(o.client, res)
	defer cleanup.Run(ctx)
	defer o.strategy.Teardown(ctx, res)

	if err := o.strategy.InstallWorkload(ctx, res, req); err != nil {
		return outcomeFor(err), err
	}
	if err := o.strategy.AwaitReady(ctx, res); err != nil {
		return outcomeFor(err), err
	}
	if err := o.strategy.Deliver(ctx, res, req); err != nil {
		return outcomeFor(err), err
	}

	return o.monitor.Watch(ctx, res, req.Token)
}

// outcomeFor maps a failure to the lifecycle state it terminates in.
func outcomeFor(err error) Outcome {
	switch KindOf(err) {
	case KindReadinessTimeout, KindDeletionTimeout, KindBuildTimeout:
		return OutcomeTimedOut
	default:
		return OutcomeFailed
	}
}
