package build

import (
	"context"

	"github.com/podforge/podforge/lib/cluster"
)

// DeliveryStrategy is how the filtered context reaches the workload.
// The lifecycle machine is shared; only workload creation, readiness,
// and delivery differ between the two implementations.
type DeliveryStrategy interface {
	Name() string

	// InstallWorkload creates the build workload (and, for the embed
	// strategy, its context resources).
	InstallWorkload(ctx context.Context, res ResourceSet, req Request) error

	// AwaitReady blocks until the workload can accept the context.
	// The embed strategy has nothing to wait for.
	AwaitReady(ctx context.Context, res ResourceSet) error

	// Deliver transfers the filtered context into the workload and
	// triggers the build. The embed strategy delivered at creation.
	Deliver(ctx context.Context, res ResourceSet, req Request) error

	// Phase reports the workload phase for the monitor loop.
	Phase(ctx context.Context, res ResourceSet) (cluster.WorkloadPhase, error)

	// Logs fetches build logs; nil tail means the full history.
	Logs(ctx context.Context, res ResourceSet, tailLines *int64) (string, error)

	// Teardown best-effort removes strategy-owned context resources.
	// The credential secret is the cleanup coordinator's job, not ours.
	Teardown(ctx context.Context, res ResourceSet)
}
