package build

import (
	"context"
	"fmt"

	"github.com/podforge/podforge/lib/buildctx"
	"github.com/podforge/podforge/lib/cluster"
	"github.com/podforge/podforge/lib/ignore"
	"github.com/podforge/podforge/lib/logger"
)

// JobStrategy embeds the filtered context into a ConfigMap and runs
// the build as a job. The context exists before the workload does, so
// there is no readiness wait, no transfer, and no trigger signal.
type JobStrategy struct {
	client      cluster.Interface
	provisioner *Provisioner
}

var _ DeliveryStrategy = (*JobStrategy)(nil)

// NewJobStrategy returns the embed-at-creation delivery strategy.
func NewJobStrategy(client cluster.Interface, provisioner *Provisioner) *JobStrategy {
	return &JobStrategy{client: client, provisioner: provisioner}
}

func (s *JobStrategy) Name() string { return "job" }

// InstallWorkload materializes the context mapping, installs it as a
// ConfigMap, and creates the job that mounts it.
func (s *JobStrategy) InstallWorkload(ctx context.Context, res ResourceSet, req Request) error {
	log := logger.FromContext(ctx)

	spec := ignore.Load(req.ContextRoot)
	mapping, err := buildctx.MaterializeMapping(ctx, req.ContextRoot, spec)
	if err != nil {
		return wrapError(KindTransport, fmt.Errorf("embed build context: %w", err))
	}
	if len(mapping.Skipped) > 0 {
		log.Warn("files skipped from embedded context", "count", len(mapping.Skipped), "files", mapping.Skipped)
	}

	cm, items, err := ContextConfigMap(res, mapping)
	if err != nil {
		return wrapError(KindTransport, err)
	}
	if err := s.provisioner.InstallConfigMap(ctx, res, cm); err != nil {
		return err
	}
	return s.provisioner.InstallJob(ctx, res, BuildJob(res, req.Ref, items))
}

// AwaitReady is a no-op: the context was embedded at creation time.
func (s *JobStrategy) AwaitReady(ctx context.Context, res ResourceSet) error { return nil }

// Deliver is a no-op for the same reason.
func (s *JobStrategy) Deliver(ctx context.Context, res ResourceSet, req Request) error { return nil }

func (s *JobStrategy) Phase(ctx context.Context, res ResourceSet) (cluster.WorkloadPhase, error) {
	return s.client.GetJobPhase(ctx, res.Namespace, res.WorkloadName)
}

func (s *JobStrategy) Logs(ctx context.Context, res ResourceSet, tailLines *int64) (string, error) {
	return s.client.JobLogs(ctx, res.Namespace, res.WorkloadName, tailLines)
}

// Teardown removes the context ConfigMap; failures are swallowed, the
// ConfigMap carries no credentials.
func (s *JobStrategy) Teardown(ctx context.Context, res ResourceSet) {
	if err := s.client.DeleteConfigMap(ctx, res.Namespace, ContextConfigMapName(res)); err != nil {
		logger.FromContext(ctx).Debug("context configmap cleanup", "error", err)
	}
}
