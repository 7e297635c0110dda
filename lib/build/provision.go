package build

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"

	"github.com/podforge/podforge/lib/cluster"
	"github.com/podforge/podforge/lib/logger"
)

// Provisioner creates the cluster resources a build needs. Every
// operation is idempotent: already-exists and not-found are expected
// conditions, anything else is fatal for the invocation.
type Provisioner struct {
	client   cluster.Interface
	clock    clockwork.Clock
	timeouts Timeouts
}

// NewProvisioner returns a provisioner over the given client.
func NewProvisioner(client cluster.Interface, clock clockwork.Clock, timeouts Timeouts) *Provisioner {
	return &Provisioner{client: client, clock: clock, timeouts: timeouts}
}

// EnsureNamespace creates the build namespace, treating an existing
// one as success. The namespace is shared across invocations and is
// never deleted here.
func (p *Provisioner) EnsureNamespace(ctx context.Context, name string) error {
	err := p.client.CreateNamespace(ctx, name)
	switch {
	case err == nil:
		logger.FromContext(ctx).Info("created namespace", "namespace", name)
		return nil
	case errors.Is(err, cluster.ErrAlreadyExists):
		logger.FromContext(ctx).Debug("using existing namespace", "namespace", name)
		return nil
	default:
		return wrapError(KindResource, fmt.Errorf("create namespace %s: %w", name, err))
	}
}

// InstallSecret replaces the registry credential secret: any
// pre-existing secret of the same name is deleted first, ignoring
// not-found.
func (p *Provisioner) InstallSecret(ctx context.Context, res ResourceSet, secret *corev1.Secret) error {
	if err := p.client.DeleteSecret(ctx, res.Namespace, res.SecretName); err != nil && !errors.Is(err, cluster.ErrNotFound) {
		return wrapError(KindResource, fmt.Errorf("delete stale secret %s: %w", res.SecretName, err))
	}
	if err := p.client.CreateSecret(ctx, res.Namespace, secret); err != nil {
		return wrapError(KindResource, fmt.Errorf("create secret %s: %w", res.SecretName, err))
	}
	logger.FromContext(ctx).Info("installed credential secret", "secret", res.SecretName)
	return nil
}

// InstallConfigMap replaces the embedded-context ConfigMap.
func (p *Provisioner) InstallConfigMap(ctx context.Context, res ResourceSet, cm *corev1.ConfigMap) error {
	if err := p.client.DeleteConfigMap(ctx, res.Namespace, cm.Name); err != nil && !errors.Is(err, cluster.ErrNotFound) {
		return wrapError(KindResource, fmt.Errorf("delete stale configmap %s: %w", cm.Name, err))
	}
	if err := p.client.CreateConfigMap(ctx, res.Namespace, cm); err != nil {
		return wrapError(KindResource, fmt.Errorf("create configmap %s: %w", cm.Name, err))
	}
	return nil
}

// InstallPod replaces the build pod. A leftover pod of the same name
// is deleted and the deletion is confirmed by polling before the new
// pod is created; recreating without confirmation risks a name
// collision the control plane rejects.
func (p *Provisioner) InstallPod(ctx context.Context, res ResourceSet, pod *corev1.Pod) error {
	err := p.removeAndConfirm(ctx, "pod", res.WorkloadName,
		func() error { return p.client.DeletePod(ctx, res.Namespace, res.WorkloadName) },
		func() error {
			_, err := p.client.GetPodPhase(ctx, res.Namespace, res.WorkloadName)
			return err
		})
	if err != nil {
		return err
	}
	if err := p.client.CreatePod(ctx, res.Namespace, pod); err != nil {
		return wrapError(KindResource, fmt.Errorf("create pod %s: %w", res.WorkloadName, err))
	}
	logger.FromContext(ctx).Info("created build pod", "pod", res.WorkloadName)
	return nil
}

// InstallJob replaces the build job with the same confirmed-deletion
// policy as pods.
func (p *Provisioner) InstallJob(ctx context.Context, res ResourceSet, job *batchv1.Job) error {
	err := p.removeAndConfirm(ctx, "job", res.WorkloadName,
		func() error { return p.client.DeleteJob(ctx, res.Namespace, res.WorkloadName) },
		func() error {
			_, err := p.client.GetJobPhase(ctx, res.Namespace, res.WorkloadName)
			return err
		})
	if err != nil {
		return err
	}
	if err := p.client.CreateJob(ctx, res.Namespace, job); err != nil {
		return wrapError(KindResource, fmt.Errorf("create job %s: %w", res.WorkloadName, err))
	}
	logger.FromContext(ctx).Info("created build job", "job", res.WorkloadName)
	return nil
}

// removeAndConfirm deletes a workload and polls until the control
// plane reports it gone. A workload that never existed completes
// immediately.
func (p *Provisioner) removeAndConfirm(ctx context.Context, kind, name string, del func() error, get func() error) error {
	if err := del(); err != nil {
		if errors.Is(err, cluster.ErrNotFound) {
			return nil
		}
		return wrapError(KindResource, fmt.Errorf("delete %s %s: %w", kind, name, err))
	}

	log := logger.FromContext(ctx)
	log.Info("waiting for deletion of existing workload", "kind", kind, "name", name)

	deadline := p.clock.Now().Add(p.timeouts.DeletionTimeout)
	for {
		if err := get(); errors.Is(err, cluster.ErrNotFound) {
			return nil
		}
		if !p.clock.Now().Before(deadline) {
			return newError(KindDeletionTimeout, "timed out waiting for %s %s to be deleted", kind, name)
		}
		p.clock.Sleep(p.timeouts.DeletionInterval)
	}
}
