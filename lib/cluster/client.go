// Package cluster is the capability boundary to the Kubernetes control
// plane. The orchestration layer only ever talks to the Interface
// below; the production implementation wraps a client-go clientset
// plus kubectl for byte transport, and the in-memory fake stands in
// for tests.
package cluster

import (
	"context"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
)

// WorkloadPhase is the coarse lifecycle state the build monitor cares
// about. Pods report it directly; jobs are mapped onto it.
type WorkloadPhase string

const (
	PhasePending   WorkloadPhase = "Pending"
	PhaseRunning   WorkloadPhase = "Running"
	PhaseSucceeded WorkloadPhase = "Succeeded"
	PhaseFailed    WorkloadPhase = "Failed"
	PhaseUnknown   WorkloadPhase = "Unknown"
)

// Interface is the narrow set of control-plane capabilities a build
// invocation needs. Implementations translate provider errors to
// ErrNotFound / ErrAlreadyExists so callers can apply idempotence
// policy without knowing the transport.
type Interface interface {
	CreateNamespace(ctx context.Context, name string) error

	CreateSecret(ctx context.Context, namespace string, secret *corev1.Secret) error
	DeleteSecret(ctx context.Context, namespace, name string) error

	CreateConfigMap(ctx context.Context, namespace string, cm *corev1.ConfigMap) error
	DeleteConfigMap(ctx context.Context, namespace, name string) error

	CreatePod(ctx context.Context, namespace string, pod *corev1.Pod) error
	GetPodPhase(ctx context.Context, namespace, name string) (WorkloadPhase, error)
	DeletePod(ctx context.Context, namespace, name string) error
	PodLogs(ctx context.Context, namespace, name string, tailLines *int64) (string, error)

	CreateJob(ctx context.Context, namespace string, job *batchv1.Job) error
	GetJobPhase(ctx context.Context, namespace, name string) (WorkloadPhase, error)
	DeleteJob(ctx context.Context, namespace, name string) error
	JobLogs(ctx context.Context, namespace, jobName string, tailLines *int64) (string, error)

	// CopyToPod streams a local directory into a path inside a running
	// pod. ExecInPod runs argv (no shell) inside it.
	CopyToPod(ctx context.Context, namespace, pod, localPath, remotePath string) error
	ExecInPod(ctx context.Context, namespace, pod string, argv []string) error
}
