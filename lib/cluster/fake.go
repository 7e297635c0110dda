package cluster

import (
	"context"
	"fmt"
	"strings"
	"sync"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
)

// Fake is an in-memory Interface for tests. Workload phases are
// scripted per resource: each status poll consumes the next phase in
// the sequence and the last one sticks.
type Fake struct {
	mu sync.Mutex

	Namespaces map[string]int // name -> create attempts
	Secrets    map[string]*corev1.Secret
	ConfigMaps map[string]*corev1.ConfigMap
	Pods       map[string]*corev1.Pod
	Jobs       map[string]*batchv1.Job

	PodPhaseScript map[string][]WorkloadPhase
	JobPhaseScript map[string][]WorkloadPhase
	LogText        map[string]string

	SecretDeletions    []string
	ConfigMapDeletions []string
	PodDeletions       []string
	JobDeletions       []string
	CopyCalls          []CopyCall
	ExecCalls          [][]string

	failures map[string]error
}

// CopyCall records one CopyToPod invocation.
type CopyCall struct {
	Namespace  string
	Pod        string
	LocalPath  string
	RemotePath string
}

var _ Interface = (*Fake)(nil)

// NewFake returns an empty fake cluster.
func NewFake() *Fake {
	return &Fake{
		Namespaces:     map[string]int{},
		Secrets:        map[string]*corev1.Secret{},
		ConfigMaps:     map[string]*corev1.ConfigMap{},
		Pods:           map[string]*corev1.Pod{},
		Jobs:           map[string]*batchv1.Job{},
		PodPhaseScript: map[string][]WorkloadPhase{},
		JobPhaseScript: map[string][]WorkloadPhase{},
		LogText:        map[string]string{},
		failures:       map[string]error{},
	}
}

// FailWith makes the named operation (e.g. "CreatePod") return err.
func (f *Fake) FailWith(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = err
}

// ScriptPodPhases sets the phase sequence returned by successive
// GetPodPhase calls for namespace/name.
func (f *Fake) ScriptPodPhases(namespace, name string, phases ...WorkloadPhase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PodPhaseScript[key(namespace, name)] = phases
}

// ScriptJobPhases sets the phase sequence for GetJobPhase.
func (f *Fake) ScriptJobPhases(namespace, name string, phases ...WorkloadPhase) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.JobPhaseScript[key(namespace, name)] = phases
}

// SetLogs sets the log text served for namespace/name.
func (f *Fake) SetLogs(namespace, name, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LogText[key(namespace, name)] = text
}

func key(namespace, name string) string { return namespace + "/" + name }

func (f *Fake) failure(op string) error {
	if err, ok := f.failures[op]; ok {
		return err
	}
	return nil
}

func (f *Fake) CreateNamespace(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreateNamespace"); err != nil {
		return err
	}
	f.Namespaces[name]++
	if f.Namespaces[name] > 1 {
		return fmt.Errorf("%w: namespace %s", ErrAlreadyExists, name)
	}
	return nil
}

func (f *Fake) CreateSecret(ctx context.Context, namespace string, secret *corev1.Secret) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreateSecret"); err != nil {
		return err
	}
	k := key(namespace, secret.Name)
	if _, ok := f.Secrets[k]; ok {
		return fmt.Errorf("%w: secret %s", ErrAlreadyExists, k)
	}
	f.Secrets[k] = secret
	return nil
}

func (f *Fake) DeleteSecret(ctx context.Context, namespace, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("DeleteSecret"); err != nil {
		return err
	}
	k := key(namespace, name)
	f.SecretDeletions = append(f.SecretDeletions, k)
	if _, ok := f.Secrets[k]; !ok {
		return fmt.Errorf("%w: secret %s", ErrNotFound, k)
	}
	delete(f.Secrets, k)
	return nil
}

func (f *Fake) CreateConfigMap(ctx context.Context, namespace string, cm *corev1.ConfigMap) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreateConfigMap"); err != nil {
		return err
	}
	k := key(namespace, cm.Name)
	if _, ok := f.ConfigMaps[k]; ok {
		return fmt.Errorf("%w: configmap %s", ErrAlreadyExists, k)
	}
	f.ConfigMaps[k] = cm
	return nil
}

func (f *Fake) DeleteConfigMap(ctx context.Context, namespace, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("DeleteConfigMap"); err != nil {
		return err
	}
	k := key(namespace, name)
	f.ConfigMapDeletions = append(f.ConfigMapDeletions, k)
	if _, ok := f.ConfigMaps[k]; !ok {
		return fmt.Errorf("%w: configmap %s", ErrNotFound, k)
	}
	delete(f.ConfigMaps, k)
	return nil
}

func (f *Fake) CreatePod(ctx context.Context, namespace string, pod *corev1.Pod) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreatePod"); err != nil {
		return err
	}
	k := key(namespace, pod.Name)
	if _, ok := f.Pods[k]; ok {
		return fmt.Errorf("%w: pod %s", ErrAlreadyExists, k)
	}
	f.Pods[k] = pod
	return nil
}

func (f *Fake) GetPodPhase(ctx context.Context, namespace, name string) (WorkloadPhase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetPodPhase"); err != nil {
		return PhaseUnknown, err
	}
	k := key(namespace, name)
	if _, ok := f.Pods[k]; !ok {
		return PhaseUnknown, fmt.Errorf("%w: pod %s", ErrNotFound, k)
	}
	return f.nextPhase(f.PodPhaseScript, k), nil
}

func (f *Fake) DeletePod(ctx context.Context, namespace, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("DeletePod"); err != nil {
		return err
	}
	k := key(namespace, name)
	f.PodDeletions = append(f.PodDeletions, k)
	if _, ok := f.Pods[k]; !ok {
		return fmt.Errorf("%w: pod %s", ErrNotFound, k)
	}
	delete(f.Pods, k)
	return nil
}

func (f *Fake) PodLogs(ctx context.Context, namespace, name string, tailLines *int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("PodLogs"); err != nil {
		return "", err
	}
	return tailOf(f.LogText[key(namespace, name)], tailLines), nil
}

func (f *Fake) CreateJob(ctx context.Context, namespace string, job *batchv1.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreateJob"); err != nil {
		return err
	}
	k := key(namespace, job.Name)
	if _, ok := f.Jobs[k]; ok {
		return fmt.Errorf("%w: job %s", ErrAlreadyExists, k)
	}
	f.Jobs[k] = job
	return nil
}

func (f *Fake) GetJobPhase(ctx context.Context, namespace, name string) (WorkloadPhase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetJobPhase"); err != nil {
		return PhaseUnknown, err
	}
	k := key(namespace, name)
	if _, ok := f.Jobs[k]; !ok {
		return PhaseUnknown, fmt.Errorf("%w: job %s", ErrNotFound, k)
	}
	return f.nextPhase(f.JobPhaseScript, k), nil
}

func (f *Fake) DeleteJob(ctx context.Context, namespace, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("DeleteJob"); err != nil {
		return err
	}
	k := key(namespace, name)
	f.JobDeletions = append(f.JobDeletions, k)
	if _, ok := f.Jobs[k]; !ok {
		return fmt.Errorf("%w: job %s", ErrNotFound, k)
	}
	delete(f.Jobs, k)
	return nil
}

func (f *Fake) JobLogs(ctx context.Context, namespace, jobName string, tailLines *int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("JobLogs"); err != nil {
		return "", err
	}
	return tailOf(f.LogText[key(namespace, jobName)], tailLines), nil
}

func (f *Fake) CopyToPod(ctx context.Context, namespace, pod, localPath, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CopyToPod"); err != nil {
		return err
	}
	if _, ok := f.Pods[key(namespace, pod)]; !ok {
		return fmt.Errorf("%w: pod %s", ErrNotFound, key(namespace, pod))
	}
	f.CopyCalls = append(f.CopyCalls, CopyCall{namespace, pod, localPath, remotePath})
	return nil
}

func (f *Fake) ExecInPod(ctx context.Context, namespace, pod string, argv []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ExecInPod"); err != nil {
		return err
	}
	if _, ok := f.Pods[key(namespace, pod)]; !ok {
		return fmt.Errorf("%w: pod %s", ErrNotFound, key(namespace, pod))
	}
	f.ExecCalls = append(f.ExecCalls, argv)
	return nil
}

// nextPhase consumes the head of the scripted sequence, letting the
// final entry repeat forever. Unscripted resources report Pending.
func (f *Fake) nextPhase(script map[string][]WorkloadPhase, k string) WorkloadPhase {
	phases, ok := script[k]
	if !ok || len(phases) == 0 {
		return PhasePending
	}
	phase := phases[0]
	if len(phases) > 1 {
		script[k] = phases[1:]
	}
	return phase
}

func tailOf(text string, tailLines *int64) string {
	if tailLines == nil {
		return text
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	n := int(*tailLines)
	if n >= len(lines) {
		return text
	}
	return strings.Join(lines[len(lines)-n:], "\n") + "\n"
}
