package cluster

import (
	"context"
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

// KubeClient is the production Interface implementation over a
// client-go clientset. Copy and exec go through kubectl (see
// kubectl.go); everything else is direct API access.
type KubeClient struct {
	clientset kubernetes.Interface
	kubectl   kubectlRunner
}

var _ Interface = (*KubeClient)(nil)

// NewKubeClient builds a client from the ambient kubeconfig (the
// cluster is assumed to be pre-authenticated).
func NewKubeClient() (*KubeClient, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build clientset: %w", err)
	}
	return &KubeClient{clientset: clientset, kubectl: execKubectl{}}, nil
}

func (c *KubeClient) CreateNamespace(ctx context.Context, name string) error {
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}
	_, err := c.clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	return translate(err)
}

func (c *KubeClient) CreateSecret(ctx context.Context, namespace string, secret *corev1.Secret) error {
	_, err := c.clientset.CoreV1().Secrets(namespace).Create(ctx, secret, metav1.CreateOptions{})
	return translate(err)
}

func (c *KubeClient) DeleteSecret(ctx context.Context, namespace, name string) error {
	return translate(c.clientset.CoreV1().Secrets(namespace).Delete(ctx, name, metav1.DeleteOptions{}))
}

func (c *KubeClient) CreateConfigMap(ctx context.Context, namespace string, cm *corev1.ConfigMap) error {
	_, err := c.clientset.CoreV1().ConfigMaps(namespace).Create(ctx, cm, metav1.CreateOptions{})
	return translate(err)
}

func (c *KubeClient) DeleteConfigMap(ctx context.Context, namespace, name string) error {
	return translate(c.clientset.CoreV1().ConfigMaps(namespace).Delete(ctx, name, metav1.DeleteOptions{}))
}

func (c *KubeClient) CreatePod(ctx context.Context, namespace string, pod *corev1.Pod) error {
	_, err := c.clientset.CoreV1().Pods(namespace).Create(ctx, pod, metav1.CreateOptions{})
	return translate(err)
}

func (c *KubeClient) GetPodPhase(ctx context.Context, namespace, name string) (WorkloadPhase, error) {
	pod, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return PhaseUnknown, translate(err)
	}
	switch pod.Status.Phase {
	case corev1.PodRunning:
		return PhaseRunning, nil
	case corev1.PodSucceeded:
		return PhaseSucceeded, nil
	case corev1.PodFailed:
		return PhaseFailed, nil
	case corev1.PodPending:
		return PhasePending, nil
	default:
		return PhaseUnknown, nil
	}
}

func (c *KubeClient) DeletePod(ctx context.Context, namespace, name string) error {
	return translate(c.clientset.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{}))
}

func (c *KubeClient) PodLogs(ctx context.Context, namespace, name string, tailLines *int64) (string, error) {
	req := c.clientset.CoreV1().Pods(namespace).GetLogs(name, &corev1.PodLogOptions{TailLines: tailLines})
	raw, err := req.DoRaw(ctx)
	if err != nil {
		return "", translate(err)
	}
	return string(raw), nil
}

func (c *KubeClient) CreateJob(ctx context.Context, namespace string, job *batchv1.Job) error {
	_, err := c.clientset.BatchV1().Jobs(namespace).Create(ctx, job, metav1.CreateOptions{})
	return translate(err)
}

func (c *KubeClient) GetJobPhase(ctx context.Context, namespace, name string) (WorkloadPhase, error) {
	job, err := c.clientset.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return PhaseUnknown, translate(err)
	}
	switch {
	case job.Status.Succeeded > 0:
		return PhaseSucceeded, nil
	case job.Status.Failed > 0:
		return PhaseFailed, nil
	case job.Status.Active > 0:
		return PhaseRunning, nil
	default:
		return PhasePending, nil
	}
}

func (c *KubeClient) DeleteJob(ctx context.Context, namespace, name string) error {
	// Foreground propagation so the job's pods go away with it.
	policy := metav1.DeletePropagationForeground
	return translate(c.clientset.BatchV1().Jobs(namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: &policy,
	}))
}

func (c *KubeClient) JobLogs(ctx context.Context, namespace, jobName string, tailLines *int64) (string, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "job-name=" + jobName,
	})
	if err != nil {
		return "", translate(err)
	}
	if len(pods.Items) == 0 {
		return "", fmt.Errorf("%w: no pods for job %s", ErrNotFound, jobName)
	}
	return c.PodLogs(ctx, namespace, pods.Items[0].Name, tailLines)
}

func (c *KubeClient) CopyToPod(ctx context.Context, namespace, pod, localPath, remotePath string) error {
	return c.kubectl.copy(ctx, namespace, pod, localPath, remotePath)
}

func (c *KubeClient) ExecInPod(ctx context.Context, namespace, pod string, argv []string) error {
	return c.kubectl.exec(ctx, namespace, pod, argv)
}

// translate maps apimachinery status errors onto the package
// sentinels so callers stay transport-agnostic.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case apierrors.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case apierrors.IsAlreadyExists(err):
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	default:
		return err
	}
}
