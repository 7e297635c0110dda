package build

import (
	"context"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/podforge/podforge/lib/cluster"
	"github.com/podforge/podforge/lib/reference"
)

func testProvisioner(fake *cluster.Fake) *Provisioner {
	return NewProvisioner(fake, clockwork.NewRealClock(), testTimeouts())
}

func testResources(t *testing.T) ResourceSet {
	t.Helper()
	ref, err := reference.Parse("myuser/myapp:latest")
	require.NoError(t, err)
	return ResourcesFor(ref)
}

func TestEnsureNamespaceIdempotent(t *testing.T) {
	fake := cluster.NewFake()
	p := testProvisioner(fake)

	require.NoError(t, p.EnsureNamespace(context.Background(), Namespace))
	require.NoError(t, p.EnsureNamespace(context.Background(), Namespace))
	require.Equal(t, 2, fake.Namespaces[Namespace])
}

func TestEnsureNamespaceFailure(t *testing.T) {
	fake := cluster.NewFake()
	fake.FailWith("CreateNamespace", errors.New("forbidden"))
	p := testProvisioner(fake)

	err := p.EnsureNamespace(context.Background(), Namespace)
	require.Error(t, err)
	require.Equal(t, KindResource, KindOf(err))
}

func TestInstallSecretReplacesExisting(t *testing.T) {
	fake := cluster.NewFake()
	p := testProvisioner(fake)
	res := testResources(t)

	stale := &corev1.Secret{ObjectMeta: metav1.ObjectMeta{Name: res.SecretName, Namespace: res.Namespace}}
	require.NoError(t, fake.CreateSecret(context.Background(), res.Namespace, stale))

	fresh := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: res.SecretName, Namespace: res.Namespace},
		Data:       map[string][]byte{"k": []byte("v")},
	}
	require.NoError(t, p.InstallSecret(context.Background(), res, fresh))

	got := fake.Secrets[res.Namespace+"/"+res.SecretName]
	require.Same(t, fresh, got)
	require.Len(t, fake.SecretDeletions, 1)
}

func TestInstallSecretFreshNamespace(t *testing.T) {
	fake := cluster.NewFake()
	p := testProvisioner(fake)
	res := testResources(t)

	fresh := &corev1.Secret{ObjectMeta: metav1.ObjectMeta{Name: res.SecretName, Namespace: res.Namespace}}
	require.NoError(t, p.InstallSecret(context.Background(), res, fresh))
	require.Len(t, fake.Secrets, 1)
}

func TestInstallPodReplacesLeftover(t *testing.T) {
	fake := cluster.NewFake()
	p := testProvisioner(fake)
	res := testResources(t)

	leftover := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: res.WorkloadName, Namespace: res.Namespace}}
	require.NoError(t, fake.CreatePod(context.Background(), res.Namespace, leftover))

	fresh := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: res.WorkloadName, Namespace: res.Namespace}}
	require.NoError(t, p.InstallPod(context.Background(), res, fresh))

	got := fake.Pods[res.Namespace+"/"+res.WorkloadName]
	require.Same(t, fresh, got)
}

func TestInstallPodDeletionTimeout(t *testing.T) {
	fake := cluster.NewFake()
	p := testProvisioner(fake)
	res := testResources(t)

	leftover := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: res.WorkloadName, Namespace: res.Namespace}}
	require.NoError(t, fake.CreatePod(context.Background(), res.Namespace, leftover))

	// Deletion is issued but its confirmation poll never sees the pod
	// disappear.
	fake.FailWith("GetPodPhase", errors.New("watch stalled"))

	fresh := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: res.WorkloadName, Namespace: res.Namespace}}
	err := p.InstallPod(context.Background(), res, fresh)
	require.Error(t, err)
	require.Equal(t, KindDeletionTimeout, KindOf(err))
}

func TestInstallJobReplacesLeftover(t *testing.T) {
	fake := cluster.NewFake()
	p := testProvisioner(fake)
	res := testResources(t)
	ref, err := reference.Parse("myuser/myapp:latest")
	require.NoError(t, err)

	require.NoError(t, fake.CreateJob(context.Background(), res.Namespace, BuildJob(res, ref, nil)))
	require.NoError(t, p.InstallJob(context.Background(), res, BuildJob(res, ref, nil)))

	require.Len(t, fake.Jobs, 1)
	require.Len(t, fake.JobDeletions, 1)
}

func TestInstallConfigMapReplacesExisting(t *testing.T) {
	fake := cluster.NewFake()
	p := testProvisioner(fake)
	res := testResources(t)

	name := ContextConfigMapName(res)
	stale := &corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: res.Namespace}}
	require.NoError(t, fake.CreateConfigMap(context.Background(), res.Namespace, stale))

	fresh := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: res.Namespace},
		Data:       map[string]string{"f0000": "FROM scratch\n"},
	}
	require.NoError(t, p.InstallConfigMap(context.Background(), res, fresh))
	require.Same(t, fresh, fake.ConfigMaps[res.Namespace+"/"+name])
}
