package build

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"

	"github.com/podforge/podforge/lib/buildctx"
	"github.com/podforge/podforge/lib/reference"
)

func TestCredentialSecretDocument(t *testing.T) {
	ref, err := reference.Parse("myuser/myapp:latest")
	require.NoError(t, err)
	res := ResourcesFor(ref)

	secret, err := CredentialSecret(res, ref, "myuser", "tok-123")
	require.NoError(t, err)

	require.Equal(t, SecretName, secret.Name)
	require.Equal(t, Namespace, secret.Namespace)
	require.Equal(t, corev1.SecretTypeDockerConfigJson, secret.Type)

	var cfg struct {
		Auths map[string]struct {
			Username string `json:"username"`
			Password string `json:"password"`
			Auth     string `json:"auth"`
		} `json:"auths"`
	}
	require.NoError(t, json.Unmarshal(secret.Data[corev1.DockerConfigJsonKey], &cfg))
	require.Len(t, cfg.Auths, 1)

	entry, ok := cfg.Auths["https://index.docker.io/v1/"]
	require.True(t, ok)
	require.Equal(t, "myuser", entry.Username)
	require.Equal(t, "tok-123", entry.Password)
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte("myuser:tok-123")), entry.Auth)
}

func TestCredentialSecretCustomRegistry(t *testing.T) {
	ref, err := reference.Parse("registry.example.com:5000/team/app:v1")
	require.NoError(t, err)
	res := ResourcesFor(ref)

	secret, err := CredentialSecret(res, ref, "team-bot", "tok")
	require.NoError(t, err)

	var cfg map[string]map[string]any
	require.NoError(t, json.Unmarshal(secret.Data[corev1.DockerConfigJsonKey], &cfg))
	require.Contains(t, cfg["auths"], "registry.example.com:5000")
}

func TestBuildPodManifest(t *testing.T) {
	ref, err := reference.Parse("myuser/myapp:latest")
	require.NoError(t, err)
	res := ResourcesFor(ref)

	pod := BuildPod(res, ref)

	require.Equal(t, res.WorkloadName, pod.Name)
	require.Equal(t, Namespace, pod.Namespace)
	require.Equal(t, corev1.RestartPolicyNever, pod.Spec.RestartPolicy)
	require.Len(t, pod.Spec.Containers, 1)

	c := pod.Spec.Containers[0]
	script := c.Command[len(c.Command)-1]
	// Blocks on the sentinel, then builds and pushes the exact reference.
	require.Contains(t, script, ContextMountPath+"/"+SentinelFile)
	require.Contains(t, script, "name=myuser/myapp:latest,push=true")

	require.True(t, *c.SecurityContext.RunAsNonRoot)
	require.False(t, *c.SecurityContext.AllowPrivilegeEscalation)

	var emptyDir, secretVol bool
	for _, vol := range pod.Spec.Volumes {
		if vol.EmptyDir != nil {
			emptyDir = true
		}
		if vol.Secret != nil {
			secretVol = true
			require.Equal(t, SecretName, vol.Secret.SecretName)
			require.Equal(t, "config.json", vol.Secret.Items[0].Path)
		}
	}
	require.True(t, emptyDir)
	require.True(t, secretVol)
}

func TestBuildJobManifest(t *testing.T) {
	ref, err := reference.Parse("myuser/myapp:latest")
	require.NoError(t, err)
	res := ResourcesFor(ref)
	items := []corev1.KeyToPath{{Key: "f0000", Path: "Dockerfile"}}

	job := BuildJob(res, ref, items)

	require.Equal(t, res.WorkloadName, job.Name)
	require.Equal(t, int32(0), *job.Spec.BackoffLimit)

	script := job.Spec.Template.Spec.Containers[0].Command[2]
	// Context is pre-mounted; nothing to wait for.
	require.NotContains(t, script, SentinelFile)
	require.Contains(t, script, "name=myuser/myapp:latest,push=true")

	var found bool
	for _, vol := range job.Spec.Template.Spec.Volumes {
		if vol.ConfigMap != nil {
			found = true
			require.Equal(t, ContextConfigMapName(res), vol.ConfigMap.Name)
			require.Equal(t, items, vol.ConfigMap.Items)
		}
	}
	require.True(t, found)
}

func TestContextConfigMap(t *testing.T) {
	ref, err := reference.Parse("myuser/myapp:latest")
	require.NoError(t, err)
	res := ResourcesFor(ref)

	raw := []byte{0x89, 'P', 'N', 'G'}
	m := &buildctx.Mapping{Entries: map[string]string{
		"src/main.py": "print('hi')\n",
		"Dockerfile":  "FROM scratch\n",
	}}
	m.Entries["logo.png"+buildctx.Base64Suffix] = base64.StdEncoding.EncodeToString(raw)

	cm, items, err := ContextConfigMap(res, m)
	require.NoError(t, err)
	require.Equal(t, ContextConfigMapName(res), cm.Name)

	// Synthetic keys follow sorted path order; projection items carry
	// the real relative paths.
	require.Equal(t, []corev1.KeyToPath{
		{Key: "f0000", Path: "Dockerfile"},
		{Key: "f0001", Path: "logo.png"},
		{Key: "f0002", Path: "src/main.py"},
	}, items)

	require.Equal(t, "FROM scratch\n", cm.Data["f0000"])
	require.Equal(t, "print('hi')\n", cm.Data["f0002"])
	require.Equal(t, raw, cm.BinaryData["f0001"])
}

func TestContextConfigMapRejectsCorruptEntry(t *testing.T) {
	ref, err := reference.Parse("myuser/myapp:latest")
	require.NoError(t, err)

	m := &buildctx.Mapping{Entries: map[string]string{
		"logo.png" + buildctx.Base64Suffix: "not base64!!!",
	}}
	_, _, err = ContextConfigMap(ResourcesFor(ref), m)
	require.Error(t, err)
}
