package build

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/podforge/podforge/lib/buildctx"
	"github.com/podforge/podforge/lib/reference"
)

const (
	builderImage    = "moby/buildkit:v0.16.0-rootless"
	dockerConfigDir = "/home/user/.docker"
)

// dockerConfig is the single-registry credential document stored in
// the dockerconfigjson secret.
type dockerConfig struct {
	Auths map[string]dockerAuth `json:"auths"`
}

type dockerAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Auth     string `json:"auth"`
}

// CredentialSecret renders the registry credential secret for a build.
func CredentialSecret(res ResourceSet, ref *reference.Ref, username, token string) (*corev1.Secret, error) {
	cfg := dockerConfig{
		Auths: map[string]dockerAuth{
			ref.RegistryAuthHost(): {
				Username: username,
				Password: token,
				Auth:     base64.StdEncoding.EncodeToString([]byte(username + ":" + token)),
			},
		},
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal docker config: %w", err)
	}
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      res.SecretName,
			Namespace: res.Namespace,
		},
		Type: corev1.SecretTypeDockerConfigJson,
		Data: map[string][]byte{
			corev1.DockerConfigJsonKey: raw,
		},
	}, nil
}

// BuildPod renders the pod for the push-and-signal strategy. The
// container blocks on the sentinel file, so the pod reaches Running
// and idles until the context has been transferred.
func BuildPod(res ResourceSet, ref *reference.Ref) *corev1.Pod {
	script := fmt.Sprintf(
		"while [ ! -f %s/%s ]; do sleep 1; done\n"+
			"exec buildctl-daemonless.sh build"+
			" --frontend dockerfile.v0"+
			" --local context=%s --local dockerfile=%s"+
			" --output type=image,name=%s,push=true\n",
		ContextMountPath, SentinelFile, ContextMountPath, ContextMountPath, ref.String())

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      res.WorkloadName,
			Namespace: res.Namespace,
			Labels:    workloadLabels(res),
			Annotations: map[string]string{
				"container.apparmor.security.beta.kubernetes.io/buildkit": "unconfined",
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				builderContainer(script),
			},
			Volumes: []corev1.Volume{
				{
					Name: "build-context",
					VolumeSource: corev1.VolumeSource{
						EmptyDir: &corev1.EmptyDirVolumeSource{},
					},
				},
				credentialVolume(res),
			},
		},
	}
	return pod
}

// ContextConfigMap flattens an embedded context mapping into a
// ConfigMap. ConfigMap keys cannot contain path separators, so entries
// get synthetic keys in sorted-path order and the returned projection
// items restore the real relative paths at mount time.
func ContextConfigMap(res ResourceSet, m *buildctx.Mapping) (*corev1.ConfigMap, []corev1.KeyToPath, error) {
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ContextConfigMapName(res),
			Namespace: res.Namespace,
			Labels:    workloadLabels(res),
		},
		Data:       map[string]string{},
		BinaryData: map[string][]byte{},
	}

	paths := lo.Keys(m.Entries)
	sort.Strings(paths)

	items := make([]corev1.KeyToPath, 0, len(paths))
	for i, p := range paths {
		k := fmt.Sprintf("f%04d", i)
		if strings.HasSuffix(p, buildctx.Base64Suffix) {
			raw, err := base64.StdEncoding.DecodeString(m.Entries[p])
			if err != nil {
				return nil, nil, fmt.Errorf("decode embedded entry %s: %w", p, err)
			}
			cm.BinaryData[k] = raw
			items = append(items, corev1.KeyToPath{Key: k, Path: strings.TrimSuffix(p, buildctx.Base64Suffix)})
			continue
		}
		cm.Data[k] = m.Entries[p]
		items = append(items, corev1.KeyToPath{Key: k, Path: p})
	}
	return cm, items, nil
}

// ContextConfigMapName names the embedded-context ConfigMap for a build.
func ContextConfigMapName(res ResourceSet) string {
	return res.WorkloadName + "-context"
}

// BuildJob renders the job for the embed-at-creation strategy. The
// context is projected from the ConfigMap, so the build starts as soon
// as the job is admitted; there is no readiness or transfer phase.
func BuildJob(res ResourceSet, ref *reference.Ref, items []corev1.KeyToPath) *batchv1.Job {
	script := fmt.Sprintf(
		"exec buildctl-daemonless.sh build"+
			" --frontend dockerfile.v0"+
			" --local context=%s --local dockerfile=%s"+
			" --output type=image,name=%s,push=true\n",
		ContextMountPath, ContextMountPath, ref.String())

	backoffLimit := int32(0)
	ttl := int32(3600)

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      res.WorkloadName,
			Namespace: res.Namespace,
			Labels:    workloadLabels(res),
		},
		Spec: batchv1.JobSpec{
			BackoffLimit:            &backoffLimit,
			TTLSecondsAfterFinished: &ttl,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: workloadLabels(res),
					Annotations: map[string]string{
						"container.apparmor.security.beta.kubernetes.io/buildkit": "unconfined",
					},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						builderContainer(script),
					},
					Volumes: []corev1.Volume{
						{
							Name: "build-context",
							VolumeSource: corev1.VolumeSource{
								ConfigMap: &corev1.ConfigMapVolumeSource{
									LocalObjectReference: corev1.LocalObjectReference{
										Name: ContextConfigMapName(res),
									},
									Items: items,
								},
							},
						},
						credentialVolume(res),
					},
				},
			},
		},
	}
}

func workloadLabels(res ResourceSet) map[string]string {
	return map[string]string{
		"app.kubernetes.io/name":       "podforge",
		"app.kubernetes.io/managed-by": "podforge",
		"podforge.dev/build":           res.WorkloadName,
	}
}

func builderContainer(script string) corev1.Container {
	runAsUser := int64(1000)
	runAsNonRoot := true
	noEscalation := false

	return corev1.Container{
		Name:    "buildkit",
		Image:   builderImage,
		Command: []string{"sh", "-c", script},
		Env: []corev1.EnvVar{
			{Name: "DOCKER_CONFIG", Value: dockerConfigDir},
			{Name: "BUILDKITD_FLAGS", Value: "--oci-worker-no-process-sandbox"},
		},
		VolumeMounts: []corev1.VolumeMount{
			{Name: "build-context", MountPath: ContextMountPath},
			{Name: "registry-auth", MountPath: dockerConfigDir, ReadOnly: true},
		},
		Resources: corev1.ResourceRequirements{
			Requests: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("500m"),
				corev1.ResourceMemory: resource.MustParse("512Mi"),
			},
			Limits: corev1.ResourceList{
				corev1.ResourceCPU:    resource.MustParse("1"),
				corev1.ResourceMemory: resource.MustParse("2Gi"),
			},
		},
		SecurityContext: &corev1.SecurityContext{
			RunAsUser:                &runAsUser,
			RunAsNonRoot:             &runAsNonRoot,
			AllowPrivilegeEscalation: &noEscalation,
			SeccompProfile: &corev1.SeccompProfile{
				Type: corev1.SeccompProfileTypeUnconfined,
			},
		},
	}
}

func credentialVolume(res ResourceSet) corev1.Volume {
	return corev1.Volume{
		Name: "registry-auth",
		VolumeSource: corev1.VolumeSource{
			Secret: &corev1.SecretVolumeSource{
				SecretName: res.SecretName,
				Items: []corev1.KeyToPath{
					{Key: corev1.DockerConfigJsonKey, Path: "config.json"},
				},
			},
		},
	}
}
