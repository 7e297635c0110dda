package cluster

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// kubectlRunner is the remote-copy/exec primitive. kubectl already
// solves tar streaming over the API server, so we shell out to it with
// argv slices; no shell is ever involved.
type kubectlRunner interface {
	copy(ctx context.Context, namespace, pod, localPath, remotePath string) error
	exec(ctx context.Context, namespace, pod string, argv []string) error
}

type execKubectl struct{}

func (execKubectl) copy(ctx context.Context, namespace, pod, localPath, remotePath string) error {
	dest := fmt.Sprintf("%s/%s:%s", namespace, pod, remotePath)
	return runKubectl(ctx, "cp", localPath, dest)
}

func (execKubectl) exec(ctx context.Context, namespace, pod string, argv []string) error {
	args := append([]string{"exec", "-n", namespace, pod, "--"}, argv...)
	return runKubectl(ctx, args...)
}

func runKubectl(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "kubectl", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("kubectl %s: %s: %w", args[0], msg, err)
		}
		return fmt.Errorf("kubectl %s: %w", args[0], err)
	}
	return nil
}
