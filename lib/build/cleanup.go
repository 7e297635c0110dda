package build

import (
	"context"
	"sync"

	"github.com/podforge/podforge/lib/cluster"
	"github.com/podforge/podforge/lib/logger"
)

// Coordinator deletes the credential secret exactly once per
// invocation, on every terminal path reached after the secret was
// created. Deletion is always attempted, never assumed; failures
// (typically "already absent") are swallowed.
type Coordinator struct {
	client cluster.Interface
	res    ResourceSet
	once   sync.Once
}

// NewCoordinator arms cleanup for the given resource set. Callers arm
// it immediately after the secret is installed.
func NewCoordinator(client cluster.Interface, res ResourceSet) *Coordinator {
	return &Coordinator{client: client, res: res}
}

// Run deletes the credential secret. Subsequent calls are no-ops.
func (c *Coordinator) Run(ctx context.Context) {
	c.once.Do(func() {
		log := logger.FromContext(ctx)
		if err := c.client.DeleteSecret(ctx, c.res.Namespace, c.res.SecretName); err != nil {
			log.Debug("credential secret cleanup", "secret", c.res.SecretName, "error", err)
			return
		}
		log.Info("cleaned up credential secret", "secret", c.res.SecretName)
	})
}
