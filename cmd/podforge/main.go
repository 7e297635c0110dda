// Command podforge builds a container image inside a pre-authenticated
// Kubernetes cluster and pushes it to a registry. One invocation runs
// exactly one build.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ghodss/yaml"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/podforge/podforge/cmd/podforge/config"
	"github.com/podforge/podforge/lib/build"
	"github.com/podforge/podforge/lib/cluster"
	"github.com/podforge/podforge/lib/logger"
	"github.com/podforge/podforge/lib/reference"
)

const defaultLogLevel = "info"

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &levelVar}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	root := newRootCommand(log, &levelVar)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("interrupted", "error", err)
			os.Exit(130)
		}
		log.Error("build failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand(log *slog.Logger, levelVar *slog.LevelVar) *cobra.Command {
	logLevel := defaultLogLevel

	root := &cobra.Command{
		Use:           "podforge",
		Short:         "Build and push container images with BuildKit inside a Kubernetes cluster",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "Log verbosity (debug, info, warn, error)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := parseLogLevel(logLevel)
		if err != nil {
			return err
		}
		levelVar.Set(level)
		return nil
	}

	root.AddCommand(newBuildCommand(log))
	return root
}

func newBuildCommand(log *slog.Logger) *cobra.Command {
	var (
		imageName   string
		username    string
		token       string
		contextRoot string
		strategy    string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run one image build against the cluster",
		Long: "Provisions the build namespace and registry credentials, delivers the\n" +
			"local source tree (filtered through .dockerignore) to a BuildKit\n" +
			"workload, and watches the build to completion. The credential secret\n" +
			"is removed before exit on every path.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if username == "" {
				username = cfg.RegistryUsername
			}
			if token == "" {
				token = cfg.RegistryToken
			}

			ref, err := reference.Parse(imageName)
			if err != nil {
				return err
			}
			if username == "" {
				return fmt.Errorf("registry username required: use --registry-username or set %s", config.EnvRegistryUsername)
			}
			if token == "" {
				return fmt.Errorf("registry token required: use --registry-token or set %s", config.EnvRegistryToken)
			}

			if dryRun {
				return printManifest(cmd, ref, strategy)
			}

			client, err := cluster.NewKubeClient()
			if err != nil {
				return fmt.Errorf("cluster access: %w", err)
			}

			orch, err := build.New(client, strategy, clockwork.NewRealClock(), build.DefaultTimeouts(), cmd.OutOrStdout())
			if err != nil {
				return err
			}

			outcome, err := orch.Run(cmd.Context(), build.Request{
				Ref:         ref,
				Username:    username,
				Token:       token,
				ContextRoot: contextRoot,
			})
			if err != nil {
				return err
			}
			log.Info("build finished", "image", ref.String(), "outcome", string(outcome))
			return nil
		},
	}

	cmd.Flags().StringVar(&imageName, "image-name", "", "Target image reference, e.g. user/app:latest (required)")
	cmd.Flags().StringVar(&username, "registry-username", "", "Registry username (falls back to "+config.EnvRegistryUsername+")")
	cmd.Flags().StringVar(&token, "registry-token", "", "Registry access token (falls back to "+config.EnvRegistryToken+")")
	cmd.Flags().StringVar(&contextRoot, "context", ".", "Build context root")
	cmd.Flags().StringVar(&strategy, "strategy", "pod", "Context delivery strategy: pod (push and signal) or job (embed at creation)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the rendered workload manifest and exit")
	cmd.MarkFlagRequired("image-name")

	return cmd
}

// printManifest renders the workload manifest for inspection without
// touching the cluster.
func printManifest(cmd *cobra.Command, ref *reference.Ref, strategy string) error {
	res := build.ResourcesFor(ref)

	var obj any
	switch strategy {
	case "pod":
		obj = build.BuildPod(res, ref)
	case "job":
		obj = build.BuildJob(res, ref, nil)
	default:
		return fmt.Errorf("unknown delivery strategy %q", strategy)
	}

	out, err := yaml.Marshal(obj)
	if err != nil {
		return fmt.Errorf("render manifest: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}
