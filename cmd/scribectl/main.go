// Command scribectl is the VaultScribe developer tool. The stack and dev
// groups wrap docker compose and the go toolchain; the remaining commands are
// a thin client for the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	composeFile string
	apiURL      string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "scribectl: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "scribectl",
		Short: "VaultScribe development and client CLI",
		Long: `scribectl drives the Docker stack and the Go binaries during development, and talks to a
running VaultScribe API to upload audio, submit transcriptions and inspect their results.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiURL, "api", envOr("VAULTSCRIBE_API_URL", "http://localhost:8080"), "Base URL of the VaultScribe API")
	root.AddCommand(
		newStackCmd(),
		newDevCmd(),
		newUploadCmd(),
		newSubmitCmd(),
		newStatusCmd(),
		newSummariesCmd(),
		newAskCmd(),
	)
	return root
}

// newStackCmd groups the docker compose wrappers.
func newStackCmd() *cobra.Command {
	stack := &cobra.Command{
		Use:   "stack",
		Short: "Manage the postgres, redis, minio and rabbitmq stack with docker compose",
	}
	stack.PersistentFlags().StringVarP(&composeFile, "compose-file", "f", "docker-compose.yml", "Compose file to use")

	var (
		noCache   bool
		attached  bool
		skipBuild bool
		volumes   bool
		follow    bool
	)
	build := composeCmd("build [service...]", "Build service images", func(args []string) []string {
		if noCache {
			args = append(args, "--no-cache")
		}
		return args
	})
	build.Flags().BoolVar(&noCache, "no-cache", false, "Disable the Docker build cache")

	up := composeCmd("up [service...]", "Start the stack", func(args []string) []string {
		if !skipBuild {
			args = append(args, "--build")
		}
		if !attached {
			args = append(args, "-d")
		}
		return args
	})
	up.Flags().BoolVar(&attached, "attach", false, "Stay attached to service output")
	up.Flags().BoolVar(&skipBuild, "skip-build", false, "Start without rebuilding images")

	down := composeCmd("down", "Stop the stack", func(args []string) []string {
		if volumes {
			args = append(args, "-v")
		}
		return args
	})
	down.Args = cobra.NoArgs
	down.Flags().BoolVar(&volumes, "volumes", false, "Also remove named volumes")

	logs := composeCmd("logs [service...]", "Show service logs", func(args []string) []string {
		if follow {
			args = append(args, "--follow")
		}
		return args
	})
	logs.Flags().BoolVar(&follow, "follow", false, "Stream logs continuously")

	stack.AddCommand(build, up, down, logs)
	return stack
}

// composeCmd builds a `docker compose <verb>` wrapper; extra adds flag-driven
// arguments before the positional services.
func composeCmd(use, short string, extra func([]string) []string) *cobra.Command {
	verb := strings.Fields(use)[0]
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			composeArgs := extra([]string{"compose", "-f", composeFile, verb})
			composeArgs = append(composeArgs, args...)
			return runCommand(cmd.Context(), "docker", composeArgs...)
		},
	}
}

func newDevCmd() *cobra.Command {
	dev := &cobra.Command{
		Use:   "dev",
		Short: "Run tests or a single binary with the go toolchain",
	}

	var race, cover bool
	test := &cobra.Command{
		Use:   "test [packages]",
		Short: "Run go test (defaults to ./...)",
		RunE: func(cmd *cobra.Command, args []string) error {
			goArgs := []string{"test"}
			if race {
				goArgs = append(goArgs, "-race")
			}
			if cover {
				goArgs = append(goArgs, "-cover")
			}
			if len(args) == 0 {
				args = []string{"./..."}
			}
			return runCommand(cmd.Context(), "go", append(goArgs, args...)...)
		},
	}
	test.Flags().BoolVar(&race, "race", false, "Enable the race detector")
	test.Flags().BoolVar(&cover, "cover", false, "Report coverage")

	run := &cobra.Command{
		Use:   "run",
		Short: "go run one of the VaultScribe binaries",
	}
	for _, bin := range []struct{ name, short string }{
		{"api", "HTTP API backed by postgres, redis and minio"},
		{"worker", "asynq worker that drives transcription jobs"},
		{"server", "single-process server with in-memory state"},
	} {
		pkg := "./cmd/" + bin.name
		run.AddCommand(&cobra.Command{
			Use:   bin.name + " [args...]",
			Short: bin.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCommand(cmd.Context(), "go", append([]string{"run", pkg}, args...)...)
			},
		})
	}

	dev.AddCommand(test, run)
	return dev
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runCommand(ctx context.Context, name string, args ...string) error {
	c := exec.CommandContext(ctx, name, args...)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
