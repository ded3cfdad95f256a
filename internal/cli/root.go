// Package cli implements the stickerlab command line over the same service
// container as the API daemon.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stickerlab/stickerlab/internal/app"
	"github.com/stickerlab/stickerlab/pkg/config"
	"github.com/stickerlab/stickerlab/pkg/logger"
)

// Builder opens the service container for one command run.
type Builder func(ctx context.Context) (*app.Container, error)

type Options struct {
	Out   io.Writer
	Build Builder
}

type runner struct {
	out     io.Writer
	build   Builder
	jsonOut bool
}

// NewRootCommand wires every subcommand. A nil Build loads configuration from
// .env, ~/.stickerlab/config.toml and the environment.
func NewRootCommand(opts Options) *cobra.Command {
	r := &runner{out: opts.Out, build: opts.Build}
	if r.out == nil {
		r.out = os.Stdout
	}
	if r.build == nil {
		r.build = DefaultBuilder
	}

	root := &cobra.Command{
		Use:           "stickerlab",
		Short:         "Turn photos into watermarked stickers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(r.out)
	root.PersistentFlags().BoolVar(&r.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		r.loginCmd(),
		r.balanceCmd(),
		r.buyCmd(),
		r.packagesCmd(),
		r.packsCmd(),
		r.claimCmd(),
		r.createCmd(),
		r.stickersCmd(),
		r.exportCmd(),
	)
	return root
}

// Execute runs the CLI against os.Args and returns the process exit code.
func Execute() int {
	root := NewRootCommand(Options{})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		return 1
	}
	return 0
}

// DefaultBuilder loads configuration the same way cmd/api does and logs to
// stderr so command output stays clean.
func DefaultBuilder(ctx context.Context) (*app.Container, error) {
	_ = godotenv.Load()
	if _, err := config.ApplyFile(config.DefaultFilePath()); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logg := logger.New(logger.Options{
		ServiceName: "cli",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})
	return app.New(ctx, cfg, logg, app.Options{})
}

func (r *runner) withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *app.Container) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := r.build(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func (r *runner) printJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
