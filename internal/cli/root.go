// Package cli implements the facultyid command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ayusman/facultyid/internal/app"
	"github.com/ayusman/facultyid/internal/config"
	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

// AppFactory builds the application for commands that need the camera and models.
type AppFactory func(cfg config.Config, logger *slog.Logger) (*app.App, error)

// env carries state shared by subcommands once the root pre-run has loaded it.
type env struct {
	cfg    config.Config
	log    *slog.Logger
	newApp AppFactory
	stderr io.Writer
}

type rootFlags struct {
	dataRoot  string
	cameraID  int
	threshold float64
	normalize bool
	logLevel  string
}

// NewRootCmd builds the command tree. newApp is used by commands that open
// the camera; nil selects app.NewFromConfig.
func NewRootCmd(newApp AppFactory) *cobra.Command {
	if newApp == nil {
		newApp = app.NewFromConfig
	}
	e := &env{newApp: newApp, stderr: os.Stderr}
	var flags rootFlags

	root := &cobra.Command{
		Use:           "facultyid",
		Short:         "Faculty face registration and recognition",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			// Flags win over the environment when given explicitly.
			pf := cmd.Flags()
			if pf.Changed("data-root") {
				cfg.DataRoot = flags.dataRoot
			}
			if pf.Changed("camera") {
				cfg.CameraID = flags.cameraID
			}
			if pf.Changed("threshold") {
				cfg.MatchThreshold = flags.threshold
			}
			if pf.Changed("normalize") {
				cfg.Normalize = flags.normalize
			}
			if pf.Changed("log-level") {
				cfg.LogLevel = flags.logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			e.stderr = cmd.ErrOrStderr()
			e.cfg = cfg
			e.log = slog.New(slog.NewTextHandler(e.stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			slog.SetDefault(e.log)
			return nil
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.dataRoot, "data-root", config.DefaultDataRoot, "Directory holding one folder per enrolled identity")
	pf.IntVar(&flags.cameraID, "camera", 0, "Camera device index")
	pf.Float64Var(&flags.threshold, "threshold", config.DefaultMatchThreshold, "Match threshold (distance must be strictly below it)")
	pf.BoolVar(&flags.normalize, "normalize", false, "L2-normalize embeddings before comparing")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level: debug, info, warn or error")

	root.AddCommand(
		newServeCmd(e),
		newRegisterCmd(e),
		newRecognizeCmd(e),
		newListCmd(e),
		newDeleteCmd(e),
	)
	return root
}

// Execute runs the CLI with a context cancelled on Ctrl+C or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(nil).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
