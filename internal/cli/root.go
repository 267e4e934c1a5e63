// Package cli wires configuration, logging and the services into the
// coloring-care command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ironsheep/coloring-care/internal/config"
	"github.com/ironsheep/coloring-care/internal/logging"
	"github.com/ironsheep/coloring-care/internal/report"
	"github.com/ironsheep/coloring-care/internal/store"
)

// BuildInfo is set by ldflags in main.
type BuildInfo struct {
	Version   string
	BuildTime string
	GitCommit string
}

// app holds state shared by the subcommands, populated in
// PersistentPreRunE.
type app struct {
	build      BuildInfo
	configPath string

	source *config.Source
	cfg    *config.Config
	log    *zap.Logger
}

// NewRootCmd builds the command tree. Running the root command without a
// subcommand starts the MCP server.
func NewRootCmd(build BuildInfo) *cobra.Command {
	a := &app{build: build}

	root := &cobra.Command{
		Use:          "coloring-care",
		Short:        "Coloring templates and attention tracking for care sessions",
		Version:      build.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
		RunE: a.runServe,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default: ./config/config.yaml)")

	root.AddCommand(
		newServeCmd(a),
		newHTTPCmd(a),
		newOutlineCmd(a),
		newVersionCmd(a),
	)
	return root
}

// Execute runs the root command. Exits with code 1 on error.
func Execute(build BuildInfo) {
	if err := NewRootCmd(build).Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger. The console log
// goes to stderr because stdout carries the MCP protocol.
func (a *app) setup(cmd *cobra.Command) error {
	a.source = config.NewSource(a.configPath)
	cfg, err := a.source.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	a.cfg = cfg

	log, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	a.log = log

	if file := a.source.File(); file != "" {
		a.log.Debug("Loaded configuration", zap.String("file", file))
	}
	return nil
}

// services are the shared backends of the long-running commands.
type services struct {
	store    *store.Store
	reporter *report.Client
}

func (a *app) openServices(ctx context.Context) (*services, error) {
	st, err := store.Open(ctx, a.cfg.Database, a.cfg.Storage, a.log)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	reporter, err := report.NewFromConfig(ctx, a.cfg.Report, a.log)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating report client: %w", err)
	}
	return &services{store: st, reporter: reporter}, nil
}

func (s *services) close(log *zap.Logger) {
	if err := s.reporter.Close(); err != nil {
		log.Warn("Could not close report client", zap.Error(err))
	}
	if err := s.store.Close(); err != nil {
		log.Warn("Could not close storage", zap.Error(err))
	}
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("coloring-care %s\n", a.build.Version)
			cmd.Printf("  Build time: %s\n", a.build.BuildTime)
			cmd.Printf("  Git commit: %s\n", a.build.GitCommit)
		},
	}
}
