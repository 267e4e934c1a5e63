package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ironsheep/coloring-care/internal/httpapi"
	"github.com/ironsheep/coloring-care/internal/nudge"
	"github.com/ironsheep/coloring-care/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE:  a.runServe,
	}
}

func (a *app) runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := a.openServices(ctx)
	if err != nil {
		return err
	}
	defer svc.close(a.log)

	a.log.Info("Starting MCP server",
		zap.String("version", a.build.Version),
		zap.String("commit", a.build.GitCommit),
	)
	srv := server.New(server.Options{
		Config:   a.cfg,
		Reporter: svc.reporter,
		Store:    svc.store,
		Clock:    nudge.SystemClock{},
		Log:      a.log,
		Version:  a.build.Version,
	})
	a.source.Watch(a.log, srv.ApplyConfig)

	return srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}

func newHTTPCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "http",
		Short: "Run the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := a.openServices(ctx)
			if err != nil {
				return err
			}
			defer svc.close(a.log)

			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			api := httpapi.New(httpapi.Options{
				Config:   a.cfg,
				Reporter: svc.reporter,
				Store:    svc.store,
				Clock:    nudge.SystemClock{},
				Log:      a.log,
				Version:  a.build.Version,
			})
			a.source.Watch(a.log, api.ApplyConfig)

			return api.Serve(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: http.addr from config)")
	return cmd
}
