package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mastercactapus/gpnp/events"
	"github.com/mastercactapus/gpnp/logger"
	"github.com/spf13/cobra"
)

func newServeCmd(opt *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the job API, data files and live events over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opt.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			b := events.NewBroker("/events")
			a.p.AddListener(b)
			a.p.AddListener(logListener{})
			a.Machine().OnHeadActivity(b.HeadActivity)

			h := newAPI(a, b)

			srv := &http.Server{Addr: cfg.Server.Addr, Handler: h}
			errCh := make(chan error, 1)
			go func() {
				logger.Logger.Infow("listening", logger.FieldAddress, cfg.Server.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err = <-errCh:
				h.stop()
				b.Close()
				return err
			case <-ctx.Done():
			}

			logger.Logger.Info("shutting down")
			h.stop()
			b.Close()
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			return srv.Shutdown(shutCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Address to bind the server to (default server.addr)")
	return cmd
}
