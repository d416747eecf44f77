package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nancliu/pm-agent/internal/web"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (overrides web.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	if servePort != 0 {
		a.cfg.Web.Port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.serve(ctx)
}

func (a *app) newHTTPServer() *http.Server {
	handler := web.NewServer(a.tasks, a.users, a.tokens, a.log, a.cfg.Web.CORSOrigins).Handler()
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Web.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// serve blocks until ctx is cancelled, then drains open requests.
func (a *app) serve(ctx context.Context) error {
	srv := a.newHTTPServer()

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("web server running at http://localhost%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.log.Infof("shutting down web server")
	return srv.Shutdown(shutdownCtx)
}
