package serve

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/clinica-juridica/expediente/internal/api/v2"
	"github.com/clinica-juridica/expediente/internal/cmd/base"
)

type Command struct {
	*base.Command

	flagConfig string
	flagAddr   string
}

func (c *Command) Synopsis() string {
	return "Run the server"
}

func (c *Command) Help() string {
	return `Usage: expediente serve -config=config.hcl

  Runs the expediente HTTP API. Case views re-verify every document of the
  case against its recorded hash.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("serve", flag.ContinueOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[EXPEDIENTE_CONFIG] Path to the HCL configuration file",
	)
	f.StringVar(
		&c.flagAddr, "addr", "",
		"Address to listen on, overriding server.addr",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagConfig == "" {
		c.flagConfig = os.Getenv("EXPEDIENTE_CONFIG")
	}

	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading config: %v", err))
		return 1
	}
	if c.flagAddr != "" {
		cfg.Server.Addr = c.flagAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, cleanup, err := c.Setup(ctx, cfg)
	if err != nil {
		c.Log.Error("error initializing server", "error", err)
		return 1
	}
	defer cleanup()

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewHandler(*srv),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.Log.Info("listening", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			c.Log.Error("error running server", "error", err)
			return 1
		}
	case <-ctx.Done():
		c.Log.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		c.Log.Error("error shutting down server", "error", err)
		return 1
	}
	return 0
}
