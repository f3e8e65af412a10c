package main

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/quantsmith/quantsmith/internal/api"
	"github.com/quantsmith/quantsmith/internal/api/handlers"
	"github.com/quantsmith/quantsmith/internal/catalog"
	"github.com/quantsmith/quantsmith/internal/config"
	"github.com/quantsmith/quantsmith/internal/signing"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve [output-dir]",
	Short: "Serve an output directory over HTTP",
	Long: `Starts a read-only HTTP server over an output directory:

  GET /api/v1/health            liveness
  GET /api/v1/manifest          model.json as stored
  GET /api/v1/manifest/verify   recomputed digest and signature status
  GET /api/v1/artifact          the artifact bytes
  GET /api/v1/models            manifests found below the directory`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

var servePubKey string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8750", "listen address")
	serveCmd.Flags().StringVar(&servePubKey, "pubkey", "", "PEM public key used to check manifest signatures")
	bindFlags(serveCmd, map[string]string{
		"server.addr": "addr",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	dir := cfg.Output.Dir
	if len(args) == 1 {
		dir = args[0]
	}

	cat, err := catalog.New(dir, log.StandardLogger())
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"dir": dir, "models": cat.Len()}).Info("catalog loaded")

	var pub *rsa.PublicKey
	if servePubKey != "" {
		if pub, err = signing.LoadPublicKey(servePubKey); err != nil {
			return err
		}
	}

	router := api.SetupRoutes(handlers.NewHandlers(dir, cat, pub, log.StandardLogger()))
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s\n", dir, cfg.Server.Addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
