package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/go-i2p/go-sam-session/lib/client"
	"github.com/go-i2p/go-sam-session/lib/endpoint"
	"github.com/go-i2p/go-sam-session/lib/keystore"
	"github.com/go-i2p/go-sam-session/lib/session"
)

// createCmd establishes the configured session, prints its addresses and
// holds it until SIGINT or SIGTERM.
func createCmd(f *flags) *cobra.Command {
	var noWait bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a STREAM session and hold it open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.loadConfig(cmd)
			if err != nil {
				return err
			}

			log := newLogger(cfg.Debug, cmd.ErrOrStderr())
			log.WithFields(logrus.Fields{
				"version":   Version,
				"buildTime": BuildTime,
				"commit":    GitCommit,
			}).Debug("Starting sam-session")

			store := keystore.NewFileStore(log, cfg.KeyCacheSize)
			store.Strict = cfg.StrictKeyFile

			clientOpts := []client.Option{client.WithStore(store), client.WithLogger(log)}
			if f.dialer != nil {
				clientOpts = append(clientOpts, client.WithDialer(f.dialer))
			}
			opener := client.NewOpener(cfg.ClientConfig(), clientOpts...)

			metrics := session.NewMetrics()
			promReg := prometheus.NewRegistry()
			if err := metrics.Register(promReg); err != nil {
				return fmt.Errorf("register metrics: %w", err)
			}

			registry := session.NewRegistry(opener, session.WithLogger(log), session.WithMetrics(metrics))
			defer func() {
				if err := registry.Close(); err != nil {
					log.WithError(err).Warn("Closing sessions")
				}
			}()
			manager := endpoint.NewManager(registry, log)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.MetricsAddr != "" {
				srv := serveMetrics(cfg.MetricsAddr, promReg, log)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			log.WithFields(logrus.Fields{
				"sam":      cfg.SAMAddr,
				"nickname": cfg.Nickname,
			}).Info("Creating session")

			lease, err := manager.Acquire(ctx, cfg.Params())
			if err != nil {
				log.WithError(err).Error("Failed to create session")
				return err
			}
			defer func() {
				if err := lease.Release(); err != nil {
					log.WithError(err).Warn("Releasing session")
				}
			}()

			if err := printSession(cmd, lease.Session(), log); err != nil {
				return err
			}
			if noWait {
				return nil
			}

			log.Info("Session established, press Ctrl-C to close")
			<-ctx.Done()
			log.Info("Shutting down")
			return nil
		},
	}

	cmd.Flags().BoolVar(&noWait, "no-wait", false, "close the session right after printing it")
	return cmd
}

func printSession(cmd *cobra.Command, s *session.Session, log logrus.FieldLogger) error {
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintf(out, "nickname: %s\ndestination: %s\n", s.Nickname(), s.Destination()); err != nil {
		return err
	}
	b32, err := s.Base32()
	if err != nil {
		log.WithError(err).Warn("Cannot derive base32 address")
		return nil
	}
	_, err = fmt.Fprintf(out, "b32: %s\n", b32)
	return err
}

func serveMetrics(addr string, reg *prometheus.Registry, log logrus.FieldLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.WithField("addr", addr).Info("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server failed")
		}
	}()
	return srv
}
