package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pixiechain/mediagate/pkg/journal"
	"github.com/pixiechain/mediagate/pkg/ledger"
	"github.com/pixiechain/mediagate/pkg/orchestrator"
	"github.com/pixiechain/mediagate/pkg/registry"
)

const shutdownGrace = 30 * time.Second

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}
	addServeFlags(cmd.Flags())
	return cmd
}

func addServeFlags(fs *pflag.FlagSet) {
	fs.String("listen-addr", configDefaults["listen_addr"].(string), "HTTP listen address")
	fs.String("rpc-url", configDefaults["rpc_url"].(string), "Ledger JSON-RPC endpoint")
	fs.Int64("chain-id", 0, "Chain id used for signing (0 asks the node)")
	fs.String("variants", configDefaults["variants"].(string), "Comma separated collection variants to mount")
	fs.String("registry", "", "Path to the collection registry YAML file")
	fs.String("journal", configDefaults["journal_path"].(string), "Path to the outcome journal (empty disables it)")
	fs.Int("tracker-workers", configDefaults["tracker_workers"].(int), "Concurrent confirmation waits")
	fs.Duration("recovery-timeout", configDefaults["recovery_timeout"].(time.Duration), "Upper bound on hash-mismatch recovery waits")
	fs.Bool("strict-status-codes", false, "Answer failures with 4xx/5xx status codes instead of 200")
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	variants, err := cfg.enabledVariants()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var chainID *big.Int
	if cfg.ChainID > 0 {
		chainID = big.NewInt(cfg.ChainID)
	}
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	client, err := ledger.Dial(dialCtx, cfg.RPCURL, chainID, cfg.PollInterval)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to ledger: %w", err)
	}
	defer client.Close()

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return err
	}

	var jr *journal.Journal
	var recorder orchestrator.Recorder
	if cfg.JournalPath != "" {
		jr, err = journal.Open(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer jr.Close()
		recorder = jr
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := orchestrator.NewMetrics(promReg)
	tracker := orchestrator.NewTracker(client, recorder, metrics, log, orchestrator.TrackerConfig{
		Workers:   cfg.TrackerWorkers,
		QueueSize: cfg.TrackerQueue,
	})
	orch := orchestrator.New(client, tracker, metrics, log, orchestrator.Config{RecoveryTimeout: cfg.RecoveryTimeout})

	srv := newServer(cfg, orch, reg, jr, variants, log, promReg)
	srv.chainID = client.ChainID()

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	log.WithFields(logrus.Fields{
		"listen_addr": cfg.ListenAddr,
		"rpc_url":     cfg.RPCURL,
		"chain_id":    srv.chainID.String(),
		"variants":    cfg.Variants,
		"network":     reg.Network(),
		"journal":     cfg.JournalPath,
	}).Info("Starting mediagate")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	if err := tracker.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("Tracker: pending confirmations abandoned at shutdown")
	}
	return nil
}
