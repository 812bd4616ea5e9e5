package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"provtrace/archive"
	"provtrace/archiver"
	"provtrace/config"
	"provtrace/gateway"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "", "Path to environment file")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := newLogger(cfg.Debug)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()
	log.Info("Starting archiver",
		zap.String("peer", cfg.Fabric.Endpoint),
		zap.String("channel", cfg.Fabric.Channel),
		zap.String("chaincode", cfg.Fabric.Chaincode),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledger, err := gateway.Connect(gateway.Options{
		Endpoint:    cfg.Fabric.Endpoint,
		GatewayPeer: cfg.Fabric.GatewayPeer,
		TLSCertPath: cfg.Fabric.TLSCertPath,
		MSPID:       cfg.Fabric.MSPID,
		CertPath:    cfg.Fabric.CertPath,
		KeyPath:     cfg.Fabric.KeyPath,
		Channel:     cfg.Fabric.Channel,
		Chaincode:   cfg.Fabric.Chaincode,
	}, log)
	if err != nil {
		log.Fatal("Failed to connect to ledger", zap.Error(err))
	}
	defer func() { _ = ledger.Close() }()

	store := archive.NewIPFSStore(cfg.IPFS.APIURL, cfg.IPFS.Timeout)

	coordinator := archiver.New(archiver.Config{
		Statuses:             cfg.Archiver.Statuses,
		WorkerPoolSize:       cfg.Archiver.WorkerPoolSize,
		BatchMode:            cfg.Archiver.BatchMode,
		RetryInitialInterval: cfg.Archiver.RetryInitialInterval,
		RetryMaxInterval:     cfg.Archiver.RetryMaxInterval,
		RetryMaxElapsedTime:  cfg.Archiver.RetryMaxElapsedTime,
	}, ledger, store, log)

	// Cancel the run context on SIGINT/SIGTERM; in-flight uploads abort
	// and the products they covered are picked up by the next run.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	if cfg.Archiver.Interval <= 0 {
		if _, err := coordinator.Run(ctx); err != nil {
			log.Error("Archival run failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	ticker := time.NewTicker(cfg.Archiver.Interval)
	defer ticker.Stop()
	for {
		if _, err := coordinator.Run(ctx); err != nil {
			log.Error("Archival run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			log.Info("Archiver stopped")
			return
		case <-ticker.C:
		}
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
