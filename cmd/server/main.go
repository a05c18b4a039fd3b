package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"durakv/internal/config"
	"durakv/internal/httpstats"
	"durakv/internal/logger"
	"durakv/internal/metrics"
	"durakv/internal/server"
	"durakv/internal/store"

	"github.com/valyala/fasthttp"
)

func main() {
	cfgPath := flag.String("config", "", "Config path")
	flag.Parse()

	cfg, err := config.LoadConfigurationFromFile(*cfgPath)
	if err != nil {
		log.Fatalf("Config Error: %v", err)
	}

	if err := logger.InitializeLogger(cfg.LogDirectoryPath, cfg.LogSeverityLevel); err != nil {
		log.Fatal(err)
	}
	defer logger.ShutdownLogger()

	if cfg.MaximumCpuCount > 0 {
		runtime.GOMAXPROCS(cfg.MaximumCpuCount)
	}

	if err := os.MkdirAll(cfg.DataDirectoryPath, 0755); err != nil {
		logger.LogErrorEvent("failed to create data directory: %v", err)
		os.Exit(1)
	}

	logger.LogInfoEvent("recovering store from %s and %s", cfg.SnapshotFilePath, cfg.WriteAheadLogFilePath)
	st, err := store.New(cfg.WriteAheadLogFilePath, cfg.SnapshotFilePath, cfg.BloomFilterBits, cfg.BloomFilterHashes)
	if err != nil {
		logger.LogErrorEvent("recovery failed: %v", err)
		os.Exit(1)
	}

	metrics.StartSystemMonitor()

	tcpAddr := fmt.Sprintf(":%d", cfg.TCPPort)
	srv := server.New(st, tcpAddr, cfg.SnapshotInterval)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.LogErrorEvent("TCP server stopped: %v", err)
		}
	}()

	statsRouter := &httpstats.Router{St: st}
	httpAddr := fmt.Sprintf(":%d", cfg.HTTPStatsPort)
	go func() {
		logger.LogInfoEvent("HTTP stats listening on %s", httpAddr)
		if err := fasthttp.ListenAndServe(httpAddr, statsRouter.GetFastHTTPHandler()); err != nil {
			logger.LogErrorEvent("HTTP stats server stopped: %v", err)
		}
	}()

	waitForShutdownSignal()

	logger.LogInfoEvent("shutting down: taking final snapshot")
	if err := srv.Close(); err != nil {
		logger.LogErrorEvent("error closing TCP server: %v", err)
	}
	if err := st.CreateSnapshot(); err != nil {
		logger.LogErrorEvent("final snapshot failed: %v", err)
	}
	if err := st.Close(); err != nil {
		logger.LogErrorEvent("error closing store: %v", err)
	}
}

func waitForShutdownSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
