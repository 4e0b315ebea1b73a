package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"lumen-wallet/go-core/internal/composition/walletserver"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	rpcAddr := flag.String("rpc-addr", "", "JSON-RPC listen address (overrides config)")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	dataDir := flag.String("data-dir", "", "Directory for wallet local data (optional)")
	logLevel := flag.String("log-level", "", "Log level override: debug | info | warn | error")
	flag.Parse()
	if *showVersion {
		fmt.Printf("walletd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *logLevel != "" {
		_ = os.Setenv("LUMEN_LOG_LEVEL", *logLevel)
	}

	srv, err := walletserver.NewRPCServerWithOptions(*rpcAddr, *configPath, *dataDir)
	if err != nil {
		log.Fatalf("walletd failed to initialize: %v", err)
	}

	log.Println("walletd starting")
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("walletd failed: %v", err)
	}
	log.Println("walletd stopped")
}
