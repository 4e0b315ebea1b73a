// Package walletserver wires the wallet core into a runnable daemon:
// storage backend, vault, event queue, window registry, dispatcher, relay
// and the JSON-RPC transport.
package walletserver

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"lumen-wallet/go-core/internal/config"
	"lumen-wallet/go-core/internal/dispatch"
	"lumen-wallet/go-core/internal/events"
	"lumen-wallet/go-core/internal/platform/privacylog"
	"lumen-wallet/go-core/internal/rpc"
	"lumen-wallet/go-core/internal/storage"
	"lumen-wallet/go-core/internal/vault"
	"lumen-wallet/go-core/internal/windows"
)

// NewRPCServerWithOptions composes a wallet daemon from config path and
// flag overrides. An empty data dir selects the in-memory store, which
// keeps nothing across restarts.
func NewRPCServerWithOptions(rpcAddr, configPath, dataDir string) (*rpc.Server, error) {
	cfg := config.LoadFromPath(configPath)
	if rpcAddr != "" {
		cfg.RPCAddr = rpcAddr
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	log := slog.New(privacylog.WrapHandler(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))
	slog.SetDefault(log)

	var store storage.Store
	var badgerStore *storage.BadgerStore
	if cfg.DataDir != "" {
		opened, err := storage.OpenBadgerStore(filepath.Join(cfg.DataDir, "walletdb"))
		if err != nil {
			return nil, err
		}
		badgerStore = opened
		store = opened
	} else {
		log.Warn("no data dir configured, state will not survive restarts")
		store = storage.NewMemoryStore()
	}

	relay := rpc.NewRelay(log)
	queue := events.NewQueue(store)
	registry := windows.NewRegistry(store, relay, log)
	v := vault.New(store, log)
	dispatcher := dispatch.New(queue, registry, relay, v, dispatch.Ed25519Signer{}, log)

	if err := registry.Hydrate(context.Background()); err != nil {
		log.Warn("window registry hydrate failed", "error", err)
	}

	server := rpc.NewServer(cfg.RPCAddr, dispatcher, queue, v, log)
	server.AttachRelay(relay)
	if badgerStore != nil {
		server.OnShutdown(badgerStore)
	}
	return server, nil
}
