package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"escrowd/config"
	"escrowd/core/state"
	"escrowd/crypto"
	nativecommon "escrowd/native/common"
	"escrowd/native/escrow"
	"escrowd/observability/logging"
	"escrowd/rpc"
	"escrowd/storage"
	"escrowd/token"
)

const snapshotInterval = 30 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./config.toml", "path to the daemon configuration file")
	flag.Parse()

	env := os.Getenv("ESCROWD_ENV")
	if env == "" {
		env = "development"
	}
	logger := logging.Setup("escrowd", env, os.Getenv("ESCROWD_LOG_LEVEL"))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load configuration", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}
	if os.Getenv("ESCROWD_LOG_LEVEL") == "" {
		logger = logging.Setup("escrowd", env, cfg.LogLevel)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", slog.String("dir", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}
	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.String("dir", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)

	ledger := token.NewLedger(cfg.AssetSymbol, cfg.AssetDecimals)
	if snapshot, ok, err := manager.TokenSnapshotGet(); err != nil {
		logger.Error("failed to read token snapshot", slog.Any("error", err))
		os.Exit(1)
	} else if ok {
		if err := ledger.Restore(snapshot); err != nil {
			logger.Error("failed to restore token snapshot", slog.Any("error", err))
			os.Exit(1)
		}
	}

	operator, err := crypto.DecodeAddress(cfg.OperatorAddress)
	if err != nil {
		logger.Error("invalid operator address", slog.Any("error", err))
		os.Exit(1)
	}
	if err := checkRegistryMeta(manager, cfg); err != nil {
		logger.Error("registry metadata mismatch", slog.Any("error", err))
		os.Exit(1)
	}

	engine, err := escrow.NewEngine(ledger, operator.Raw())
	if err != nil {
		logger.Error("failed to construct escrow engine", slog.Any("error", err))
		os.Exit(1)
	}
	registry, err := escrow.NewRegistry(engine)
	if err != nil {
		logger.Error("failed to construct escrow registry", slog.Any("error", err))
		os.Exit(1)
	}
	registry.SetState(manager)
	registry.SetPauses(nativecommon.NewSwitch())
	engine.SetEmitter(state.NewLogEmitter(manager, logger, nil))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go snapshotLoop(manager, ledger, logger, stop)

	logger.Info("escrowd starting",
		slog.String("network", cfg.NetworkName),
		slog.String("operator", cfg.OperatorAddress),
		slog.String("asset", cfg.AssetSymbol),
		slog.String("rpc", cfg.RPCAddress))

	server := rpc.NewServer(registry, manager, ledger, logger, cfg.RPCAuthToken)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// checkRegistryMeta pins the operator and asset once per data directory so a
// restart against existing state cannot silently rebind orders to a different
// operator or asset.
func checkRegistryMeta(manager *state.Manager, cfg *config.Config) error {
	meta, ok, err := manager.RegistryMetaGet()
	if err != nil {
		return err
	}
	if !ok {
		return manager.RegistryMetaPut(state.RegistryMeta{
			Operator:    cfg.OperatorAddress,
			AssetSymbol: cfg.AssetSymbol,
			Decimals:    cfg.AssetDecimals,
		})
	}
	if meta.Operator != cfg.OperatorAddress {
		return fmt.Errorf("data directory was initialized with operator %s, configured %s", meta.Operator, cfg.OperatorAddress)
	}
	if meta.AssetSymbol != cfg.AssetSymbol || meta.Decimals != cfg.AssetDecimals {
		return fmt.Errorf("data directory was initialized with asset %s/%d, configured %s/%d",
			meta.AssetSymbol, meta.Decimals, cfg.AssetSymbol, cfg.AssetDecimals)
	}
	return nil
}

// snapshotLoop persists the token ledger periodically and once more on
// shutdown, then exits the process.
func snapshotLoop(manager *state.Manager, ledger *token.Ledger, logger *slog.Logger, stop <-chan os.Signal) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			persistSnapshot(manager, ledger, logger)
		case sig := <-stop:
			logger.Info("shutting down", slog.String("signal", sig.String()))
			persistSnapshot(manager, ledger, logger)
			os.Exit(0)
		}
	}
}

func persistSnapshot(manager *state.Manager, ledger *token.Ledger, logger *slog.Logger) {
	data, err := ledger.Snapshot()
	if err != nil {
		logger.Error("failed to snapshot token ledger", slog.Any("error", err))
		return
	}
	if err := manager.TokenSnapshotPut(data); err != nil {
		logger.Error("failed to persist token snapshot", slog.Any("error", err))
	}
}
