package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ruteri/collection-factory/chain"
	"github.com/ruteri/collection-factory/codec"
	"github.com/ruteri/collection-factory/common"
	"github.com/ruteri/collection-factory/config"
	"github.com/ruteri/collection-factory/factory"
	"github.com/ruteri/collection-factory/httpserver"
	"github.com/ruteri/collection-factory/interfaces"
	"github.com/ruteri/collection-factory/ledger"
	"github.com/ruteri/collection-factory/metrics"
	"github.com/ruteri/collection-factory/programs"
	"github.com/ruteri/collection-factory/registry"
	"github.com/ruteri/collection-factory/storage"
)

// service holds the wired components of one factoryd process.
type service struct {
	factory *factory.Factory
	runtime *chain.Local
	auth    *httpserver.TokenAuthenticator
	metrics *metrics.Metrics
	closers []func() error
}

func (s *service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func buildService(ctx context.Context, cfg config.Config, log *slog.Logger) (_ *service, err error) {
	svc := &service{metrics: metrics.NewMetrics(common.PackageName)}
	defer func() {
		if err != nil {
			svc.Close()
		}
	}()

	jsonCodec := codec.JSON{}
	log.Info("Using payload codec", slog.String("codec", jsonCodec.Name()))
	storageFactory := storage.NewStorageBackendFactory(log)

	code, err := loadProgram(ctx, cfg.Program, storageFactory, log)
	if err != nil {
		return nil, err
	}

	host := programs.NewCollectionHost(jsonCodec, programs.NewWasmHost(cfg.Program.MemoryLimitPages, log))
	svc.runtime = chain.NewLocal(ledger.NewMemory(log), host, log)

	genesis, err := cfg.Runtime.GenesisBalances()
	if err != nil {
		return nil, err
	}
	factoryID := interfaces.AccountID(cfg.Factory.AccountID)
	if _, ok := genesis[factoryID]; !ok {
		genesis[factoryID] = interfaces.Balance{}
	}
	for id, balance := range genesis {
		if err := svc.runtime.Genesis(id, balance); err != nil {
			return nil, fmt.Errorf("genesis %s: %w", id, err)
		}
	}

	reg, err := openRegistry(ctx, cfg.Registry, svc)
	if err != nil {
		return nil, err
	}

	refunds, err := refundTransferer(ctx, cfg.Refunds, svc, log)
	if err != nil {
		return nil, err
	}

	if svc.auth, err = httpserver.NewTokenAuthenticator(cfg.Auth.TokenDigests()); err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	if len(cfg.Auth.Tokens) == 0 {
		log.Warn("No principals configured, creation requests will be refused")
	}

	opts := []factory.Option{
		factory.WithDepositCollector(svc.runtime),
		factory.WithMetrics(svc.metrics),
	}
	if len(cfg.Diagnostics.Storage) > 0 {
		locations, err := config.StorageLocations(cfg.Diagnostics.Storage)
		if err != nil {
			return nil, err
		}
		diagnostics, err := storageFactory.CreateMultiBackend(locations)
		if err != nil {
			return nil, fmt.Errorf("diagnostics storage: %w", err)
		}
		opts = append(opts, factory.WithDiagnostics(diagnostics))
	}

	deployCost, contractBalance, err := cfg.Factory.Amounts()
	if err != nil {
		return nil, err
	}

	svc.factory, err = factory.New(factory.Config{
		AccountID:         factoryID,
		DeployCost:        deployCost,
		ContractBalance:   contractBalance,
		Code:              code,
		InitMethod:        cfg.Program.InitMethod,
		StrictReservation: cfg.Factory.StrictReservation,
	}, reg, svc.runtime, refunds, jsonCodec, log, opts...)
	if err != nil {
		return nil, err
	}

	size, err := reg.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry size: %w", err)
	}
	svc.metrics.SetRegistrySize(size)

	return svc, nil
}

func loadProgram(ctx context.Context, cfg config.ProgramConfig, storageFactory interfaces.StorageBackendFactory, log *slog.Logger) ([]byte, error) {
	switch cfg.Source {
	case "file":
		code, err := os.ReadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("read program: %w", err)
		}
		log.Info("Loaded program image", slog.String("path", cfg.Path), slog.String("contentID", interfaces.ComputeID(code).String()))
		return code, nil

	case "storage":
		id, err := interfaces.ParseContentID(cfg.ContentID)
		if err != nil {
			return nil, err
		}
		locations, err := config.StorageLocations(cfg.Storage)
		if err != nil {
			return nil, err
		}
		backend, err := storageFactory.CreateMultiBackend(locations)
		if err != nil {
			return nil, fmt.Errorf("program storage: %w", err)
		}
		code, err := storage.FetchVerified(ctx, backend, id, interfaces.ProgramType)
		if err != nil {
			return nil, fmt.Errorf("fetch program %s: %w", id, err)
		}
		log.Info("Loaded program image", slog.String("backend", backend.Name()), slog.String("contentID", id.String()))
		return code, nil

	default:
		return programs.CollectionImage, nil
	}
}

func openRegistry(ctx context.Context, cfg config.RegistryConfig, svc *service) (interfaces.Registry, error) {
	if cfg.Driver != "sqlite" {
		return registry.NewMemoryRegistry(), nil
	}
	reg, err := registry.OpenSQLiteRegistry(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}
	svc.closers = append(svc.closers, reg.Close)
	return reg, nil
}

// refundTransferer pays refunds on the local runtime, and to eth-implicit creators on the
// configured EVM chain when the ethereum backend is selected.
func refundTransferer(ctx context.Context, cfg config.RefundConfig, svc *service, log *slog.Logger) (interfaces.Transferer, error) {
	if cfg.Backend != "ethereum" {
		return svc.runtime, nil
	}

	key, err := crypto.HexToECDSA(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid refund key: %w", err)
	}

	log.Info("Connecting to Ethereum RPC", "address", cfg.RPCAddr)
	client, err := ethclient.DialContext(ctx, cfg.RPCAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC: %w", err)
	}

	svc.closers = append(svc.closers, func() error {
		client.Close()
		return nil
	})

	eth, err := ledger.NewEthereumTransferer(ctx, client, key, log)
	if err != nil {
		return nil, err
	}
	log.Info("Refunds to eth-implicit accounts are paid on chain", slog.String("from", eth.From().Hex()))

	return &ledger.Router{Named: svc.runtime, Eth: eth}, nil
}
