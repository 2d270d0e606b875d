package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"rwalend/gateway"
	"rwalend/ledger"
	"rwalend/observability/logging"
	telemetry "rwalend/observability/otel"
	"rwalend/origination"
	"rwalend/services/origind/config"
	"rwalend/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/origind/config.yaml", "path to origind config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ORIGIND_ENV"))
	logger := logging.Setup("origind", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "origind",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	backend, err := ledger.Dial(cfg.RPC.Endpoint)
	if err != nil {
		log.Fatalf("dial rpc endpoint: %v", err)
	}
	defer backend.Close()

	signerKey := strings.TrimSpace(os.Getenv(cfg.RPC.SignerKeyEnv))
	if signerKey == "" {
		log.Fatalf("signer key required: set %s", cfg.RPC.SignerKeyEnv)
	}

	tiers := origination.DefaultTiers()
	if cfg.TierCatalog != "" {
		tiers, err = origination.LoadTiers(cfg.TierCatalog)
		if err != nil {
			log.Fatalf("load tier catalog: %v", err)
		}
	}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	store := storage.NewStore(db)

	networks := cfg.NetworkContexts()
	registry := ledger.NewRegistry(networks)
	clients := make(map[uint64]*ledger.Client, len(networks))
	signers := make(map[uint64]*ledger.LocalSigner, len(networks))
	for _, network := range networks {
		clients[network.ChainID] = ledger.NewClient(backend, network)
		signer, err := ledger.NewLocalSigner(signerKey, network.ChainID, backend)
		if err != nil {
			log.Fatalf("configure signer for chain %d: %v", network.ChainID, err)
		}
		signers[network.ChainID] = signer
	}

	metadata := origination.NewMetadataResolver(cfg.Metadata.Timeout.Duration, cfg.Metadata.FetchesPerSecond)
	diag := origination.SlogDiagnostics{Log: logger}

	auth, err := gateway.NewAuthenticator(cfg.Auth.APITokens)
	if err != nil {
		log.Fatalf("configure auth: %v", err)
	}
	limiter := gateway.NewRateLimiter(map[string]gateway.RateLimit{
		"api": {RequestsPerMinute: cfg.RateLimits.RequestsPerMinute, Burst: cfg.RateLimits.Burst},
	})

	server, err := gateway.NewServer(gateway.Config{
		Registry: registry,
		Sessions: func(chainID uint64) (ledger.Session, error) {
			signer, ok := signers[chainID]
			if !ok {
				return ledger.Session{}, fmt.Errorf("no signer for chain %d", chainID)
			}
			return ledger.Session{
				Address:   signer.Address(),
				ChainID:   chainID,
				Connected: true,
				Sender:    signer,
			}, nil
		},
		NewWizard: func(chainID uint64) (*origination.Wizard, error) {
			client, ok := clients[chainID]
			if !ok {
				return nil, fmt.Errorf("no client for chain %d", chainID)
			}
			return origination.NewWizard(origination.WizardDeps{
				Resolver:    origination.NewResolver(client, metadata, logger, diag),
				Calculator:  origination.NewCalculator(client),
				Validator:   origination.NewValidator(client, client, client, logger, diag),
				Allowance:   origination.NewAllowanceOrchestrator(client, client, client, logger),
				Submitter:   origination.NewSubmitter(client, client, client, logger, diag),
				Tiers:       tiers,
				SettleDelay: cfg.SettleDelay.Duration,
				Log:         logger,
				Diag:        diag,
			}), nil
		},
		Store:       store,
		Auth:        auth,
		RateLimiter: limiter,
		Log:         logger,
	})
	if err != nil {
		log.Fatalf("configure server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("origind listening", "addr", cfg.ListenAddress, "chains", len(networks))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err.Error())
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}
}
