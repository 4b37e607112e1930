package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"whatsapp-agent/handler"
	"whatsapp-agent/internal/config"
	"whatsapp-agent/internal/integrations/openai"
	"whatsapp-agent/internal/integrations/paramstore"
	"whatsapp-agent/internal/integrations/zapi"
	"whatsapp-agent/internal/repository"
	"whatsapp-agent/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(log)

	store, err := setup(ctx, &cfg)
	if err != nil {
		log.Error("startup failed", "code", usecase.ErrorConfiguration, "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	assistant, err := openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIAssistantID, openai.WithBaseURL(cfg.OpenAIBaseURL))
	if err != nil {
		log.Error("failed to create OpenAI client", "err", err)
		os.Exit(1)
	}
	gateway, err := zapi.New(cfg.ZAPIInstanceID, cfg.ZAPIToken, cfg.ZAPIClientToken,
		zapi.WithBaseURL(cfg.ZAPIBaseURL),
		zapi.WithRateLimit(cfg.ZAPIRatePerSec, 1),
	)
	if err != nil {
		log.Error("failed to create Z-API client", "err", err)
		os.Exit(1)
	}

	// ---- Orchestrator ----
	orch, err := usecase.NewOrchestrator(store, assistant, gateway, usecase.Config{
		Quiet: cfg.Debounce,
		Poll: usecase.PollPolicy{
			Interval: cfg.PollInterval,
			MaxPolls: cfg.PollMaxAttempts,
			MaxWait:  cfg.PollMaxWait,
		},
		TurnTimeout: cfg.TurnTimeout,
		SessionTTL:  cfg.SessionTTL,
		EventTTL:    cfg.EventTTL,
		AdminPhone:  cfg.AdminPhone,
	},
		usecase.WithLogger(log),
		usecase.WithClassifier(usecase.NewKeywordClassifier(cfg.HandoffPhrases, cfg.ContactNameTerms, cfg.ContactPhoneTerms)),
	)
	if err != nil {
		log.Error("failed to create orchestrator", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(orch, log)
	if err != nil {
		log.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	// Debounce timers only fire while the process is running, so Lambda is
	// suitable only with provisioned concurrency.
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(h.Handle)
		return
	}

	if err := serve(log, cfg.HTTPAddr, h, orch); err != nil {
		log.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
}

// setup resolves credentials and picks the state store. AWS config is only
// loaded when SSM or DynamoDB is in use.
func setup(ctx context.Context, cfg *config.Config) (usecase.Store, error) {
	needsAWS := cfg.ParamPrefix != "" || cfg.StateTable != ""
	var awsCfg aws.Config
	if needsAWS {
		loaded, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, err
		}
		awsCfg = loaded
	}

	if cfg.ParamPrefix != "" {
		params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if err != nil {
			return nil, err
		}
		if err := cfg.ResolveCredentials(ctx, params); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.StateTable != "" {
		return repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	}
	slog.Warn("STATE_TABLE not set; using in-memory state, which is lost on restart")
	return repository.NewMemoryStore(cfg.MemoryMaxEntries)
}

func serve(log *slog.Logger, addr string, h http.Handler, orch *usecase.Orchestrator) error {
	mux := http.NewServeMux()
	mux.Handle("/webhook", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-sigCtx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	return orch.Close(shutdownCtx)
}
