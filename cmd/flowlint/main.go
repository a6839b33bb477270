package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/replikanti/flowlint/internal/adapter/cli"
	"github.com/replikanti/flowlint/internal/adapter/ghapp"
	actionlintengine "github.com/replikanti/flowlint/internal/adapter/lint/actionlint"
	"github.com/replikanti/flowlint/internal/adapter/observability"
	queuesqlite "github.com/replikanti/flowlint/internal/adapter/queue/sqlite"
	"github.com/replikanti/flowlint/internal/adapter/repoconfig"
	"github.com/replikanti/flowlint/internal/adapter/rest"
	"github.com/replikanti/flowlint/internal/adapter/webhook"
	"github.com/replikanti/flowlint/internal/config"
	"github.com/replikanti/flowlint/internal/domain"
	"github.com/replikanti/flowlint/internal/usecase/dispatch"
	"github.com/replikanti/flowlint/internal/usecase/review"
	"github.com/replikanti/flowlint/internal/version"
)

func main() {
	if err := run(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	// Cancellable context with signal handling for graceful shutdown.
	// A second signal is absorbed by the same context; the first drain
	// keeps its full timeout.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPaths: defaultConfigPaths(),
		FileName:    "flowlint",
		EnvPrefix:   "FLOWLINT",
	})
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logger := observability.NewLogrusLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	root := cli.NewRootCommand(cli.Dependencies{
		RunServer: func(ctx context.Context) error {
			return runServer(ctx, cfg, logger)
		},
		RunWorker: func(ctx context.Context) error {
			return runWorker(ctx, cfg, logger)
		},
		Args: cli.Arguments{
			OutWriter: os.Stdout,
			ErrWriter: os.Stderr,
		},
		Version: version.Value(),
	})

	return root.ExecuteContext(ctx)
}

// runServer hosts the webhook ingress: signature gate, classifier, queue
// admission, health endpoints.
func runServer(ctx context.Context, cfg config.Config, logger observability.Logger) error {
	if cfg.Server.WebhookSecret == "" {
		return errors.New("server.webhookSecret is required")
	}

	queue, err := openQueue(cfg.Queue)
	if err != nil {
		return err
	}
	defer queue.Close()

	classifier := dispatch.NewClassifier(cfg.GitHub.CheckName, cfg.GitHub.AppSlug)
	handler := webhook.NewHandler(cfg.Server.WebhookSecret, classifier, queue, logger)
	health := webhook.NewHealthChecker(queue, cfg.Queue.DegradedThreshold)

	server := webhook.NewServer(webhook.ServerOptions{
		Addr:               cfg.Server.Addr,
		MaxBodyBytes:       cfg.Server.MaxBodyBytes,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		TrustProxy:         cfg.Server.TrustProxy,
	}, handler, health)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logger.LogInfo(ctx, "webhook server listening", map[string]interface{}{
		"addr": cfg.Server.Addr,
	})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Queue.DrainTimeout, 45*time.Second))
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runWorker hosts the review worker pool.
func runWorker(ctx context.Context, cfg config.Config, logger observability.Logger) error {
	if cfg.GitHub.AppID == 0 || cfg.GitHub.PrivateKeyBase64 == "" {
		return errors.New("github.appId and github.privateKeyBase64 are required")
	}

	queue, err := openQueue(cfg.Queue)
	if err != nil {
		return err
	}
	defer queue.Close()

	httpClient := &http.Client{Timeout: config.Duration(cfg.GitHub.Timeout, 30*time.Second)}
	auth, err := ghapp.NewAppAuth(cfg.GitHub.AppID, cfg.GitHub.PrivateKeyBase64, cfg.GitHub.BaseURL, httpClient)
	if err != nil {
		return fmt.Errorf("github app auth: %w", err)
	}

	client := ghapp.NewClient(auth)
	client.SetBaseURL(cfg.GitHub.BaseURL)
	client.SetLogger(observability.NewCallLogger(logger))
	client.SetTimeout(config.Duration(cfg.GitHub.Timeout, 30*time.Second))
	client.SetRetryConfig(rest.RetryConfig{
		MaxRetries:     cfg.GitHub.MaxRetries,
		InitialBackoff: config.Duration(cfg.GitHub.InitialBackoff, 2*time.Second),
		MaxBackoff:     config.Duration(cfg.GitHub.MaxBackoff, 32*time.Second),
		Multiplier:     2.0,
	})

	checks := ghapp.NewCheckService(client, cfg.GitHub.CheckName, cfg.GitHub.AppSlug)
	configLoader := repoconfig.NewLoader(client, lintDefaults(cfg.Lint), logger)

	orchestrator := review.NewOrchestrator(review.OrchestratorDeps{
		Checks:      checks,
		Engine:      actionlintengine.NewEngine(),
		Config:      configLoader,
		Logger:      logger,
		DocsBaseURL: cfg.Lint.RuleDocsBaseURL,
	})

	pool := review.NewPool(queue, orchestrator, logger, review.PoolOptions{
		Workers:      cfg.Queue.Workers,
		DrainTimeout: config.Duration(cfg.Queue.DrainTimeout, 45*time.Second),
	})

	pool.Start(ctx)
	<-ctx.Done()

	// ctx is already canceled; draining runs on its own clock.
	pool.Drain(context.Background())
	return nil
}

func openQueue(cfg config.QueueConfig) (*queuesqlite.Queue, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create queue directory: %w", err)
		}
	}
	queue, err := queuesqlite.New(cfg.Path, queuesqlite.Options{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: config.Duration(cfg.InitialBackoff, 2*time.Second),
		LeaseTTL:       config.Duration(cfg.LeaseTTL, 5*time.Minute),
	})
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}
	return queue, nil
}

func lintDefaults(cfg config.LintConfig) domain.LintConfig {
	return domain.LintConfig{
		IncludeGlobs: cfg.IncludeGlobs,
		IgnoreGlobs:  cfg.IgnoreGlobs,
		SummaryLimit: cfg.SummaryLimit,
		Annotations:  cfg.Annotations,
		RuleSeverity: cfg.RuleSeverity,
	}
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "flowlint"))
	}
	return paths
}
