package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/akozyrev/ragshield/internal/config"
	"github.com/akozyrev/ragshield/internal/core/ports"
	"github.com/akozyrev/ragshield/internal/core/usecase"
	"github.com/akozyrev/ragshield/internal/infrastructure/ai/mock"
	"github.com/akozyrev/ragshield/internal/infrastructure/ai/openai"
	"github.com/akozyrev/ragshield/internal/infrastructure/authz/httpfga"
	"github.com/akozyrev/ragshield/internal/infrastructure/authz/neo4jgraph"
	"github.com/akozyrev/ragshield/internal/infrastructure/conversation/redisconv"
	"github.com/akozyrev/ragshield/internal/infrastructure/queue/nats"
	"github.com/akozyrev/ragshield/internal/infrastructure/repository/postgres"
	"github.com/akozyrev/ragshield/internal/infrastructure/resilience"
	"github.com/akozyrev/ragshield/internal/infrastructure/seed"
	"github.com/akozyrev/ragshield/internal/infrastructure/vector/snapshot"
	"github.com/akozyrev/ragshield/internal/observability/metrics"
)

type App struct {
	Config  config.Config
	Metrics *metrics.APIMetrics

	Queue    *nats.Queue
	Searcher *snapshot.Searcher

	RetrieveUC     ports.RetrievalService
	FeedbackUC     ports.FeedbackService
	ConversationUC ports.ConversationReader
	DocumentUC     ports.DocumentAdmin
	AnalyticsUC    ports.AnalyticsService
	IndexUC        ports.DocumentIndexer

	Provenance ports.ProvenanceStore
	RelAdmin   ports.RelationshipAdmin

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	docs := postgres.NewDocumentStore(db, executor)
	if err := docs.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	provenance := postgres.NewProvenanceStore(db, executor)
	feedbackLedger := postgres.NewFeedbackStore(db, executor)
	embeddings := postgres.NewEmbeddingStore(db, executor)

	conversations := redisconv.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
		time.Duration(cfg.ConversationTTLHours)*time.Hour)
	if err := conversations.Ping(ctx); err != nil {
		slog.Warn("redis_unavailable_at_startup", "error", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Options{ResilienceExecutor: executor})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	apiMetrics := metrics.NewAPIMetrics("api")

	oracle, relAdmin, closeAuthz, err := buildAuthz(ctx, cfg, executor)
	if err != nil {
		queue.Close()
		_ = db.Close()
		return nil, err
	}
	oracle = &meteredOracle{next: oracle, metrics: apiMetrics}

	embedder, generator := buildAIProvider(cfg)

	searcher := snapshot.NewSearcher(embeddings)
	if err := searcher.Reload(ctx); err != nil {
		slog.Warn("initial_vector_snapshot_failed", "error", err)
	}

	retrieveUC := usecase.NewRetrieveUseCase(
		docs, embedder, searcher, oracle, generator, conversations, provenance,
		usecase.RetrieveConfig{
			Alpha:             cfg.Alpha,
			DefaultK:          cfg.TopK,
			SemanticTopK:      cfg.SemanticTopK,
			OracleTimeout:     time.Duration(cfg.OracleTimeoutMillis) * time.Millisecond,
			OracleConcurrency: cfg.OracleConcurrency,
			AnswerEnabled:     cfg.AnswerEnabled,
			HistoryLimit:      cfg.HistoryLimit,
			SnippetLength:     cfg.SnippetLength,
		},
	)
	feedbackUC := usecase.NewFeedbackUseCase(provenance, feedbackLedger, docs)
	documentUC := usecase.NewDocumentAdminUseCase(docs, queue)
	indexUC := usecase.NewIndexDocumentUseCase(docs, embedder, embeddings, queue)
	conversationUC := usecase.NewConversationUseCase(conversations)
	analyticsUC := usecase.NewAnalyticsUseCase(provenance, feedbackLedger, docs)

	if cfg.SeedFile != "" {
		loader := seed.NewLoader(docs, relAdmin, queue)
		if err := loader.LoadFile(ctx, cfg.SeedFile); err != nil {
			slog.Error("seed_load_failed", "path", cfg.SeedFile, "error", err)
		}
	}

	return &App{
		Config:         cfg,
		Metrics:        apiMetrics,
		Queue:          queue,
		Searcher:       searcher,
		RetrieveUC:     retrieveUC,
		FeedbackUC:     feedbackUC,
		ConversationUC: conversationUC,
		DocumentUC:     documentUC,
		AnalyticsUC:    analyticsUC,
		IndexUC:        indexUC,
		Provenance:     provenance,
		RelAdmin:       relAdmin,
		closeFn: func() {
			queue.Close()
			_ = conversations.Close()
			if closeAuthz != nil {
				closeAuthz()
			}
			_ = db.Close()
		},
	}, nil
}

// WatchIndexed keeps the in-memory vector snapshot in sync with the
// embedding store. Blocks until ctx is cancelled; run it in a goroutine.
func (a *App) WatchIndexed(ctx context.Context) error {
	return a.Queue.SubscribeIndexed(ctx, func(ctx context.Context, documentID string) error {
		if err := a.Searcher.Reload(ctx); err != nil {
			return fmt.Errorf("reload snapshot after %s: %w", documentID, err)
		}
		slog.Info("vector_snapshot_reloaded", "document_id", documentID, "vectors", a.Searcher.Size())
		return nil
	})
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func buildAuthz(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.AuthorizationOracle, ports.RelationshipAdmin, func(), error) {
	switch cfg.AuthzBackend {
	case "neo4j":
		store, err := neo4jgraph.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init graph authz: %w", err)
		}
		closeFn := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = store.Close(closeCtx)
		}
		return store, store, closeFn, nil
	default:
		timeout := time.Duration(cfg.OracleTimeoutMillis) * time.Millisecond
		client := httpfga.New(cfg.FGAURL, cfg.FGAToken, timeout, executor)
		// The external policy service owns its tuples; no local admin surface.
		return client, nil, nil, nil
	}
}

func buildAIProvider(cfg config.Config) (ports.Embedder, ports.AnswerGenerator) {
	switch cfg.AIProvider {
	case "openai":
		client := openai.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIEmbedModel, cfg.OpenAIChatModel)
		return client, client
	default:
		provider := mock.New(cfg.MockVectorDims)
		return provider, provider
	}
}

// meteredOracle counts check outcomes without changing decisions.
type meteredOracle struct {
	next    ports.AuthorizationOracle
	metrics *metrics.APIMetrics
}

func (o *meteredOracle) Check(ctx context.Context, subject, relation, object string) (bool, error) {
	allowed, err := o.next.Check(ctx, subject, relation, object)
	switch {
	case err != nil:
		o.metrics.RecordAuthzCheck("api", "error")
	case allowed:
		o.metrics.RecordAuthzCheck("api", "allowed")
	default:
		o.metrics.RecordAuthzCheck("api", "denied")
	}
	return allowed, err
}
