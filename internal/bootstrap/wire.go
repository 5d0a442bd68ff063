// Package bootstrap is Switchboard's composition root: it loads config,
// dials every backing store, constructs each component, and wires them
// into the connectors that feed the pipeline.
//
// Grounded on email-service/internal/bootstrap/wire.go's NewApp() (*App,
// func(), error) shape (single construction function returning a
// ready-to-Start app plus a cleanup closure) and its Start/Stop pair.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	_ "github.com/lib/pq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tzeusy/switchboard/internal/audit"
	"github.com/tzeusy/switchboard/internal/buffer"
	"github.com/tzeusy/switchboard/internal/classifier"
	"github.com/tzeusy/switchboard/internal/config"
	"github.com/tzeusy/switchboard/internal/connectors"
	"github.com/tzeusy/switchboard/internal/connectors/amqpconnector"
	"github.com/tzeusy/switchboard/internal/connectors/httpconnector"
	"github.com/tzeusy/switchboard/internal/dedup"
	"github.com/tzeusy/switchboard/internal/dlq"
	"github.com/tzeusy/switchboard/internal/inbox"
	applogger "github.com/tzeusy/switchboard/internal/logger"
	"github.com/tzeusy/switchboard/internal/metrics"
	"github.com/tzeusy/switchboard/internal/pipeline"
	"github.com/tzeusy/switchboard/internal/registry"
	"github.com/tzeusy/switchboard/internal/reliability/circuitbreaker"
	"github.com/tzeusy/switchboard/internal/reliability/ratelimit"
	"github.com/tzeusy/switchboard/internal/reliability/retry"
	"github.com/tzeusy/switchboard/internal/router"
	"github.com/tzeusy/switchboard/internal/triage"
)

// App bundles every long-lived component the two connectors and the
// background refresh loops need, plus the config they were built from.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	pgPool   *pgxpool.Pool
	auditDB  *sql.DB
	redis    *redis.Client
	amqpConn *amqp.Connection
	amqpCh   *amqp.Channel

	partitions   *inbox.PartitionManager
	rules        *triage.RuleCache
	instructions *router.InstructionCache
	discoverer   *registry.Discoverer

	httpConnector *httpconnector.Connector
	amqpConnector *amqpconnector.Connector

	DLQ      *dlq.Store
	Audit    *audit.Store
	Registry *registry.Store
	Replayer *dlq.Replayer
	Inbox    *inbox.Store

	ingest connectors.IngestFunc

	shutdownTracing func(context.Context) error
}

// NewApp loads config, dials every backing store, and wires the full
// Switchboard pipeline. The returned cleanup func releases every
// connection NewApp opened. When NewApp returns an error, cleanup is nil,
// so it is only invoked when err is nil.
func NewApp(ctx context.Context) (*App, func(), error) {
	applogger.Init()
	log := applogger.Logger

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	shutdownTracing, err := metrics.InitTracing(ctx, cfg.OTELEndpoint, "dev")
	if err != nil {
		return nil, nil, fmt.Errorf("initializing tracing: %w", err)
	}

	pgPool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing postgres pool: %w", err)
	}

	auditDB, err := sql.Open("postgres", cfg.AuditDBDSN)
	if err != nil {
		pgPool.Close()
		return nil, nil, fmt.Errorf("opening audit/dlq database/sql handle: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	amqpConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		pgPool.Close()
		auditDB.Close()
		return nil, nil, fmt.Errorf("dialing rabbitmq: %w", err)
	}
	amqpCh, err := amqpConn.Channel()
	if err != nil {
		pgPool.Close()
		auditDB.Close()
		amqpConn.Close()
		return nil, nil, fmt.Errorf("opening rabbitmq channel: %w", err)
	}
	if err := amqpCh.ExchangeDeclare(cfg.RabbitExchange, "topic", true, false, false, false, nil); err != nil {
		pgPool.Close()
		auditDB.Close()
		amqpConn.Close()
		return nil, nil, fmt.Errorf("declaring rabbitmq exchange: %w", err)
	}

	// C2: dedupe cache
	dedupeCache := dedup.NewCache(redisClient)

	// C3: inbox + partition management
	inboxStore := inbox.NewStore(pgPool, dedupeCache)
	partitions := inbox.NewPartitionManager(pgPool, cfg.RetentionMonths, log)

	// C4: triage rules + thread affinity
	ruleCache := triage.NewRuleCache(pgPool)
	affinityCache := triage.NewAffinityCache(redisClient, 24*time.Hour)
	evaluator := triage.NewEvaluator(ruleCache, affinityCache)

	// C5: classifier escalation, timeout-bounded with a fallback target
	httpClient := router.NewHTTPClient(30 * time.Second)
	classifierSink := classifier.NewHTTPSink(httpClient, cfg.ClassifierEndpointURL)
	timeoutClassifier := classifier.NewTimeoutFallback(
		classifierSink,
		time.Duration(cfg.ClassifierTimeoutMs)*time.Millisecond,
		cfg.ClassifierDefaultTarget,
		log,
	)

	// C7: butler registry + descriptor discovery
	registryStore := registry.NewStore(pgPool)
	discoverer := registry.NewDiscoverer(registryStore, log)

	// C6: reliability fabric + dispatcher
	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		N: cfg.Circuit.N, W: cfg.Circuit.W, D: cfg.Circuit.D, P: cfg.Circuit.P,
	})
	defaultTier := cfg.RateLimitTiers["default"]
	limiter := ratelimit.NewBucket(redisClient, defaultTier.Capacity, defaultTier.RefillPerSec)
	retryCfg := retry.LoadConfig()
	instructions := router.NewInstructionCache(pgPool)
	dispatcher := router.NewDispatcher(registryStore, breakers, limiter, httpClient, retryCfg, instructions, log)

	// C9: admission buffer (starvation-guarded tiered queue)
	queue := buffer.NewQueue(cfg.BufferStarvationLimit, cfg.BufferMaxDepth, cfg.BufferHardLimit)

	// C10: dead-letter queue (database/sql, mirrors the lower-throughput
	// append-mostly persistence split documented for this table)
	dlqStore := dlq.NewStore(auditDB)

	// C11: operator audit trail (database/sql, append-only via DB trigger)
	auditStore := audit.NewStore(auditDB, log)

	// C13: connector registry + rollup heartbeat/ingest counters
	connectorStore := connectors.NewStore(pgPool)

	pl := &pipeline.Pipeline{
		Inbox:      inboxStore,
		Triage:     evaluator,
		Classifier: timeoutClassifier,
		Dispatcher: dispatcher,
		Queue:      queue,
		DLQ:        dlqStore,
		Connectors: connectorStore,
		Log:        log,
	}

	httpConn := httpconnector.New(httpconnector.Config{
		Addr:             cfg.HTTPIngestAddr,
		RateLimitEnabled: cfg.HTTPRateLimitEnabled,
		RateLimitLimit:   cfg.HTTPRateLimitLimit,
		RateLimitWindow:  cfg.HTTPRateLimitWindow,
		ConnectorType:    "http",
		EndpointIdentity: cfg.HTTPIngestAddr,
	}, log, connectorStore)

	amqpConn2 := amqpconnector.New(amqpConn, amqpCh, amqpconnector.Config{
		Exchange:         cfg.RabbitExchange,
		Queue:            cfg.AMQPQueue,
		RoutingKey:       cfg.AMQPRoutingKey,
		DLXName:          cfg.AMQPDLXName,
		DLRoutingKey:     cfg.AMQPDLRoutingKey,
		PrefetchCount:    cfg.AMQPPrefetch,
		WorkerPoolSize:   cfg.AMQPWorkerPoolSize,
		ConnectorType:    "amqp",
		EndpointIdentity: cfg.AMQPQueue,
	}, log, connectorStore)

	replayer := dlq.NewReplayer(dlqStore, connectors.IngestFunc(pl.Ingest), log)

	app := &App{
		cfg:             cfg,
		log:             log,
		pgPool:          pgPool,
		auditDB:         auditDB,
		redis:           redisClient,
		amqpConn:        amqpConn,
		amqpCh:          amqpCh,
		partitions:      partitions,
		rules:           ruleCache,
		instructions:    instructions,
		discoverer:      discoverer,
		httpConnector:   httpConn,
		amqpConnector:   amqpConn2,
		DLQ:             dlqStore,
		Audit:           auditStore,
		Registry:        registryStore,
		Replayer:        replayer,
		Inbox:           inboxStore,
		ingest:          connectors.IngestFunc(pl.Ingest),
		shutdownTracing: shutdownTracing,
	}

	cleanup := func() {
		log.Info().Msg("shutting down switchboard")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Stop(ctx)
		if app.shutdownTracing != nil {
			_ = app.shutdownTracing(ctx)
		}
		app.pgPool.Close()
		_ = app.auditDB.Close()
		_ = app.redis.Close()
		_ = app.amqpCh.Close()
		_ = app.amqpConn.Close()
	}

	return app, cleanup, nil
}

// Start brings up the background refresh loops and both connectors. It
// blocks on the HTTP connector, same as email-service's App.Start blocks
// on its web server.
func (a *App) Start(ctx context.Context) error {
	if err := a.partitions.EnsureCurrentAndNext(ctx); err != nil {
		return fmt.Errorf("ensuring inbox partitions: %w", err)
	}
	if _, err := a.discoverer.Scan(ctx, a.cfg.RosterDir); err != nil {
		a.log.Warn().Err(err).Msg("butler descriptor discovery failed at startup")
	}

	a.rules.StartRefreshLoop(ctx, time.Duration(a.cfg.TriageRefreshSeconds)*time.Second, triage.NewLoader(a.pgPool), func(err error) {
		a.log.Warn().Err(err).Msg("triage rule refresh failed")
	})
	a.instructions.StartRefreshLoop(ctx, time.Duration(a.cfg.TriageRefreshSeconds)*time.Second, a.log)
	go a.runPartitionMaintenance(ctx)

	go func() {
		if err := a.amqpConnector.Start(ctx, a.ingest); err != nil {
			a.log.Error().Err(err).Msg("amqp connector stopped")
		}
	}()

	a.log.Info().Str("addr", a.cfg.HTTPIngestAddr).Msg("starting switchboard http ingest")
	return a.httpConnector.Start(ctx, a.ingest)
}

func (a *App) Stop(ctx context.Context) error {
	return nil
}

func (a *App) runPartitionMaintenance(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.partitions.EnsureCurrentAndNext(ctx); err != nil {
				a.log.Warn().Err(err).Msg("partition creation failed")
			}
			if err := a.partitions.PruneExpired(ctx); err != nil {
				a.log.Warn().Err(err).Msg("partition pruning failed")
			}
		}
	}
}
