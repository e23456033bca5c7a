package di

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"PriceWatch/internal/domain/repository"
	"PriceWatch/internal/handler/api"
	mid "PriceWatch/internal/middleware"
	internalrepo "PriceWatch/internal/repository"
	"PriceWatch/internal/service/bitget"
	svccache "PriceWatch/internal/service/cache"
	"PriceWatch/internal/service/notify"
	"PriceWatch/internal/service/ratelimit"
	"PriceWatch/internal/service/telegram"
	"PriceWatch/internal/usecase"
	"PriceWatch/pkg/cache"
	pkgch "PriceWatch/pkg/clickhouse"
	"PriceWatch/pkg/config"
	xhttp "PriceWatch/pkg/http"
	"PriceWatch/pkg/http/middleware"
	pkgkafka "PriceWatch/pkg/kafka"
	applogger "PriceWatch/pkg/logger"
	"PriceWatch/pkg/metrics"
	"PriceWatch/pkg/queue"
	"PriceWatch/pkg/server"

	"github.com/bwmarrin/snowflake"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
)

const initTimeout = 10 * time.Second

// ProvideLogger builds the zerolog-backed application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideRedis dials Redis only when the store or the cache needs it.
func ProvideRedis(cfg *config.Config) (*cache.RedisCache, error) {
	if cfg.Store.Type != "redis" && cfg.Cache.Type == "memory" && !cfg.Queue.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisClientName("pricewatch-"+cfg.Environment),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCache selects the lock cache backing cooldowns.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	switch cfg.Cache.Type {
	case "redis":
		return rc
	case "layered":
		return cache.NewLayeredCache(rc,
			cache.WithMemoryMaxSize(cfg.Cache.MaxSize),
			cache.WithMemoryCleanup(cfg.Cache.Cleanup),
		)
	default:
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MaxSize),
			cache.WithMemoryCleanup(cfg.Cache.Cleanup),
		)
	}
}

// ProvidePostgres opens the pool only for store.type postgres.
func ProvidePostgres(cfg *config.Config) (*sql.DB, error) {
	if cfg.Store.Type != "postgres" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	return internalrepo.OpenPostgres(ctx, cfg.Postgres.DSN, internalrepo.PostgresOptions{
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
}

// ProvideConditionPersistence picks where conditions survive restarts.
func ProvideConditionPersistence(cfg *config.Config, rc *cache.RedisCache, db *sql.DB) (repository.ConditionPersistence, error) {
	switch cfg.Store.Type {
	case "redis":
		return internalrepo.NewRedisConditions(rc.Client(), cfg.Redis.Prefix), nil
	case "postgres":
		pg := internalrepo.NewPostgresConditions(db)
		ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
		defer cancel()
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return internalrepo.NewMemoryConditions(), nil
	}
}

// ProvideClickHouseClient creates a ClickHouse client and the trigger history schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if err := client.InitSchema(ctx, internalrepo.TriggerSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideHistoryStore returns nil when ClickHouse is disabled.
func ProvideHistoryStore(ch *pkgch.Client, l *applogger.Logger) repository.HistoryStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHHistory(ch, l)
}

// ProvideKafkaProducer creates a Kafka producer when trigger events or log digests go to Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideNATS connects to NATS when the subject fan-out is enabled.
func ProvideNATS(cfg *config.Config) (*nats.Conn, error) {
	if !cfg.NATS.Enabled {
		return nil, nil
	}
	nc, err := internalrepo.ConnectNATS(cfg.NATS.URL, "pricewatch-"+cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("nats: %w", err)
	}
	return nc, nil
}

// ProvideEventSinks collects the enabled trigger event destinations.
func ProvideEventSinks(cfg *config.Config, history repository.HistoryStore, producer *pkgkafka.Producer, nc *nats.Conn) []repository.EventSink {
	var sinks []repository.EventSink
	if history != nil {
		sinks = append(sinks, history)
	}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaEvents(producer, cfg.Kafka.EventsTopic))
	}
	if nc != nil {
		sinks = append(sinks, internalrepo.NewNATSEvents(nc, cfg.NATS.SubjectPrefix, cfg.NATS.Timeout))
	}
	return sinks
}

// ProvideEventPipeline buffers trigger events between the dispatcher and the sinks.
func ProvideEventPipeline(cfg *config.Config, sinks []repository.EventSink, m repository.Metrics, l *applogger.Logger) *mid.EventPipeline {
	return mid.NewEventPipeline(sinks, m, l,
		mid.WithBufferSize(cfg.Engine.EventBuffer),
		mid.WithSinkRetry(3, 100*time.Millisecond, 2*time.Second),
		mid.WithSinkTimeout(cfg.Engine.FetchTimeout),
	)
}

// ProvideFeed builds the Bitget price feed for feed.type.
func ProvideFeed(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) repository.PriceFeed {
	if cfg.Feed.Type == "websocket" {
		return bitget.NewWSFeed(cfg.Feed.WSURL, l,
			bitget.WithStaleAfter(cfg.Feed.StaleAfter),
			bitget.WithPingInterval(cfg.Feed.PingInterval),
		)
	}

	var bodies svccache.BytesCache = svccache.NewTTLCache()
	if rc != nil && cfg.Cache.Type == "redis" {
		bodies = svccache.NewRedisCache(rc.Client(), cfg.Redis.Prefix)
	}
	return bitget.NewRESTFeed(cfg.Feed.BaseURL, l,
		bitget.WithClient(xhttp.NewClient(xhttp.WithTimeout(cfg.Feed.Timeout))),
		bitget.WithResponseCache(bodies, cfg.Feed.CacheTTL),
	)
}

// ProvideNotificationSink fans alerts out to Telegram and, optionally, the log.
func ProvideNotificationSink(cfg *config.Config, l *applogger.Logger) repository.NotificationSink {
	var sinks []repository.NotificationSink
	tg := telegram.NewSink(cfg.Telegram.APIURL, cfg.Telegram.BotToken, cfg.Telegram.ChatID, l,
		telegram.WithClient(xhttp.NewClient(xhttp.WithTimeout(cfg.Telegram.Timeout))),
	)
	if tg.Configured() {
		sinks = append(sinks, tg)
	} else {
		l.Warn("telegram not configured, alerts will not reach a chat")
	}
	if cfg.Telegram.LogSink {
		sinks = append(sinks, notify.NewLogSink(l))
	}
	return notify.NewMultiSink(sinks...)
}

// ProvideIDNode creates the snowflake node stamping trigger event ids.
func ProvideIDNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.Engine.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}
	return node, nil
}

func ProvideConditionStore(persist repository.ConditionPersistence, l *applogger.Logger) *usecase.ConditionStore {
	return usecase.NewConditionStore(persist, l)
}

func ProvideCooldownGuard(cfg *config.Config, c cache.Service) *usecase.CooldownGuard {
	return usecase.NewCooldownGuard(c, cfg.Engine.Cooldown)
}

func ProvideDispatcher(
	cfg *config.Config,
	cooldown *usecase.CooldownGuard,
	sink repository.NotificationSink,
	store *usecase.ConditionStore,
	ids *snowflake.Node,
	pipeline *mid.EventPipeline,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Dispatcher {
	return usecase.NewDispatcher(cooldown, sink, store, ids, m, l,
		usecase.WithEventPublisher(pipeline),
		usecase.WithSendTimeout(cfg.Telegram.Timeout),
	)
}

func ProvideSupervisor(
	cfg *config.Config,
	store *usecase.ConditionStore,
	feed repository.PriceFeed,
	dispatcher *usecase.Dispatcher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.StreamSupervisor {
	return usecase.NewStreamSupervisor(usecase.SupervisorConfig{
		Worker: usecase.WorkerConfig{
			Interval:     cfg.Engine.PollInterval,
			MaxBackoff:   cfg.Engine.MaxBackoff,
			MaxFailures:  cfg.Engine.MaxFailures,
			FetchTimeout: cfg.Engine.FetchTimeout,
		},
		ReconcileInterval: cfg.Engine.ReconcileInterval,
		StopGrace:         cfg.Engine.StopGrace,
	}, store, feed, dispatcher, m, l)
}

func ProvideAlertEngine(
	store *usecase.ConditionStore,
	sup *usecase.StreamSupervisor,
	cooldown *usecase.CooldownGuard,
	history repository.HistoryStore,
	l *applogger.Logger,
) *usecase.AlertEngine {
	var opts []usecase.EngineOption
	if history != nil {
		opts = append(opts, usecase.WithHistory(history))
	}
	return usecase.NewAlertEngine(store, sup, cooldown, l, opts...)
}

// ProvideAlertCommandHandler returns nil when neither command intake is on.
func ProvideAlertCommandHandler(cfg *config.Config, engine *usecase.AlertEngine, m repository.Metrics, l *applogger.Logger) *usecase.AlertCommandHandler {
	if !cfg.Kafka.Consumer.Enabled && !cfg.Queue.Enabled {
		return nil
	}
	return usecase.NewAlertCommandHandler(cfg.Kafka.CommandsTopic, engine, m, l)
}

// ProvideKafkaConsumer creates the alert command consumer.
func ProvideKafkaConsumer(cfg *config.Config, m repository.Metrics, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	c := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(c.GroupID),
		pkgkafka.WithConsumerWorkers(c.Workers),
		pkgkafka.WithConsumerBufferSize(c.BufferSize),
		pkgkafka.WithConsumerRetry(c.RetryMax, c.BackoffMin, c.BackoffMax),
		pkgkafka.WithConsumerDLQ(c.DLQTopic),
		pkgkafka.WithConsumerFetch(c.MinBytes, c.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, km kafka.Message, err error) {
			m.RecordError("command")
			l.Warn("alert command failed",
				applogger.String("topic", topic),
				applogger.Int64("offset", km.Offset),
				applogger.Error(err),
			)
		},
	})
	return consumer, nil
}

// ProvideCommandQueue builds the Redis list intake for alert commands.
func ProvideCommandQueue(cfg *config.Config, rc *cache.RedisCache, commands *usecase.AlertCommandHandler, l *applogger.Logger) *queue.RedisQueue {
	if !cfg.Queue.Enabled || rc == nil || commands == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, queue.Config{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(),
		queue.WithKeyPrefix(cfg.Queue.KeyPrefix),
		queue.WithRetryPolicy(func(err error) bool { return !pkgkafka.IsPermanent(err) }),
	)
	q.RegisterJob(commands)
	return q
}

// ProvideHTTPHandler builds the alerts API, throttled when ratelimit is enabled.
func ProvideHTTPHandler(cfg *config.Config, engine *usecase.AlertEngine, l *applogger.Logger) *api.AlertsEchoHandler {
	var opts []api.HandlerOption
	if cfg.RateLimit.Enabled {
		w := ratelimit.Window{Limit: cfg.RateLimit.Limit, Period: cfg.RateLimit.Window}
		opts = append(opts, api.WithRateLimit(middleware.RateLimitConfig{
			Limiter:      ratelimit.New(),
			Capacity:     w.Capacity(),
			RefillPerSec: w.RefillPerSec(),
		}))
	}
	return api.NewAlertsEchoHandler(l, engine, opts...)
}

// ProvideHTTPServer creates the echo server with health checks for every enabled backend.
func ProvideHTTPServer(
	cfg *config.Config,
	h *api.AlertsEchoHandler,
	l *applogger.Logger,
	rc *cache.RedisCache,
	db *sql.DB,
	ch *pkgch.Client,
) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, prometheus.DefaultRegisterer, prometheus.DefaultGatherer))
	}
	if rc != nil {
		opts = append(opts, xhttp.WithHealthCheck("redis", func(ctx context.Context) error {
			return rc.Client().Ping(ctx).Err()
		}))
	}
	if db != nil {
		opts = append(opts, xhttp.WithHealthCheck("postgres", db.PingContext))
	}
	if ch != nil {
		opts = append(opts, xhttp.WithHealthCheck("clickhouse", ch.Health))
	}
	return xhttp.NewServer(h, l, opts...)
}

// ProvideApp assembles the application and the ordered list of clients to release.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	engine *usecase.AlertEngine,
	pipeline *mid.EventPipeline,
	consumer *pkgkafka.Consumer,
	commands *usecase.AlertCommandHandler,
	commandQueue *queue.RedisQueue,
	httpServer *xhttp.Server,
	feed repository.PriceFeed,
	lockCache cache.Service,
	rc *cache.RedisCache,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	db *sql.DB,
) *server.App {
	if producer != nil && cfg.Logger.Collector.Enabled {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logger.Collector.Interval,
			CountThreshold: cfg.Logger.Collector.CountThreshold,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      producer,
		})
	}

	var closers []server.Closer
	if fc, ok := feed.(io.Closer); ok {
		closers = append(closers, server.Closer{Name: "feed", C: fc})
	}
	if lockCache != nil && cfg.Cache.Type != "redis" {
		closers = append(closers, server.Closer{Name: "cache", C: lockCache})
	}
	if producer != nil {
		closers = append(closers, server.Closer{Name: "kafka producer", C: producer})
	}
	if ch != nil {
		closers = append(closers, server.Closer{Name: "clickhouse", C: ch})
	}
	if rc != nil {
		closers = append(closers, server.Closer{Name: "redis", C: rc})
	}
	if db != nil {
		closers = append(closers, server.Closer{Name: "postgres", C: db})
	}

	var handler pkgkafka.MessageHandler
	if consumer != nil && commands != nil {
		handler = commands
	}
	return server.New(cfg, l, engine, pipeline, consumer, handler, commandQueue, httpServer, closers)
}
