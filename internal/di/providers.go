package di

import (
	"context"
	"fmt"
	"time"

	"TradePulse/internal/analysis"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/internal/handler/api"
	mid "TradePulse/internal/middleware"
	internalrepo "TradePulse/internal/repository"
	"TradePulse/internal/service/eodhd"
	"TradePulse/internal/service/feed"
	"TradePulse/internal/service/marketcache"
	"TradePulse/internal/service/ratelimit"
	"TradePulse/internal/service/scoring"
	"TradePulse/internal/usecase"
	pkgcache "TradePulse/pkg/cache"
	pkgch "TradePulse/pkg/clickhouse"
	"TradePulse/pkg/config"
	xhttp "TradePulse/pkg/http"
	pkgkafka "TradePulse/pkg/kafka"
	applogger "TradePulse/pkg/logger"
	"TradePulse/pkg/metrics"
	"TradePulse/pkg/queue"
	"TradePulse/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() drepo.Metrics {
	return metrics.New()
}

// ProvideLimiter creates the shared API budget limiter.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.RateLimit.MinuteLimit, cfg.RateLimit.DayLimit,
		ratelimit.WithApproachThreshold(cfg.RateLimit.ApproachThreshold),
		ratelimit.WithMaxBatchDelay(cfg.RateLimit.MaxBatchDelay),
	)
}

// ProvideRedisCache creates the shared Redis client, or nil when disabled.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(cfg.Cache.Redis.Host),
		pkgcache.WithRedisPort(cfg.Cache.Redis.Port),
		pkgcache.WithRedisPassword(cfg.Cache.Redis.Password),
		pkgcache.WithRedisDB(cfg.Cache.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideIndicatorCache creates the in-process indicator cache, layered
// over Redis when one is configured.
func ProvideIndicatorCache(rc *pkgcache.RedisCache, m drepo.Metrics) *marketcache.IndicatorCache {
	opts := []marketcache.Option{marketcache.WithMetrics(m)}
	if rc != nil {
		opts = append(opts, marketcache.WithL2(rc))
	}
	return marketcache.New(opts...)
}

// ProvideProviderClient creates the REST market data client.
func ProvideProviderClient(cfg *config.Config, limiter *ratelimit.Limiter, m drepo.Metrics) *eodhd.Client {
	return eodhd.New(cfg.Provider.BaseURL, cfg.Provider.APIToken, cfg.Provider.Timeout, limiter,
		eodhd.WithRetryPolicy(xhttp.RetryPolicy{
			MaxAttempts: cfg.Provider.Retry.MaxAttempts,
			BaseDelay:   cfg.Provider.Retry.BaseDelay,
			MaxDelay:    cfg.Provider.Retry.MaxDelay,
			MaxJitter:   cfg.Provider.Retry.MaxJitter,
		}),
		eodhd.WithMetrics(m),
	)
}

// ProvideScorer creates the convergence scoring service.
func ProvideScorer(cfg *config.Config) (*scoring.Service, error) {
	return scoring.New(scoring.Weights{
		Technical: cfg.Scoring.TechnicalWeight,
		Sentiment: cfg.Scoring.SentimentWeight,
		Liquidity: cfg.Scoring.LiquidityWeight,
	})
}

// ProvideClickHouseClient creates a ClickHouse client and applies the
// signal store schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
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

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := append(
		[]string{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", cfg.ClickHouse.Database)},
		internalrepo.SchemaStatements()...,
	)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideSignalStore creates the ClickHouse-backed signal store.
func ProvideSignalStore(chClient *pkgch.Client) drepo.SignalStore {
	return internalrepo.NewClickHouseSignalStore(chClient.DB())
}

// ProvideKafkaProducer creates a Kafka producer, or nil when disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideSignalEvents creates the Kafka event publisher, or a no-op sink
// when Kafka is disabled.
func ProvideSignalEvents(producer *pkgkafka.Producer, cfg *config.Config) drepo.SignalEvents {
	if producer == nil {
		return internalrepo.NopSignalEvents{}
	}
	return internalrepo.NewKafkaSignalEvents(producer,
		cfg.Kafka.SignalTopic, cfg.Kafka.ScanTopic, cfg.Kafka.TickTopic)
}

// ProvideWorkQueue creates the Redis work queue behind the candidate
// pipeline, or nil when Redis is disabled.
func ProvideWorkQueue(cfg *config.Config, rc *pkgcache.RedisCache, log *applogger.Logger) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	return queue.NewRedisQueue(log, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}, rc.Client(), queue.ModeProducerConsumer)
}

// ProvideCandidateQueue adapts the work queue into the scan candidate
// queue.
func ProvideCandidateQueue(q *queue.RedisQueue) drepo.CandidateQueue {
	if q == nil {
		return internalrepo.NopCandidateQueue{}
	}
	return internalrepo.NewRedisCandidateQueue(q)
}

// ProvideTickPipeline creates the feed tick pipeline. It doubles as the
// live price board for market overviews.
func ProvideTickPipeline(events drepo.SignalEvents, m drepo.Metrics, log *applogger.Logger) *mid.TickPipeline {
	sink, _ := events.(mid.TickSink)
	return mid.NewTickPipeline(sink, m, log)
}

// ProvideFeedClient creates the streaming feed client, or nil when the
// feed is disabled.
func ProvideFeedClient(cfg *config.Config, pipe *mid.TickPipeline, m drepo.Metrics, log *applogger.Logger) *feed.Client {
	if !cfg.Feed.Enabled {
		return nil
	}
	client := feed.New(
		cfg.Provider.WebSocketURL,
		cfg.Provider.APIToken,
		cfg.Feed.Segments,
		cfg.Feed.PingInterval,
		feed.ReconnectConfig{
			BaseDelay:   cfg.Feed.Reconnect.BaseDelay,
			MaxDelay:    cfg.Feed.Reconnect.MaxDelay,
			MaxAttempts: cfg.Feed.Reconnect.MaxAttempts,
		},
		log,
		feed.WithMetrics(m),
	)
	client.AddListener(pipe)
	return client
}

// ProvideCoordinator assembles the three analysis layers and the
// coordinator above them.
func ProvideCoordinator(
	cfg *config.Config,
	provider *eodhd.Client,
	limiter *ratelimit.Limiter,
	cache *marketcache.IndicatorCache,
	scorer *scoring.Service,
	store drepo.SignalStore,
	events drepo.SignalEvents,
	candidates drepo.CandidateQueue,
	pipe *mid.TickPipeline,
	m drepo.Metrics,
	log *applogger.Logger,
) *usecase.Coordinator {
	interval := cfg.Analysis.IntradayInterval
	technical := analysis.NewTechnical(provider, limiter, cache,
		cfg.Cache.IndicatorTTL, cfg.Cache.QuoteTTL, log)
	sentiment := analysis.NewSentiment(provider, limiter, interval, log)
	liquidity := analysis.NewLiquidity(provider, limiter, interval, log)

	return usecase.NewCoordinator(
		technical, sentiment, liquidity,
		scorer, limiter, cache, provider,
		store, events, candidates, pipe, m, log,
		usecase.Config{
			Market:          "US",
			ChunkSize:       cfg.Analysis.ChunkSize,
			SignalThreshold: cfg.Scoring.SignalThreshold,
			SignalTTL:       cfg.Scoring.SignalTTL,
		},
	)
}

// ProvideHTTPHandler creates the API handler.
func ProvideHTTPHandler(log *applogger.Logger, coord *usecase.Coordinator) xhttp.Handler {
	return api.NewAnalysisHandler(log, coord)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	handler xhttp.Handler,
	coord *usecase.Coordinator,
	feedClient *feed.Client,
	pipe *mid.TickPipeline,
	workQueue *queue.RedisQueue,
	events drepo.SignalEvents,
	store drepo.SignalStore,
	chClient *pkgch.Client,
) *server.App {
	var jobs []queue.Job
	if workQueue != nil {
		jobs = append(jobs, usecase.NewCandidateAnalysisJob(coord, log))
	}
	return server.New(cfg, log, handler, feedClient, pipe, workQueue, jobs, events, store, chClient)
}
