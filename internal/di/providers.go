package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/internal/domain/repository"
	"SpotAgent/internal/exchange/kraken"
	"SpotAgent/internal/exchange/paper"
	"SpotAgent/internal/exchange/retry"
	"SpotAgent/internal/handler/api"
	"SpotAgent/internal/handler/telegram"
	"SpotAgent/internal/handler/ws"
	internalrepo "SpotAgent/internal/repository"
	"SpotAgent/internal/service/notify"
	"SpotAgent/internal/service/ratelimit"
	"SpotAgent/internal/services/position"
	"SpotAgent/internal/services/risk"
	"SpotAgent/internal/services/signal"
	"SpotAgent/internal/state"
	"SpotAgent/internal/usecase"
	"SpotAgent/pkg/cache"
	pkgch "SpotAgent/pkg/clickhouse"
	"SpotAgent/pkg/config"
	pkgkafka "SpotAgent/pkg/kafka"
	"SpotAgent/pkg/logger"
	"SpotAgent/pkg/metrics"
	"SpotAgent/pkg/postgres"
	"SpotAgent/pkg/queue"
	"SpotAgent/pkg/server"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const schemaTimeout = 10 * time.Second

// ProvideLogger builds the process logger; the cleanup flushes file output.
func ProvideLogger(cfg *config.Config) (*logger.Logger, func(), error) {
	l, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}

func ProvideMetrics() repository.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvidePostgresClient opens the pool and applies the trade schema.
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(
		postgres.WithDSN(cfg.Postgres.DSN),
		postgres.WithPool(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns, cfg.Postgres.ConnMaxLifetime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.PostgresSchema); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("postgres schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvideTradeStore(client *postgres.Client) *internalrepo.PostgresTradeStore {
	return internalrepo.NewPostgresTradeStore(client)
}

// ProvideClickHouseClient returns nil when the journal is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
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
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.ClickHouseSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

func ProvideJournal(client *pkgch.Client, cfg *config.Config) repository.Journal {
	if client == nil {
		return nil
	}
	return internalrepo.NewClickHouseJournal(client.DB(), cfg.ClickHouse.Database)
}

// ProvideKafkaProducer returns nil when Kafka is disabled. When log
// collection is on, aggregated error logs go out through the same producer.
func ProvideKafkaProducer(cfg *config.Config, l *logger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	p, err := pkgkafka.NewProducer(
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
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	if cfg.Log.Collect {
		l.AddCollector(&logger.CollectionConfig{
			TimeInterval:   time.Minute,
			CountThreshold: 20,
			Topic:          cfg.Log.CollectTopic,
			Publisher:      p,
		})
	}
	return p, func() { _ = p.Close() }, nil
}

// ProvideKafkaConsumer builds the journal consumer group. It needs the
// ClickHouse journal; config validation enforces that pairing.
func ProvideKafkaConsumer(cfg *config.Config, l *logger.Logger, journal repository.Journal, m repository.Metrics) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || !cfg.Kafka.Consumer.Enabled || journal == nil {
		return nil, nil
	}
	c, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	c.RegisterHandler(usecase.NewTradeEventHandler(cfg.Kafka.EventsTopic, journal, m))
	c.RegisterHandler(usecase.NewSignalHandler(cfg.Kafka.SignalsTopic, journal, m))
	c.WithConsumerHook(pkgkafka.LoggingHook(l))
	return c, nil
}

// ProvideEventPublisher prefers Kafka, then a direct ClickHouse journal.
func ProvideEventPublisher(cfg *config.Config, p *pkgkafka.Producer, journal repository.Journal, m repository.Metrics) repository.EventPublisher {
	switch {
	case p != nil:
		return internalrepo.NewKafkaEventPublisher(p, cfg.Kafka.EventsTopic, cfg.Kafka.SignalsTopic,
			internalrepo.WithEventMetrics(m), internalrepo.WithDryRunFlag(cfg.Trading.DryRun))
	case journal != nil:
		return internalrepo.NewJournalEventPublisher(journal, cfg.Trading.DryRun, nil)
	default:
		return internalrepo.NopEventPublisher{}
	}
}

// ProvideCache uses Redis when enabled, otherwise an in-process cache.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mc := cache.NewMemoryCache()
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideQueue shares the Redis connection with the cache when there is one.
func ProvideQueue(cfg *config.Config, l *logger.Logger, c cache.Service) queue.Queue {
	qcfg := &queue.QueueConfig{
		Workers:    cfg.Notify.QueueWorkers,
		RetryLimit: cfg.Notify.RetryLimit,
		RetryDelay: cfg.Notify.RetryDelay,
	}
	if rc, ok := c.(*cache.RedisCache); ok {
		return queue.NewRedisQueue(l, qcfg, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
	}
	return queue.NewMemoryQueue(l, qcfg)
}

func ProvideTelegramBot(cfg *config.Config) (*tgbotapi.BotAPI, error) {
	if !cfg.Telegram.Enabled {
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return bot, nil
}

// ProvideNotifier registers the delivery job on q; App starts the queue.
func ProvideNotifier(cfg *config.Config, l *logger.Logger, bot *tgbotapi.BotAPI, q queue.Queue, c cache.Service) *notify.Service {
	sinks := []notify.Sink{notify.NewLogSink(l)}
	if bot != nil {
		sinks = append(sinks, notify.NewTelegramSink(bot, cfg.Telegram.AllowedChats))
	}
	svc := notify.New(sinks,
		notify.WithQueue(q),
		notify.WithThrottle(c, cfg.Notify.RSIAlertTTL),
		notify.WithLogger(l),
	)
	q.RegisterJob(svc.Job())
	return svc
}

func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideKrakenStream returns nil unless the websocket ticker feed is enabled.
func ProvideKrakenStream(cfg *config.Config, l *logger.Logger) *kraken.Stream {
	if !cfg.Exchange.UseWebSocket {
		return nil
	}
	return kraken.NewStream(cfg.Exchange.WebSocketURL, cfg.Trading.Symbols, kraken.WithStreamLogger(l))
}

// ProvideExchange assembles the venue adapter: Kraken REST (with the optional
// ticker stream), the paper decorator in dry-run, and bounded retry outermost.
func ProvideExchange(cfg *config.Config, l *logger.Logger, m repository.Metrics, limiter *ratelimit.Limiter,
	stream *kraken.Stream) (repository.Exchange, error) {
	opts := []kraken.Option{
		kraken.WithBaseURL(cfg.Exchange.BaseURL),
		kraken.WithTimeout(cfg.Exchange.Timeout),
		kraken.WithBuyByCost(cfg.Exchange.BuyByCost),
		kraken.WithLimiter(limiter),
		kraken.WithLogger(l),
	}
	if cfg.Exchange.APIKey != "" {
		opts = append(opts, kraken.WithCredentials(cfg.Exchange.APIKey, cfg.Exchange.APISecret))
	}
	if stream != nil {
		opts = append(opts, kraken.WithStream(stream, cfg.Exchange.WSMaxAge))
	}
	client, err := kraken.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("kraken client: %w", err)
	}

	var ex repository.Exchange = client
	if cfg.Trading.DryRun {
		ex = paper.New(client, cfg.Trading.QuoteCurrency, cfg.Trading.PaperQuoteBalance,
			paper.WithFees(configuredFees(cfg)))
		l.Info("dry-run: orders are simulated", logger.Float64("paper_quote_balance", cfg.Trading.PaperQuoteBalance))
	}
	return retry.New(ex, retry.WithLogger(l), retry.WithMetrics(m)), nil
}

func configuredFees(cfg *config.Config) models.Fees {
	return models.Fees{Taker: cfg.Exchange.TakerFee, Maker: cfg.Exchange.MakerFee}
}

func ProvideFiles(cfg *config.Config) *state.Files {
	return state.NewFiles(
		cfg.FilePath(cfg.Files.RuntimeConfig),
		cfg.FilePath(cfg.Files.Weights),
		cfg.FilePath(cfg.Files.LearningLog),
	)
}

// ProvideState restores the adaptive state. Weights come from the newest
// ai_weights row, then the weights file, then the defaults.
func ProvideState(cfg *config.Config, files *state.Files, store *internalrepo.PostgresTradeStore, l *logger.Logger) (*state.State, error) {
	defRuntime := models.RuntimeConfig{
		RSIOversold:   cfg.Strategy.RSIOversold,
		RSIOverbought: cfg.Strategy.RSIOverbought,
		ATRLowPct:     cfg.Strategy.ATRLowPct,
		ATRHighPct:    cfg.Strategy.ATRHighPct,
		TPMultiplier:  cfg.Strategy.TPMultiplier,
		SLMultiplier:  cfg.Strategy.SLMultiplier,
	}
	rc, found, err := files.Runtime.Load(defRuntime)
	if err != nil {
		return nil, fmt.Errorf("runtime config: %w", err)
	}
	if !found {
		l.Info("no runtime config file, using configured thresholds", logger.String("path", files.Runtime.Path()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	w := models.DefaultWeights()
	rec, ok, err := store.LatestWeights(ctx)
	switch {
	case err != nil:
		return nil, fmt.Errorf("latest weights: %w", err)
	case ok:
		w = rec.Weights
	default:
		if fileRec, fileOK, ferr := files.Weights.Load(models.WeightsRecord{}); ferr != nil {
			l.Warn("weights file unreadable, using defaults", logger.Error(ferr))
		} else if fileOK {
			w = fileRec.Weights
		}
	}

	learning, _, err := files.Learning.Load(nil)
	if err != nil {
		l.Warn("learning log unreadable, starting empty", logger.Error(err))
		learning = nil
	}

	st := state.New(time.Now().UTC(), w, rc, cfg.Strategy.ConfidenceThreshold)
	for _, e := range learning {
		st.AddLearning(e)
	}
	return st, nil
}

func ProvideSignalEngine(cfg *config.Config) *signal.Engine {
	s := cfg.Strategy
	return signal.NewEngine(
		signal.WithPeriods(signal.Periods{
			RSI:       s.RSIPeriod,
			EMAFast:   s.EMAFast,
			EMASlow:   s.EMASlow,
			EMATrend:  s.EMATrend,
			ATR:       s.ATRPeriod,
			ATRWindow: s.ATRAvgWindow,
			Volume:    s.VolPeriod,
		}),
		signal.WithSideBias(models.SideBias(cfg.Trading.SideBias)),
		signal.WithMomentumConfirm(s.MomentumConfirm),
	)
}

func ProvidePositionManager(cfg *config.Config, ex repository.Exchange, store *internalrepo.PostgresTradeStore,
	events repository.EventPublisher, l *logger.Logger) *position.Manager {
	t := cfg.Trading
	return position.NewManager(ex, store, position.Config{
		RiskPerTrade:    t.RiskPerTrade,
		Timeframe:       repository.NormalizeTimeframe(t.Timeframe).Duration(),
		TimeExitCandles: t.TimeExitCandles,
		Trail: position.TrailConfig{
			TriggerR:      t.TrailTriggerR,
			Buffer:        t.TrailBuffer,
			TightBuffer:   t.TrailTightBuffer,
			TightenATRPct: t.TrailTightenATRPct,
		},
	}, position.WithEvents(events), position.WithLogger(l), position.WithFees(configuredFees(cfg)))
}

func ProvideAgentConfig(cfg *config.Config) usecase.AgentConfig {
	t := cfg.Trading
	return usecase.AgentConfig{
		Symbols:     t.Symbols,
		Quote:       t.QuoteCurrency,
		Timeframe:   repository.NormalizeTimeframe(t.Timeframe),
		CandleLimit: t.CandleLimit,
		Interval:    cfg.LoopInterval(),
		Limits: risk.Limits{
			MaxDailyLoss:   t.MaxDailyLoss,
			MaxDailyTrades: t.MaxDailyTrades,
			Cooldown:       time.Duration(t.CooldownMinutes) * time.Minute,
		},
		RiskPerTrade:       t.RiskPerTrade,
		VolZMin:            cfg.Strategy.VolZMin,
		LearningRate:       cfg.Tuner.LearningRate,
		AdaptiveVolatility: cfg.Tuner.AdaptiveVolatility,
		OptimizeEvery:      time.Duration(cfg.Tuner.OptimizationMinutes) * time.Minute,
		LowRiskWindow:      cfg.Tuner.LowRiskWindow,
		LowRiskLosses:      cfg.Tuner.LowRiskLosses,
		DustThreshold:      t.DustThreshold,
		DustEvery:          t.DustSweepInterval,
		FeeRefreshEvery:    t.FeeRefreshInterval,
		EnableTrading:      t.EnableTrading,
		DryRun:             t.DryRun,
		RecoverDelay:       usecase.DefaultRecoverDelay,
	}
}

// ProvideStatusCache expires snapshots after a day so a long-dead process is
// not reported as current.
func ProvideStatusCache(c cache.Service, l *logger.Logger) *internalrepo.StatusCache {
	return internalrepo.NewStatusCache(c, 24*time.Hour, l)
}

func ProvideOperator(cfg *config.Config, st *state.State, store *internalrepo.PostgresTradeStore,
	sc *internalrepo.StatusCache, l *logger.Logger) *usecase.Operator {
	return usecase.NewOperator(st, store,
		usecase.AllowedCallers(cfg.Telegram.AllowedChats, cfg.Operator.APITokens),
		usecase.WithPriorSnapshot(sc),
		usecase.WithOperatorLogger(l),
	)
}

func ProvideStatusHub(op *usecase.Operator, l *logger.Logger) *ws.Hub {
	return ws.NewHub(op.Authorized, l)
}

func ProvideAgent(cfg usecase.AgentConfig, ex repository.Exchange, store *internalrepo.PostgresTradeStore,
	pm *position.Manager, engine *signal.Engine, st *state.State, files *state.Files,
	events repository.EventPublisher, n *notify.Service, m repository.Metrics, l *logger.Logger,
	sc *internalrepo.StatusCache, hub *ws.Hub) *usecase.Agent {
	return usecase.NewAgent(cfg, ex, store, pm, engine, st, files,
		usecase.WithAgentEvents(events),
		usecase.WithNotifier(n),
		usecase.WithAgentMetrics(m),
		usecase.WithAgentLogger(l),
		usecase.WithStatusSinks(sc, hub),
	)
}

// ProvideOperatorHandler wires /healthz to every stateful dependency.
func ProvideOperatorHandler(cfg *config.Config, l *logger.Logger, op *usecase.Operator, limiter *ratelimit.Limiter,
	store *internalrepo.PostgresTradeStore, journal repository.Journal, ex repository.Exchange) *api.OperatorHandler {
	checks := []api.HealthCheck{
		{Name: "postgres", Check: store.Health},
		{Name: "exchange", Check: func(context.Context) error {
			if _, ok := ex.Market(cfg.Trading.Symbols[0]); !ok {
				return errors.New("markets not loaded")
			}
			return nil
		}},
	}
	if j, ok := journal.(*internalrepo.ClickHouseJournal); ok {
		checks = append(checks, api.HealthCheck{Name: "clickhouse", Check: j.Health})
	}
	return api.NewOperatorHandler(l, op,
		api.WithRateLimit(limiter, cfg.Operator.RateLimitPerMinute),
		api.WithHealthChecks(checks...),
	)
}

func ProvideTelegramHandler(bot *tgbotapi.BotAPI, op *usecase.Operator, l *logger.Logger) *telegram.Handler {
	if bot == nil {
		return nil
	}
	return telegram.NewHandler(bot, op, l)
}

func ProvideApp(
	cfg *config.Config,
	l *logger.Logger,
	agent *usecase.Agent,
	consumer *pkgkafka.Consumer,
	q queue.Queue,
	stream *kraken.Stream,
	tg *telegram.Handler,
	hub *ws.Hub,
	opHandler *api.OperatorHandler,
) *server.App {
	opts := []server.Option{
		server.WithConsumer(consumer),
		server.WithQueue(q),
		server.WithCloser(hub),
		server.WithHTTPHandlers(opHandler, hub),
	}
	// typed nils must not reach the Runner interface
	if stream != nil {
		opts = append(opts, server.WithRunner("kraken-stream", stream))
	}
	if tg != nil {
		opts = append(opts, server.WithRunner("telegram", tg))
	}
	return server.New(cfg, l, agent, opts...)
}
