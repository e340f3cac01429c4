package app

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" //для goose миграций
	"github.com/pressly/goose/v3"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	httpapi "github.com/ronaldocpontes/contribute/internal/api/http"
	"github.com/ronaldocpontes/contribute/internal/config"
	"github.com/ronaldocpontes/contribute/internal/event/kafka"
	"github.com/ronaldocpontes/contribute/internal/gateway"
	"github.com/ronaldocpontes/contribute/internal/logging"
	"github.com/ronaldocpontes/contribute/internal/repository/memory"
	"github.com/ronaldocpontes/contribute/internal/repository/postgres"
	redisrepo "github.com/ronaldocpontes/contribute/internal/repository/redis"
	"github.com/ronaldocpontes/contribute/internal/service"
	"github.com/ronaldocpontes/contribute/internal/shutdown"
)

// App содержит все зависимости для запуска и корректного shutdown
// Contribution Service
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	sweeper     *service.Sweeper
	shutdownMgr *shutdown.Manager
	sweepCtx    context.Context
	sweepCancel context.CancelFunc
	wg          sync.WaitGroup
}

// Build создаёт и настраивает все зависимости Contribution Service
func Build(cfg config.Config) (*App, error) {
	const op = "app.Build"

	// Создаём logger
	logger, err := logging.New(logging.Config{
		ServiceName: "contribution",
		Env:         string(cfg.AppEnv),
		Level:       os.Getenv("LOG_LEVEL"),
		Format:      os.Getenv("LOG_FORMAT"),
	})
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("op", op))
	logger.Info("Building Contribution service", zap.String("http_addr", cfg.HTTPAddr))

	// Подключаемся к PostgreSQL
	logger.Info("Connecting to PostgreSQL")
	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("PostgreSQL connection established")

	// Применяем миграции
	logger.Info("Applying database migrations")
	db, err := goose.OpenDBWithDriver("pgx", cfg.PostgresDSN)
	if err != nil {
		pool.Close()
		return nil, err
	}
	defer db.Close()

	wd, err := os.Getwd()
	if err != nil {
		pool.Close()
		return nil, err
	}
	migrationsDir := filepath.Join(wd, "migrations")

	if err := goose.Up(db, migrationsDir); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("Database migrations applied successfully")

	// Функция readiness для health check
	readiness := func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Ping(ctx) == nil
	}

	// Репозитории
	contributionRepo := postgres.NewRepository(pool)
	projectRepo := postgres.NewProjectRepository(pool)

	// Создаём shutdown manager
	shutdownMgr := shutdown.New(cfg.ShutdownTimeout, logger)
	shutdownMgr.Add("postgres_pool", shutdown.ClosePool(pool))

	// Correlation store: Redis в production, in-memory для локального запуска
	var correlationStore gateway.CorrelationStore
	if cfg.RedisAddr != "" {
		logger.Info("Connecting to Redis", zap.String("addr", cfg.RedisAddr))
		redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			pool.Close()
			return nil, err
		}
		correlationStore = redisrepo.NewCorrelationStore(redisClient, logger)
		shutdownMgr.Add("redis_client", shutdown.CloseWithError(redisClient))
	} else {
		logger.Warn("REDIS_ADDR is empty, using in-memory correlation store")
		correlationStore = memory.NewCorrelationStore()
	}

	// Notifier: Kafka в production, no-op для локального запуска
	var notifier service.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier := kafka.NewKafkaNotifier(logger, cfg.KafkaBrokers, cfg.KafkaTopic)
		notifier = kafkaNotifier
		shutdownMgr.Add("kafka_writer", shutdown.CloseWithError(kafkaNotifier))
	} else {
		logger.Warn("KAFKA_BROKERS is empty, notifications are disabled")
		notifier = service.NewNopNotifier(logger)
	}

	// Клиент шлюза и валидатор callback-ов
	gatewayClient := gateway.NewClient(logger, cfg.Gateway)
	validator := gateway.NewCallbackValidator(logger, cfg.Gateway.SecretKey, correlationStore)

	// Service слой: state machine жизненного цикла контрибуции
	contributionService := service.NewContributionService(
		logger,
		contributionRepo,
		projectRepo,
		correlationStore,
		gatewayClient,
		validator,
		notifier,
		cfg.MaxRetries,
		cfg.CorrelationTTL,
	)

	// Периодическая сверка переходных контрибуций
	sweeper := service.NewSweeper(
		logger,
		contributionRepo,
		contributionService,
		cfg.SweepInterval,
		cfg.SweepBatchSize,
		cfg.SweepWorkers,
	)

	// HTTP handler и роутер
	handler := httpapi.NewHandler(contributionService, logger, cfg.PublicBaseURL)
	router := httpapi.NewRouter(handler, readiness)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Контекст сверки отменяется первым при shutdown
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	shutdownMgr.Add("sweeper", func(ctx context.Context) error {
		sweepCancel()
		return nil
	})
	shutdownMgr.Add("http_server", shutdown.ShutdownHTTPServer(httpServer))

	return &App{
		logger:      logger,
		httpServer:  httpServer,
		sweeper:     sweeper,
		shutdownMgr: shutdownMgr,
		sweepCtx:    sweepCtx,
		sweepCancel: sweepCancel,
	}, nil
}

// Run запускает сервис и блокируется до получения сигнала shutdown
func (a *App) Run() error {
	defer logging.Sync(a.logger)

	a.logger.Info("Starting Contribution service", zap.String("addr", a.httpServer.Addr))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.sweeper.Start(a.sweepCtx); err != nil {
			a.logger.Error("Sweeper error", zap.Error(err))
		}
	}()

	// Ожидаем сигнал и выполняем shutdown
	a.shutdownMgr.Wait()

	a.wg.Wait()
	a.logger.Info("Contribution service stopped")
	return nil
}
