package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/config"
	"bank-ledger/internal/handler"
	"bank-ledger/internal/repository"
	"bank-ledger/internal/service"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Загрузка конфигурации приложения
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warnf("Неизвестный LOG_LEVEL %q, используется info", cfg.LogLevel)
	}

	// Хранилище: PostgreSQL или память
	var (
		store  repository.Store
		pinger handler.Pinger
	)
	switch cfg.StorageDriver {
	case "memory":
		logger.Warn("Используется хранилище в памяти, данные не сохраняются между запусками")
		store = repository.NewMemoryStore()
	default:
		db, err := sql.Open("postgres", cfg.DSN())
		if err != nil {
			logger.Fatalf("Ошибка подключения к базе данных: %v", err)
		}
		defer db.Close()

		// Проверка соединения с БД
		if err := db.Ping(); err != nil {
			logger.Fatalf("Ошибка проверки соединения с БД: %v", err)
		}
		if err := repository.Migrate(context.Background(), db, logger); err != nil {
			logger.Fatalf("Ошибка миграции: %v", err)
		}
		store = repository.NewPostgresStore(db, cfg.LockTimeout, logger)
		pinger = db
	}

	// События и публикация в NATS
	bus := service.NewEventBus(logger)
	if cfg.NATSURL != "" {
		natsClient, err := service.NewNATSClient(cfg.NATSURL, logger)
		if err != nil {
			logger.Fatalf("Ошибка подключения к NATS: %v", err)
		}
		defer natsClient.Close()
		bus.Subscribe(service.NewEventPublisher(natsClient, logger).Handle)
		logger.Infof("Публикация событий в NATS: %s", cfg.NATSURL)
	}

	// Курсы валют
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))))
	var rates service.RateProvider = service.NewStaticRates(nil)
	if cfg.RatesSource == "cbr" {
		cbrRates := service.NewCBRRates(service.NewCBRClient(cfg.RatesURL, logger), nil, logger)
		if err := cbrRates.Refresh(context.Background()); err != nil {
			logger.WithError(err).Warn("Курсы ЦБ РФ недоступны, используются фиксированные")
		}
		if _, err := c.AddFunc(cfg.RatesRefreshSpec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := cbrRates.Refresh(ctx); err != nil {
				logger.WithError(err).Warn("Не удалось обновить курсы валют")
			}
		}); err != nil {
			logger.Fatalf("Ошибка настройки обновления курсов: %v", err)
		}
		rates = cbrRates
	}

	// Инициализация сервисов
	logger.Info("Инициализация сервисов...")
	emailSender := service.NewEmailSender(cfg.SMTP, logger)
	locker := service.NewAccountLocker(cfg.LockTimeout)
	retrier := service.NewRetrier(service.DefaultRetryConfig(), logger)

	ledger := service.NewLedgerService(store, store, locker, rates, bus, logger)
	accountService := service.NewAccountService(store, store, ledger, locker, bus, logger)
	achievementService := service.NewAchievementService(store, store, store, store, emailSender, logger)
	schedulerService := service.NewSchedulerService(store, store, store, ledger, retrier, emailSender, logger)
	interestService := service.NewInterestService(store, ledger, retrier, logger)
	analyticService := service.NewAnalyticService(store, store, logger)

	bus.Subscribe(achievementService.Handle)

	// Инициализация HTTP обработчиков
	logger.Info("Инициализация обработчиков API...")
	router := mux.NewRouter()
	router.Use(handler.RecoverMiddleware(logger), handler.LoggingMiddleware(logger))

	handler.NewHealthHandler(pinger, logger).RegisterRoutes(router)
	handler.NewUserHandler(accountService, achievementService, logger).RegisterRoutes(router)
	handler.NewAccountHandler(accountService, logger).RegisterRoutes(router)
	handler.NewTransactionHandler(ledger, logger).RegisterRoutes(router)
	handler.NewScheduledHandler(schedulerService, logger).RegisterRoutes(router)
	handler.NewAnalyticsHandler(analyticService, logger).RegisterRoutes(router)

	// Планировщик регулярных переводов и начисления процентов
	logger.Info("Настройка планировщика...")
	if _, err := c.AddFunc(cfg.TransferSweepSpec, func() {
		logger.Info("Запуск прохода регулярных переводов")
		if _, err := schedulerService.RunDueTransfers(context.Background(), time.Now().UTC()); err != nil {
			logger.WithError(err).Error("Ошибка прохода регулярных переводов")
		}
	}); err != nil {
		logger.Fatalf("Ошибка настройки планировщика: %v", err)
	}
	if _, err := c.AddFunc(cfg.InterestSweepSpec, func() {
		logger.Info("Запуск начисления процентов")
		if _, err := interestService.AccrueDue(context.Background(), time.Now().UTC()); err != nil {
			logger.WithError(err).Error("Ошибка начисления процентов")
		}
	}); err != nil {
		logger.Fatalf("Ошибка настройки начисления процентов: %v", err)
	}
	c.Start()

	// Настройка и запуск HTTP сервера
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Запуск сервера на %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Ошибка сервера: %v", err)
		}
	}()

	// Ожидание сигналов для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Завершение работы сервера...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Ошибка при завершении работы сервера: %v", err)
	}
	// дожидаемся текущих проходов планировщика
	<-c.Stop().Done()
	logger.Info("Сервер успешно остановлен")
}
