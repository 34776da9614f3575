package appServer

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/yoye-booking/config"
	"github.com/ds124wfegd/yoye-booking/internal/clock"
	"github.com/ds124wfegd/yoye-booking/internal/database"
	"github.com/ds124wfegd/yoye-booking/internal/database/memory"
	repository "github.com/ds124wfegd/yoye-booking/internal/database/postgres"
	"github.com/ds124wfegd/yoye-booking/internal/database/redisstate"
	"github.com/ds124wfegd/yoye-booking/internal/service"
	"github.com/ds124wfegd/yoye-booking/internal/transport"
	"github.com/ds124wfegd/yoye-booking/internal/worker"
	"github.com/ds124wfegd/yoye-booking/pkg/postgres"
	"github.com/ds124wfegd/yoye-booking/pkg/queue"
	"github.com/ds124wfegd/yoye-booking/pkg/redis"
	"github.com/ds124wfegd/yoye-booking/pkg/scheduler"
	"github.com/ds124wfegd/yoye-booking/pkg/telegram"
)

const (
	driverMemory   = "memory"
	driverRedis    = "redis"
	driverPostgres = "postgres"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},           // ban on outdate TLS certificate
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags), // os.Stderr can be replaced with ElsasticSearch in the feature
	}
	// WriteTimeout не задаём: SSE с отсчётом оплаты живёт дольше одного запроса,
	// обычные маршруты ограничены middleware.Timeout
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// storage holds the repositories picked by cfg.Storage and the connections behind them.
type storage struct {
	states   database.StateRepository
	events   database.EventRepository
	bookings database.BookingRepository

	db    *sql.DB
	redis *goredis.Client
}

func openStorage(ctx context.Context, cfg *config.Config, clk clock.Clock) (*storage, error) {
	s := &storage{}
	drivers := cfg.Storage

	needsPostgres := drivers.StateDriver == driverPostgres || drivers.CatalogDriver == driverPostgres || drivers.BookingDriver == driverPostgres
	if needsPostgres {
		db, err := postgres.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, err
		}
		s.db = db

		if err := postgres.RunMigrations(ctx, db); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if drivers.StateDriver == driverRedis || cfg.Queue.Enabled {
		client, err := redis.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			if drivers.StateDriver == driverRedis {
				s.Close()
				return nil, err
			}
			// очередь переживёт без redis, задачи пойдут через память
			logrus.Errorf("Failed to connect to Redis: %v. Continuing with in-memory queue...", err)
		}
		s.redis = client
	}

	switch drivers.StateDriver {
	case driverRedis:
		s.states = redisstate.NewStateRepository(s.redis, cfg.Booking.StateTTL)
	case driverPostgres:
		s.states = repository.NewStateRepository(s.db)
	case driverMemory, "":
		s.states = memory.NewStateRepository(clk)
	default:
		s.Close()
		return nil, fmt.Errorf("unknown state driver %q", drivers.StateDriver)
	}

	switch drivers.CatalogDriver {
	case driverPostgres:
		if err := repository.SeedCatalog(ctx, s.db, memory.DefaultCatalog()); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to seed catalog: %w", err)
		}
		s.events = repository.NewEventRepository(s.db)
	case driverMemory, "":
		s.events = memory.NewEventRepository(memory.DefaultCatalog())
	default:
		s.Close()
		return nil, fmt.Errorf("unknown catalog driver %q", drivers.CatalogDriver)
	}

	switch drivers.BookingDriver {
	case driverPostgres:
		s.bookings = repository.NewBookingRepository(s.db)
	case driverMemory, "":
		s.bookings = memory.NewBookingRepository()
	default:
		s.Close()
		return nil, fmt.Errorf("unknown booking driver %q", drivers.BookingDriver)
	}

	logrus.WithFields(logrus.Fields{
		"state":   drivers.StateDriver,
		"catalog": drivers.CatalogDriver,
		"booking": drivers.BookingDriver,
	}).Info("Storage initialized")
	return s, nil
}

func (s *storage) Close() {
	if s.db != nil {
		s.db.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
}

// taskQueue is what the app needs from a queue: publishing, consuming and the admin view.
type taskQueue interface {
	queue.Queue
	transport.QueueInspector
}

func newTaskQueue(cfg *config.QueueConfig, client *goredis.Client) taskQueue {
	if cfg.Enabled && client != nil {
		redisConfig := queue.DefaultRedisQueueConfig()
		if cfg.Prefix != "" {
			redisConfig.Prefix = cfg.Prefix
		}
		redisConfig.MaxRetries = cfg.MaxRetries
		redisConfig.BaseDelay = cfg.BaseDelay

		logrus.Info("Redis queue initialized")
		return queue.NewRedisQueue(client, redisConfig)
	}

	retries, delay := cfg.MaxRetries, cfg.BaseDelay
	if retries <= 0 {
		retries = 3
	}
	if delay <= 0 {
		delay = 5 * time.Second
	}
	logrus.Info("In-memory queue initialized")
	return queue.NewMemoryQueue(256, queue.NewRetryManager(retries, delay))
}

func NewServer(cfg *config.Config) {

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.NewSystem()

	// Initialize storage
	store, err := openStorage(ctx, cfg, clk)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Initialize Telegram bot
	var notifier worker.Notifier
	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		notifier = telegram.NewBot(cfg.Telegram.BotToken, cfg.Telegram.ChatID, "")
		logrus.Info("Telegram bot initialized")
	} else {
		logrus.Warn("Telegram bot disabled, notifications are only logged")
	}

	tasks := newTaskQueue(&cfg.Queue, store.redis)
	defer tasks.Close()
	taskPublisher := service.NewQueueAdapter(tasks)

	// Initialize services
	catalogService := service.NewCatalogService(store.events)
	wizardService := service.NewWizardService(store.states, store.events, store.bookings, taskPublisher, clk, service.WizardConfig{
		StorageKey:   cfg.Booking.StorageKey,
		Budget:       cfg.Booking.PaymentTimeout,
		MaxProofSize: cfg.Booking.MaxProofSize,
	})
	trackingService := service.NewTrackingService(store.bookings, store.events, taskPublisher, clk, service.TrackingConfig{
		PageSize:       cfg.Tracking.PageSize,
		ReminderWindow: cfg.Tracking.ReminderWindow,
	})

	// Start queue consumer
	taskHandler := worker.NewTaskHandler(store.bookings, notifier)
	if err := tasks.Subscribe(ctx, taskHandler.HandleTask); err != nil {
		logrus.Errorf("Queue subscriber error: %v", err)
	} else {
		logrus.Info("Queue subscriber started")
	}

	// Initialize and start scheduler
	reminderScheduler := scheduler.NewScheduler(trackingService, cfg.Tracking.ReminderEvery)
	go func() {
		if err := reminderScheduler.Start(ctx); err != nil {
			logrus.Errorf("Reminder scheduler error: %v", err)
		}
	}()
	logrus.Info("Reminder scheduler started")

	// Initialize cleanup worker
	cleanupWorker := worker.NewStateCleanupWorker(store.states, clk, cfg.Worker.CleanupInterval, cfg.Worker.StaleAfter)
	go cleanupWorker.Start(ctx)

	// Initialize handlers
	eventHandler := transport.NewEventHandler(catalogService)
	sessionHandler := transport.NewSessionHandler(wizardService, cfg.Booking.MaxProofSize)
	bookingHandler := transport.NewBookingHandler(trackingService, tasks)

	// Setup HTTP server
	if cfg.IsProduction() || cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, transport.InitRoutes(cfg, eventHandler, sessionHandler, bookingHandler)); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithField("addr", cfg.GetServerAddress()).Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
	cancel()
	logrus.WithField("cleanup", cleanupWorker.GetStats()).Info("Background workers stopped")
}
