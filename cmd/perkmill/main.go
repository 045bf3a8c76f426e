// Command perkmill runs the loyalty platform API server and its batch
// scheduler.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/perkmill/perkmill/internal/builder"
	"github.com/perkmill/perkmill/internal/config"
	"github.com/perkmill/perkmill/internal/db"
	internalhttp "github.com/perkmill/perkmill/internal/http"
	"github.com/perkmill/perkmill/internal/http/api"
	"github.com/perkmill/perkmill/internal/http/webhooks"
	"github.com/perkmill/perkmill/internal/logging"
	"github.com/perkmill/perkmill/internal/loyalty"
	"github.com/perkmill/perkmill/internal/notify"
	"github.com/perkmill/perkmill/internal/scheduler"
	"github.com/perkmill/perkmill/internal/shopify"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if errRun := run(*configPath); errRun != nil {
		log.WithError(errRun).Fatal("server exited")
	}
}

func run(configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	logging.Setup(cfg.LogLevel, cfg.LogFile)

	conn, errOpen := db.Open(cfg.DatabaseDSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	gamification := loyalty.NewGamificationService(conn)
	notifier := notify.LogSender{}
	discounts := shopify.NewAdminClient()
	anniversary := loyalty.NewAnniversaryService(conn, gamification, notifier, discounts)
	birthday := loyalty.NewBirthdayService(conn, notifier)
	guestPoints := loyalty.NewGuestPointsService(conn)
	events := loyalty.NewEventsService(conn, gamification)
	enrollment := loyalty.NewEnrollmentService(conn, guestPoints, events)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), internalhttp.AccessLogMiddleware())

	api.Register(engine, api.Services{
		DB:           conn,
		Anniversary:  anniversary,
		Birthday:     birthday,
		GuestPoints:  guestPoints,
		Gamification: gamification,
		Enrollment:   enrollment,
		Builder:      builder.NewService(conn),
		AppSecret:    cfg.ShopifyAPISecret,
	})
	webhooks.NewHandler(conn, rdb, events, enrollment, cfg.ShopifyAPISecret).Register(engine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	retention := loyalty.NewRetentionService(conn, cfg.Scheduler.RetentionDays)
	jobs := scheduler.New(cfg.Scheduler, anniversary, birthday, guestPoints, retention)
	if errStart := jobs.Start(ctx); errStart != nil {
		return errStart
	}

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: engine,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.WithField("addr", cfg.ListenAddr).Info("server listening")
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			return errServe
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		jobs.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
