package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mailmirror/core/internal/attachment"
	jwtpkg "github.com/mailmirror/core/internal/auth/jwt"
	"github.com/mailmirror/core/internal/config"
	"github.com/mailmirror/core/internal/domain"
	"github.com/mailmirror/core/internal/health"
	"github.com/mailmirror/core/internal/logger"
	"github.com/mailmirror/core/internal/monitoring"
	"github.com/mailmirror/core/internal/orchestrator"
	"github.com/mailmirror/core/internal/queue"
	queueredis "github.com/mailmirror/core/internal/queue/redis"
	"github.com/mailmirror/core/internal/scheduler"
	"github.com/mailmirror/core/internal/store/postgres"
	httptransport "github.com/mailmirror/core/internal/transport/http"
	"github.com/mailmirror/core/internal/vault"
	"github.com/mailmirror/core/internal/worker"
)

// Queue worker concurrency: each queue's pool runs at most two jobs at
// a time (§5).
const (
	initialSyncConcurrency      = 2
	incrementalSyncConcurrency  = 2
	attachmentUploadConcurrency = 2
)

// leaseReapInterval is how often the reaper sweeps the processing set
// for leases an acking/retrying worker crashed before clearing. It
// runs well under leaseDuration so a dead worker's job comes back for
// another attempt within minutes, not hours.
const leaseReapInterval = 1 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("starting mailmirror core",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	st, err := postgres.New(cfg.Database.URL)
	if err != nil {
		log.Fatal("failed to open mirror store", zap.Error(err))
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Queue.URL,
		Username: cfg.Queue.User,
		Password: cfg.Queue.Password,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("failed to connect to job queue", zap.Error(err))
	}
	q := queueredis.New(rdb)

	vlt, err := vault.New(cfg.Vault.EncryptionKey)
	if err != nil {
		log.Fatal("failed to initialize credential vault", zap.Error(err))
	}

	jwtManager := jwtpkg.NewManager(cfg.JWT.Secret, "mailmirror", cfg.JWT.Expiry)

	metrics := monitoring.NewMetrics()

	orch := orchestrator.New(st, vlt, q, orchestrator.Config{
		CertsDir:              cfg.IMAP.CertsDir,
		TLSRejectUnauthorized: cfg.IMAP.TLSRejectUnauthorized,
		MSClientID:            cfg.OAuth.MSClientID,
		MSClientSecret:        cfg.OAuth.MSClientSecret,
	}, metrics, log)

	uploader, err := attachmentUploader()
	if err != nil {
		log.Fatal("failed to initialize attachment uploader", zap.Error(err))
	}

	pool := worker.New(q, log, metrics)
	pool.Register(domain.QueueInitialSync, initialSyncConcurrency, worker.InitialSyncHandler(orch))
	pool.Register(domain.QueueIncrementalSync, incrementalSyncConcurrency, worker.IncrementalSyncHandler(orch))
	pool.Register(domain.QueueAttachmentUpload, attachmentUploadConcurrency, worker.AttachmentUploadHandler(uploader, st))

	sched := scheduler.New(st, q, metrics, log)

	healthChecker := health.New(st, rdb, log)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Store:        st,
		Orchestrator: orch,
		JWTManager:   jwtManager,
		Health:       healthChecker,
		Metrics:      metrics,
		Logger:       log,
		ClientURL:    cfg.ClientURL,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting worker pool")
		return pool.Run(groupCtx)
	})

	group.Go(func() error {
		log.Info("starting sync scheduler")
		return sched.Run(groupCtx)
	})

	group.Go(func() error {
		log.Info("starting expired-lease reaper")
		return runLeaseReaper(groupCtx, q, log)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if err := rdb.Close(); err != nil {
			log.Warn("redis client close warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// runLeaseReaper periodically reclaims jobs whose lease expired
// without an Ack or Retry, which otherwise happens only when a worker
// crashes or is killed mid-job and never gets the chance to extend or
// clear its own lease (§4.6).
func runLeaseReaper(ctx context.Context, q queue.Queue, log *zap.Logger) error {
	ticker := time.NewTicker(leaseReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := q.PurgeExpired(ctx)
			if err != nil {
				log.Error("purging expired job leases", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("reclaimed expired job leases", zap.Int("count", n))
			}
		}
	}
}

// attachmentUploader returns the default attachment.Uploader: a local
// filesystem sink suitable for development and single-node
// deployments. A production multi-node deployment would swap this for
// a real object-storage SDK behind the same interface (§4.4, §6).
func attachmentUploader() (attachment.Uploader, error) {
	return attachment.NewLocalUploader("./data/attachments")
}
