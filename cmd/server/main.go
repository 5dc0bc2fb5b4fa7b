package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redispkg "github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"canonsync/internal/api/handler"
	"canonsync/internal/config"
	"canonsync/internal/core/postgres/repository"
	"canonsync/internal/domain"
	"canonsync/internal/identity"
	infraredis "canonsync/internal/infrastructure/redis"
	"canonsync/internal/linker"
	"canonsync/internal/notifier"
	"canonsync/internal/reader"
	"canonsync/internal/scheduler"
	"canonsync/internal/service"
	syncer "canonsync/internal/sync"
	"canonsync/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// 2. Set up database connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := db.AutoMigrate(
		&domain.CanonicalWorkflow{},
		&domain.WorkflowFile{},
		&domain.GitState{},
		&domain.EnvironmentMapping{},
		&domain.ContentDigest{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// 3. Set up redis (sync guard, job queue, event bus)
	redisClient, err := infraredis.NewRedisClient(cfg.Redis.Address)
	if err != nil {
		log.Fatal("Failed to connect to redis:", err)
	}
	guard := infraredis.NewSyncLock(redisClient)
	queue := infraredis.NewSyncJobQueue(redisClient)
	events := infraredis.NewSyncEventBus(redisClient)

	// 4. Initialize repositories
	canonicals := repository.NewCanonicalRepository(db)
	gitStates := repository.NewGitStateRepository(db)
	mappings := repository.NewMappingRepository(db)
	workflowFiles := repository.NewWorkflowFileRepository(db)
	digests := repository.NewDigestRepository(db)

	// 5. Identity pipeline and orchestrators
	fingerprinter := identity.NewFingerprinter(digests)
	autoLinker := linker.NewAutoLinker(gitStates, mappings)

	trackedPaths := make(map[string]string)
	endpoints := make(map[string]reader.RuntimeEndpoint)
	classes := make(map[string]domain.EnvironmentClass)
	for id, env := range cfg.Environments {
		trackedPaths[id] = env.TrackedPath
		endpoints[id] = reader.RuntimeEndpoint{BaseURL: env.RuntimeURL, APIKey: env.APIKey}
		if env.Class == string(domain.EnvironmentFull) {
			classes[id] = domain.EnvironmentFull
		} else {
			classes[id] = domain.EnvironmentObservational
		}
	}

	opts := syncer.Options{
		BatchSize:     cfg.Sync.BatchSize,
		Concurrency:   cfg.Sync.Concurrency,
		ReaderTimeout: cfg.Sync.ReaderTimeout,
		RetryAttempts: cfg.Sync.RetryAttempts,
		RetryBackoff:  cfg.Sync.RetryBackoff,
	}
	repoSyncer := syncer.NewRepositorySyncer(
		reader.NewFSRepositoryReader(trackedPaths),
		canonicals, gitStates, workflowFiles, mappings, fingerprinter, opts,
	)
	envSyncer := syncer.NewEnvironmentSyncer(
		reader.NewHTTPRuntimeReader(endpoints),
		mappings, autoLinker, fingerprinter, classes, opts,
	)

	// 6. Initialize service layer
	syncService := service.NewSyncService(
		repoSyncer, envSyncer, canonicals, mappings, guard, queue, events, fingerprinter, cfg.Sync.LockTTL,
	)

	// 7. Start the queue worker, the event notifier and, if enabled, the
	// scheduler
	syncWorker := worker.NewWorker(queue, worker.InitRegistry(syncService))
	go syncWorker.Start(ctx)

	go func() {
		if err := notifier.NewLogNotifier(events).Start(ctx); err != nil {
			log.Printf("Sync event notifier failed to start: %v", err)
		}
	}()

	if cfg.Scheduler.Enabled {
		go scheduler.NewScheduler(queue, schedulerTargets(cfg), cfg.Scheduler.Interval).Start(ctx)
	}

	// 8. Set up routes
	syncHandler := handler.NewSyncHandler(syncService)
	router := gin.Default()

	api := router.Group("/api/v1")
	{
		api.POST("/sync/repository", syncHandler.SyncRepository)
		api.POST("/sync/environment", syncHandler.SyncEnvironment)
		api.GET("/tenants/:tenant_id/environments/:environment_id/mappings/:canonical_id/status", syncHandler.GetMappingStatus)
		api.PUT("/tenants/:tenant_id/environments/:environment_id/mappings/:canonical_id/status", syncHandler.SetMappingStatus)
		api.DELETE("/workflows/:canonical_id", syncHandler.DeleteWorkflow)
	}
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", healthz(db, redisClient.Ping))

	// 9. Start server
	log.Println("Server starting on", cfg.Server.Address)
	if err := router.Run(cfg.Server.Address); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func schedulerTargets(cfg *config.Config) []scheduler.Target {
	var targets []scheduler.Target
	for _, t := range cfg.Targets {
		tenantID, err := uuid.Parse(t.TenantID)
		if err != nil {
			log.Printf("Skipping scheduler target with invalid tenant id %q", t.TenantID)
			continue
		}
		targets = append(targets, scheduler.Target{TenantID: tenantID, EnvironmentID: t.EnvironmentID})
	}
	return targets
}

func healthz(db *gorm.DB, pingRedis func(ctx context.Context) *redispkg.StatusCmd) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{"db": "ok", "redis": "ok"}
		healthy := true

		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			checks["db"] = "unreachable"
			healthy = false
		}
		if err := pingRedis(c.Request.Context()).Err(); err != nil {
			checks["redis"] = "unreachable"
			healthy = false
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, checks)
	}
}
