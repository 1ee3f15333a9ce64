package entrypoint

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/audit"
	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/circulation"
	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	auditrepo "github.com/mrlokans/librarian/internal/database/audit"
	"github.com/mrlokans/librarian/internal/database/notifications"
	http_controllers "github.com/mrlokans/librarian/internal/http"
	"github.com/mrlokans/librarian/internal/notify"
	"github.com/mrlokans/librarian/internal/scheduler"
	"github.com/mrlokans/librarian/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// kill (no param) sends SIGTERM, kill -2 is SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop accepting requests before the background workers go away
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server Shutdown: %v", err)
	}

	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Librarian v%s", version)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	var archiver *audit.Archiver
	if cfg.Audit.ArchiveDir != "" {
		archiver = audit.NewArchiver(cfg.Audit.ArchiveDir)
		log.Printf("Expired audit events will be archived to %s", cfg.Audit.ArchiveDir)
	}
	auditService := audit.NewService(auditrepo.NewRepository(db.DB), archiver)
	inbox := notifications.NewRepository(db.DB)

	// The task queue needs the notifier and the notifier needs the queue, so
	// the service is built first and the queues registered afterwards.
	var taskClient *tasks.Client
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.ConfigFrom(cfg.Tasks))
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()
	}

	var notifier *notify.Notifier
	if taskClient != nil {
		notifier = notify.New(taskClient, inbox)
	} else {
		notifier = notify.New(nil, inbox)
	}

	service, err := circulation.NewService(db,
		circulation.WithPolicy(circulation.PolicyFromConfig(cfg.Library)),
		circulation.WithAuditSink(auditService),
		circulation.WithNotifier(notifier),
	)
	if err != nil {
		log.Fatalf("Failed to initialize circulation service: %v", err)
	}
	policy := service.Policy()
	log.Printf("Circulation policy: %d day loans, %d extension(s) of %d days, fine %d per day",
		policy.LoanPeriodDays, policy.MaxExtensions, policy.ExtensionDays, policy.DailyFineRate)

	var taskCtxCancel context.CancelFunc
	if taskClient != nil {
		taskClient.Register(
			tasks.NewSendNotificationQueue(inbox),
			tasks.NewAccrueOverdueFinesQueue(service),
			tasks.NewReconcileInventoryQueue(service),
			tasks.NewCleanupAuditEventsQueue(auditService),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		taskClient.Start(taskCtx)
	}

	var sched *scheduler.Scheduler
	if cfg.Schedules.Enabled {
		sched = startScheduler(cfg, taskClient, service, auditService)
	}

	authService := auth.NewService(db.DB, cfg.Auth)
	sessionManager, err := auth.NewSessionManager(db, cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to initialize session manager: %v", err)
	}

	var csrfSecret []byte
	if cfg.Auth.CSRFEnabled {
		csrfSecret = loadCSRFSecret(cfg.Auth.SessionSecret)
	}

	if hasUsers, err := authService.HasUsers(); err == nil && !hasUsers {
		log.Printf("No users found. POST /api/auth/setup to create an administrator account.")
	}

	hstsMaxAge := 0
	if cfg.Auth.SecureCookies {
		hstsMaxAge = 31536000
	}

	router := http_controllers.NewRouter(http_controllers.RouterConfig{
		Database:       db,
		Circulation:    service,
		Auditor:        auditService,
		AuthService:    authService,
		SessionManager: sessionManager,
		CSRFSecret:     csrfSecret,
		SecureCookies:  cfg.Auth.SecureCookies,
		HSTSMaxAge:     hstsMaxAge,
		TaskClient:     taskClient,
		Version:        version,
	})

	onShutdown := func(ctx context.Context) {
		if sched != nil {
			sched.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
		notifier.Wait()
		auditService.Wait()
	}

	Serve(router, cfg, onShutdown)
}

func startScheduler(cfg *config.Config, taskClient *tasks.Client, service *circulation.Service, auditService *audit.Service) *scheduler.Scheduler {
	sched, err := scheduler.New(cfg.Schedules.TimezoneLocation, cfg.Tasks.TaskTimeout)
	if err != nil {
		log.Fatalf("Failed to initialize scheduler: %v", err)
	}

	var queue scheduler.Enqueuer
	if taskClient != nil {
		queue = taskClient
	}
	err = scheduler.RegisterCirculationJobs(sched, cfg.Schedules, queue, scheduler.Jobs{
		Sweeper:       service,
		Reconciler:    service,
		Cleaner:       auditService,
		RetentionDays: cfg.Audit.RetentionDays,
	})
	if err != nil {
		log.Fatalf("Failed to register scheduled jobs: %v", err)
	}

	sched.Start(context.Background())
	return sched
}

// loadCSRFSecret decodes a hex secret, falls back to the raw bytes, and
// generates a throwaway secret when none is configured.
func loadCSRFSecret(configured string) []byte {
	if configured != "" {
		secret, err := hex.DecodeString(configured)
		if err != nil {
			return []byte(configured)
		}
		return secret
	}

	generated, err := auth.GenerateSessionSecret()
	if err != nil {
		log.Fatalf("Failed to generate CSRF secret: %v", err)
	}
	secret, _ := hex.DecodeString(generated)
	log.Printf("Generated session secret (set AUTH_SESSION_SECRET to persist)")
	return secret
}
