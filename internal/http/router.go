package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/database/books"
	"github.com/mrlokans/librarian/internal/database/favourites"
	"github.com/mrlokans/librarian/internal/database/notifications"
	"github.com/mrlokans/librarian/internal/database/reviews"
	"github.com/mrlokans/librarian/internal/database/users"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	router.Use(auth.SecurityHeadersMiddleware())
	if cfg.HSTSMaxAge > 0 {
		router.Use(auth.StrictTransportSecurityMiddleware(cfg.HSTSMaxAge))
	}

	// CSRF must run before session so that session context is preserved
	if len(cfg.CSRFSecret) > 0 {
		router.Use(auth.CSRFMiddleware(cfg.CSRFSecret, cfg.SecureCookies, !cfg.SecureCookies, cfg.AuthService))
	}
	router.Use(cfg.SessionManager.LoadAndSave())
	router.Use(auth.NewMiddleware(cfg.AuthService, cfg.SessionManager).Handler())

	db := cfg.Database.DB
	catalog := books.NewRepository(db)

	health := NewHealthController(cfg.Database, cfg.Version)
	authController := auth.NewAuthController(cfg.AuthService, cfg.SessionManager, cfg.Auditor)
	booksController := NewBooksController(catalog, cfg.Circulation)
	copiesController := NewCopiesController(cfg.Circulation)
	loansController := NewLoansController(cfg.Circulation)
	finesController := NewFinesController(cfg.Circulation)
	reviewsController := NewReviewsController(reviews.NewRepository(db), cfg.Circulation)
	favouritesController := NewFavouritesController(favourites.NewRepository(db), catalog)
	notificationsController := NewNotificationsController(notifications.NewRepository(db))
	usersController := NewUsersController(users.NewRepository(db), cfg.AuthService, cfg.Auditor)
	auditController := NewAuditController(cfg.Auditor)

	var queue TaskEnqueuer
	if cfg.TaskClient != nil {
		queue = cfg.TaskClient
	}
	maintenanceController := NewMaintenanceController(cfg.Circulation, queue)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", health.Ping)

	authController.RegisterRoutes(router)

	api := router.Group("/api")
	staff := auth.RequireStaff()
	admin := auth.RequireAdmin()

	// Catalog and inventory
	api.GET("/books", booksController.List)
	api.GET("/books/:id", booksController.Get)
	api.GET("/books/:id/copies", booksController.Copies)
	api.POST("/books", staff, booksController.Create)
	api.PATCH("/books/:id", staff, booksController.Update)
	api.DELETE("/books/:id", admin, booksController.Delete)
	api.POST("/books/:id/copies", staff, copiesController.Add)
	api.DELETE("/books/:id/copies", staff, copiesController.Remove)
	api.POST("/books/:id/force-return", admin, copiesController.ForceReturn)
	api.PATCH("/copies/:id/status", staff, copiesController.SetStatus)

	// Loans
	api.POST("/loans", loansController.Create)
	api.GET("/loans", loansController.Mine)
	api.GET("/loans/overdue", staff, loansController.Overdue)
	api.POST("/loans/:id/return", loansController.Return)
	api.POST("/loans/:id/extend", loansController.Extend)
	api.POST("/books/:id/return", loansController.ReturnBook)
	api.GET("/users/:id/loans", loansController.ForUser)

	// Fines
	api.GET("/fines", finesController.List)
	api.POST("/fines/:id/settle", staff, finesController.Settle)

	// Reviews
	api.GET("/books/:id/reviews", reviewsController.List)
	api.PUT("/books/:id/reviews", reviewsController.Write)
	api.DELETE("/books/:id/reviews/:reviewId", reviewsController.Delete)

	// Favourites
	api.GET("/favourites", favouritesController.List)
	api.POST("/books/:id/favourite", favouritesController.Add)
	api.DELETE("/books/:id/favourite", favouritesController.Remove)

	// Notifications
	api.GET("/notifications", notificationsController.List)
	api.POST("/notifications/read-all", notificationsController.MarkAllRead)
	api.POST("/notifications/:id/read", notificationsController.MarkRead)

	// Administration
	adminGroup := api.Group("/admin", admin)
	adminGroup.GET("/users", usersController.List)
	adminGroup.POST("/users", usersController.Create)
	adminGroup.PATCH("/users/:id/active", usersController.SetActive)
	adminGroup.PATCH("/users/:id/role", usersController.SetRole)
	adminGroup.GET("/audit", auditController.List)
	adminGroup.POST("/reconcile", maintenanceController.Reconcile)
	adminGroup.POST("/fines/sweep", maintenanceController.SweepFines)
	adminGroup.GET("/summary", maintenanceController.Summary)
	if cfg.TaskClient != nil {
		tasksController := NewTasksController(cfg.TaskClient)
		adminGroup.GET("/tasks/:id", tasksController.GetTaskStatus)
	}

	return router
}
