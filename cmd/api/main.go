package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/etution/etution-api/api/swagger"
	"github.com/etution/etution-api/internal/gateway"
	"github.com/etution/etution-api/internal/handler"
	"github.com/etution/etution-api/internal/middleware"
	"github.com/etution/etution-api/internal/models"
	"github.com/etution/etution-api/internal/repository"
	"github.com/etution/etution-api/internal/service"
	"github.com/etution/etution-api/pkg/cache"
	"github.com/etution/etution-api/pkg/config"
	"github.com/etution/etution-api/pkg/database"
	"github.com/etution/etution-api/pkg/logger"
	corsmiddleware "github.com/etution/etution-api/pkg/middleware/cors"
	reqidmiddleware "github.com/etution/etution-api/pkg/middleware/requestid"
)

// @title eTution API
// @version 1.0.0
// @description Tuition marketplace backend: posts, applications, payments
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Role lookups degrade to direct queries without the cache.
		logr.Sugar().Warnw("redis unavailable, continuing without role cache", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	tuitionRepo := repository.NewTuitionRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	roleCache := repository.NewRoleCache(redisClient, cfg.Roles.CacheTTL)

	audit := service.NewAuditRecorder(userRepo, logr, cfg.Audit)
	audit.Start(ctx)
	defer audit.Stop()

	authService := service.NewAuthService(userRepo, validate, logr, audit, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	roleService := service.NewRoleService(userRepo, roleCache, logr, cfg.Roles.LookupTimeout)
	tuitionService := service.NewTuitionService(tuitionRepo, validate, logr, audit)
	applicationService := service.NewApplicationService(applicationRepo, tuitionRepo, validate, logr)
	checkoutGateway := gateway.NewHTTPClient(cfg.Payments.GatewayBaseURL, cfg.Payments.GatewayAPIKey, &http.Client{Timeout: 15 * time.Second})
	paymentService := service.NewPaymentService(paymentRepo, applicationRepo, checkoutGateway, cfg.Payments, validate, logr, audit)
	userService := service.NewUserService(userRepo, roleService, validate, logr, audit)
	metricsService := service.NewMetricsService()
	roleService.SetMetrics(metricsService)
	tuitionService.SetMetrics(metricsService)
	applicationService.SetMetrics(metricsService)
	paymentService.SetMetrics(metricsService)

	authHandler := handler.NewAuthHandler(authService, roleService)
	userHandler := handler.NewUserHandler(userService, roleService)
	tuitionHandler := handler.NewTuitionHandler(tuitionService)
	applicationHandler := handler.NewApplicationHandler(applicationService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	metricsHandler := handler.NewMetricsHandler(metricsService, db, redisClient)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authService), authHandler.Me)
	}

	api.GET("/tutors/latest", userHandler.Tutors)

	users := api.Group("/users", middleware.JWT(authService), middleware.ResolveRole(roleService))
	{
		users.GET("/role/:email", userHandler.Role)
		users.PATCH("/profile", userHandler.UpdateProfile)
	}

	tuitions := api.Group("/tuitions")
	{
		tuitions.GET("", middleware.OptionalJWT(authService), middleware.ResolveRole(roleService), tuitionHandler.List)
		tuitions.GET("/:id", middleware.OptionalJWT(authService), middleware.ResolveRole(roleService), tuitionHandler.Get)

		protected := tuitions.Group("", middleware.JWT(authService), middleware.ResolveRole(roleService))
		protected.POST("", middleware.RequireRoles(models.RoleStudent), tuitionHandler.Create)
		protected.PUT("/:id", middleware.RequireRoles(models.RoleStudent), tuitionHandler.Update)
		protected.PATCH("/:id/status", middleware.RequireRoles(models.RoleAdmin), tuitionHandler.Moderate)
		protected.DELETE("/:id", middleware.RequireRoles(models.RoleStudent, models.RoleAdmin), tuitionHandler.Delete)
	}

	applications := api.Group("/applications", middleware.JWT(authService), middleware.ResolveRole(roleService))
	{
		applications.POST("", middleware.RequireRoles(models.RoleTutor), applicationHandler.Apply)
		applications.GET("", applicationHandler.List)
		applications.GET("/:id", applicationHandler.Get)
		applications.PATCH("/:id", applicationHandler.Update)
		applications.DELETE("/:id", middleware.RequireRoles(models.RoleTutor), applicationHandler.Delete)
	}

	payments := api.Group("/payments", middleware.JWT(authService), middleware.ResolveRole(roleService))
	{
		payments.POST("/checkout", middleware.RequireRoles(models.RoleStudent), paymentHandler.Checkout)
		payments.PATCH("/success", paymentHandler.Confirm)
		payments.GET("", paymentHandler.List)
		payments.GET("/:id/receipt", paymentHandler.Receipt)
	}

	admin := api.Group("/admin", middleware.JWT(authService), middleware.ResolveRole(roleService), middleware.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/users", userHandler.List)
		admin.PATCH("/users/:id/role", userHandler.ChangeRole)
		admin.DELETE("/users/:id", userHandler.Delete)
		admin.GET("/reports/payments", paymentHandler.Report)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
