package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/libraryhub/backend/internal/audit"
	"github.com/libraryhub/backend/internal/config"
	"github.com/libraryhub/backend/internal/database"
	"github.com/libraryhub/backend/internal/handlers"
	"github.com/libraryhub/backend/internal/logger"
	"github.com/libraryhub/backend/internal/services"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// @title Library Lending API
// @version 1.0
// @description Catalog, issue requests, overdue fines and payments for a university library
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	config.Load()

	zapLogger, err := logger.New()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	if viper.GetString("jwt.secret_key") == "" {
		zapLogger.Fatal("jwt.secret_key must be set")
	}

	db, err := database.InitDB(zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := database.RunMigrations(db, zapLogger); err != nil {
		zapLogger.Fatal("failed to run migrations", zap.Error(err))
	}

	redisClient := database.InitRedis(zapLogger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	lending := config.LoadLendingConfig()
	auditLogger := audit.NewAuditLogger(zapLogger)

	authService := services.NewAuthService(db, redisClient, lending, zapLogger)
	catalogService := services.NewCatalogService(db, authService, zapLogger)
	membershipService := services.NewMembershipService(db, authService, zapLogger)
	notificationService := services.NewNotificationService(db, authService, zapLogger)
	fineService := services.NewFineService(db, authService, lending, auditLogger, zapLogger)
	loanService := services.NewLoanService(db, authService, fineService, lending, auditLogger, zapLogger)
	paymentService := services.NewPaymentService(db, redisClient, authService, fineService, lending, auditLogger, zapLogger)
	dashboardService := services.NewDashboardService(db, authService, loanService, zapLogger)

	router := handlers.NewRouter(handlers.Deps{
		Identity:   authService,
		Auth:       handlers.NewAuthHandler(authService, membershipService),
		Catalog:    handlers.NewCatalogHandler(catalogService),
		Loans:      handlers.NewLoanHandler(loanService),
		Fines:      handlers.NewFineHandler(fineService),
		Payments:   handlers.NewPaymentHandler(paymentService, viper.GetString("payment.callback_token")),
		Students:   handlers.NewStudentHandler(membershipService, notificationService),
		Dashboards: handlers.NewDashboardHandler(dashboardService),

		AllowedOrigins: splitList(viper.GetString("server.cors_origins")),
		CoverDir:       viper.GetString("server.cover_dir"),
		OpenAPIPath:    viper.GetString("server.openapi_path"),
	})

	port := viper.GetString("server.port")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("server starting", zap.String("port", port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}
	zapLogger.Info("server stopped")
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
