package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/splithaus/splithaus/internal/api"
	"github.com/splithaus/splithaus/internal/app"
	"github.com/splithaus/splithaus/internal/auth"
	"github.com/splithaus/splithaus/internal/database"
	"github.com/splithaus/splithaus/internal/gateway"
	"github.com/splithaus/splithaus/internal/maintenance"
	"github.com/splithaus/splithaus/internal/services"
	"github.com/splithaus/splithaus/pkg/logger"
	"github.com/splithaus/splithaus/pkg/mail"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging.Level); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	gin.SetMode(cfg.Server.Mode)

	db, err := database.OpenAndMigrate(database.Config{
		Driver:   cfg.Database.Driver,
		Path:     cfg.Database.Path,
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Name:     cfg.Database.Name,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return err
	}

	jwtService, err := auth.NewJWTService(auth.JWTConfig{
		Secret:         cfg.Auth.JWTSecret,
		Issuer:         cfg.Auth.Issuer,
		AccessTokenTTL: cfg.Auth.AccessTokenTTL,
	})
	if err != nil {
		return err
	}

	gatewayClient, err := gateway.NewClient(gateway.Config{
		BaseURL:       cfg.Gateway.BaseURL,
		APIKey:        cfg.Gateway.APIKey,
		IntegrationID: cfg.Gateway.IntegrationID,
		IframeID:      cfg.Gateway.IframeID,
		Timeout:       cfg.Gateway.Timeout,
	})
	if err != nil {
		return err
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{
		Enabled:  cfg.Email.Enabled,
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
		UseTLS:   cfg.Email.UseTLS,
	})
	if err != nil {
		return err
	}

	userService, err := services.NewUserService(db)
	if err != nil {
		return err
	}
	householdService, err := services.NewHouseholdService(db)
	if err != nil {
		return err
	}
	notificationService, err := services.NewNotificationService(db)
	if err != nil {
		return err
	}
	inviteService, err := services.NewInviteService(db, householdService, userService, notificationService, mailer,
		services.WithInviteExpiry(cfg.Invites.Expiry),
		services.WithInviteMaxUses(cfg.Invites.MaxUses),
		services.WithInviteBaseURL(cfg.Invites.BaseURL),
	)
	if err != nil {
		return err
	}
	paymentService, err := services.NewPaymentService(db, householdService, notificationService)
	if err != nil {
		return err
	}
	checkoutService, err := services.NewCheckoutService(db, gatewayClient, userService)
	if err != nil {
		return err
	}
	reconcileService, err := services.NewReconcileService(db, householdService, notificationService, cfg.Gateway.HMACSecret)
	if err != nil {
		return err
	}

	router := api.NewRouter(api.Services{
		DB:            db,
		JWT:           jwtService,
		Users:         userService,
		Households:    householdService,
		Invites:       inviteService,
		Payments:      paymentService,
		Checkout:      checkoutService,
		Reconcile:     reconcileService,
		Notifications: notificationService,
	})

	if cfg.Maintenance.Enabled {
		sweeper, err := maintenance.NewSweeper(paymentService, inviteService, notificationService)
		if err != nil {
			return err
		}
		if err := sweeper.Start(); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
