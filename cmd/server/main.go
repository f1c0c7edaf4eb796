// server runs the auth HTTP API and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	accounthandler "consultancy-auth/backend/internal/account/handler"
	accountrepo "consultancy-auth/backend/internal/account/repository"
	accountservice "consultancy-auth/backend/internal/account/service"
	"consultancy-auth/backend/internal/audit"
	auditrepo "consultancy-auth/backend/internal/audit/repository"
	"consultancy-auth/backend/internal/config"
	"consultancy-auth/backend/internal/db"
	devicerepo "consultancy-auth/backend/internal/device/repository"
	deviceservice "consultancy-auth/backend/internal/device/service"
	"consultancy-auth/backend/internal/devotp"
	devotphandler "consultancy-auth/backend/internal/devotp/handler"
	healthhandler "consultancy-auth/backend/internal/health/handler"
	identityhandler "consultancy-auth/backend/internal/identity/handler"
	identityservice "consultancy-auth/backend/internal/identity/service"
	"consultancy-auth/backend/internal/logger"
	"consultancy-auth/backend/internal/notify"
	orgrepo "consultancy-auth/backend/internal/organization/repository"
	otprepo "consultancy-auth/backend/internal/otp/repository"
	otpservice "consultancy-auth/backend/internal/otp/service"
	passkeyrepo "consultancy-auth/backend/internal/passkey/repository"
	resetrepo "consultancy-auth/backend/internal/passwordreset/repository"
	"consultancy-auth/backend/internal/policy/engine"
	"consultancy-auth/backend/internal/security"
	"consultancy-auth/backend/internal/server"
	"consultancy-auth/backend/internal/session"
	sessiondomain "consultancy-auth/backend/internal/session/domain"
	"consultancy-auth/backend/internal/telemetry"
	"consultancy-auth/backend/internal/telemetry/otel"
)

const (
	serviceName         = "consultancy-auth"
	healthCheckInterval = 15 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func tokenKeys(cfg *config.Config) map[security.Purpose]security.PurposeKey {
	return map[security.Purpose]security.PurposeKey{
		security.PurposeAccess:            {Secret: []byte(cfg.AccessTokenSecret), TTL: cfg.AccessTTL()},
		security.PurposeRefresh:           {Secret: []byte(cfg.RefreshTokenSecret), TTL: cfg.RefreshTTL()},
		security.PurposeEmailVerification: {Secret: []byte(cfg.EmailVerificationSecret), TTL: cfg.EmailVerificationExpiry()},
		security.PurposeTwoFactor:         {Secret: []byte(cfg.TwoFactorVerificationSecret), TTL: cfg.TwoFactorExpiry()},
		security.PurposePasswordReset:     {Secret: []byte(cfg.ForgotPasswordSecret), TTL: cfg.ForgotPasswordExpiry()},
		security.PurposeSudo:              {Secret: []byte(cfg.SudoAccessTokenSecret), TTL: cfg.SudoTTL()},
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otel.NewProviders(ctx, otel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	}, log)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Warn("otel shutdown", zap.Error(err))
		}
	}()
	metrics, err := telemetry.NewAuthMetrics(nil)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer conn.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	policySrc, err := engine.LoadPolicyFile(cfg.DeviceTrustPolicyFile)
	if err != nil {
		return err
	}
	policy, err := engine.NewOPAEvaluator(ctx, policySrc, log)
	if err != nil {
		return err
	}

	encryptor, err := security.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("encryptor: %w", err)
	}
	codec := security.NewTokenCodec(cfg.JWTIssuer, tokenKeys(cfg))
	sealer := security.NewSealer(codec, encryptor)
	hasher := security.NewHasher(cfg.BcryptCost)
	issuer := identityservice.NewTokenIssuer(codec, security.NewCookieSigner(cfg.CookieSecret), cfg.IsProduction())

	accounts := accountrepo.NewPostgresRepository(conn)
	devices := devicerepo.NewPostgresRepository(conn)
	sessions := session.NewRefreshStore(session.NewRedisStore[sessiondomain.RefreshSession](rdb), devices, cfg.RefreshTTL())
	deviceManager := deviceservice.NewDeviceManager(devices, passkeyrepo.NewPostgresRepository(conn), sessions, policy, log)
	otp := otpservice.NewOTPService(otprepo.NewPostgresRepository(conn), sealer, hasher, metrics, log)
	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(conn), otel.NewAuditEmitter(providers.LoggerProvider), log)

	var notifier notify.Notifier = notify.NewLogNotifier(log)
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		kafkaNotifier := notify.NewKafkaNotifier(brokers, cfg.NotifyKafkaTopic)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
	}
	var devCodes *devotp.MemoryStore
	if cfg.OTPReturnToClient && !cfg.IsProduction() {
		devCodes = devotp.NewMemoryStore()
		notifier = devotp.NewRecorder(notifier, devCodes)
		log.Warn("dev OTP mode enabled: codes are served from GET /dev/otp")
	}

	authService := identityservice.NewAuthService(identityservice.Dependencies{
		Accounts:            accounts,
		Resets:              resetrepo.NewPostgresRepository(conn),
		OTP:                 otp,
		Devices:             deviceManager,
		Sessions:            sessions,
		Issuer:              issuer,
		Sealer:              sealer,
		Hasher:              hasher,
		Notifier:            notifier,
		Audit:               auditLogger,
		Metrics:             metrics,
		Logger:              log,
		PasswordHistorySize: cfg.PasswordHistorySize,
	})
	twoFactor := identityservice.NewTwoFactorService(authService, notifier, log)
	sudo := identityservice.NewSudoService(accounts, hasher, issuer, auditLogger, log)
	accountService := accountservice.NewAccountService(accounts, orgrepo.NewPostgresRepository(conn), hasher, otp, deviceManager, notifier, auditLogger, log)

	health := healthhandler.NewServer(conn, rdb, policy, log)
	routes := []server.Registrar{
		health,
		identityhandler.New(authService, twoFactor, sudo, issuer),
		accounthandler.New(accountService, issuer, sudo),
	}
	if devCodes != nil {
		routes = append(routes, devotphandler.New(devCodes))
	}
	app := server.NewHTTPApp(log, routes...)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	grpcServer := server.NewGRPCServer(log)
	server.RegisterServices(grpcServer, server.Deps{Health: health})
	go health.Run(ctx, healthCheckInterval)

	errCh := make(chan error, 2)
	go func() {
		log.Info("gRPC health server listening", zap.String("addr", cfg.GRPCAddr))
		errCh <- grpcServer.Serve(lis)
	}()
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- app.Listen(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, net.ErrClosed) {
			log.Error("listener failed", zap.Error(err))
		}
		stop()
	}

	log.Info("shutting down...")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()
	log.Info("stopped")
	return nil
}
