package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"reservo/authcore/internal/audit"
	auditrepo "reservo/authcore/internal/audit/repository"
	authsvc "reservo/authcore/internal/auth/service"
	"reservo/authcore/internal/authz"
	"reservo/authcore/internal/config"
	"reservo/authcore/internal/credential"
	"reservo/authcore/internal/db"
	"reservo/authcore/internal/db/migrate"
	ledgerrepo "reservo/authcore/internal/ledger/repository"
	ledgersvc "reservo/authcore/internal/ledger/service"
	principalrepo "reservo/authcore/internal/principal/repository"
	"reservo/authcore/internal/security"
	"reservo/authcore/internal/server"
	sessionrepo "reservo/authcore/internal/session/repository"
	sessionsvc "reservo/authcore/internal/session/service"
	"reservo/authcore/internal/telemetry"
	"reservo/authcore/internal/telemetry/otel"
	"reservo/authcore/internal/telemetry/producer"
	"reservo/authcore/internal/throttle"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if cfg.JWTPrivateKey == "" || cfg.JWTPublicKey == "" {
		log.Fatal("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set")
	}

	ctx := context.Background()

	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "reservo-authcore", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("migrate: %v", err)
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	privateKey, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt private key: %v", err)
	}
	publicKey, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt public key: %v", err)
	}
	tokens := security.NewTokenProvider(privateKey, publicKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	hasher := security.NewHasher(cfg.BcryptCost)

	principals := principalrepo.NewPostgres(conn)
	tokenRecords := ledgerrepo.NewPostgres(conn)
	sessions := sessionrepo.NewPostgres(conn)

	creds := credential.NewManager(principals, hasher, cfg.LockoutThreshold, cfg.LockoutWindow())
	ledger := ledgersvc.NewLedger(tokenRecords, principals, sessions, tokens, cfg.RefreshTTL())
	registry := sessionsvc.NewRegistry(sessions, ledger)

	var emitters telemetry.MultiEmitter
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		kafkaProducer, err := producer.NewKafkaProducer(brokers, cfg.KafkaTopic)
		if err != nil {
			log.Fatalf("kafka: %v", err)
		}
		if kafkaProducer != nil {
			defer kafkaProducer.Close()
			emitters = append(emitters, kafkaProducer)
		}
	}
	emitters = append(emitters, otel.NewEventEmitter(providers.LoggerProvider))

	auditor := audit.NewLogger(auditrepo.NewPostgresRepository(conn), nil)

	auth := authsvc.NewAuthService(creds, ledger, registry, principals, hasher, auditor, emitters)

	evaluator, err := authz.NewEvaluator(ctx, "")
	if err != nil {
		log.Fatalf("authz: %v", err)
	}

	var limiter *throttle.LoginLimiter
	if cfg.RedisAddr != "" && cfg.LoginRateLimit > 0 {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer redisClient.Close()
		limiter = throttle.NewLoginLimiter(redisClient, cfg.LoginRateLimit, cfg.RateWindow())
	}

	srv := server.New(auth, tokens, evaluator, limiter, conn, providers.MeterProvider)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, sweepCancel := context.WithCancel(ctx)
	defer sweepCancel()
	go sweepLoop(sweepCtx, ledger, cfg.GraceWindow())

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	time.Sleep(telemetry.ShutdownDrainDuration)
	log.Println("HTTP server stopped")
}

// sweepLoop periodically deletes refresh token records whose retention window
// has passed.
func sweepLoop(ctx context.Context, ledger *ledgersvc.Ledger, grace time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := ledger.Sweep(ctx, grace)
			if err != nil {
				log.Printf("ledger sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("ledger sweep: removed %d token records", n)
			}
		}
	}
}
