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

	accessrepo "migrant-health-access/backend/internal/accessgrant/repository"
	accessservice "migrant-health-access/backend/internal/accessgrant/service"
	"migrant-health-access/backend/internal/api"
	"migrant-health-access/backend/internal/audit"
	auditrepo "migrant-health-access/backend/internal/audit/repository"
	"migrant-health-access/backend/internal/clock"
	"migrant-health-access/backend/internal/config"
	"migrant-health-access/backend/internal/db"
	"migrant-health-access/backend/internal/devotp"
	recordrepo "migrant-health-access/backend/internal/healthrecord/repository"
	migrantrepo "migrant-health-access/backend/internal/migrant/repository"
	"migrant-health-access/backend/internal/notify/sms"
	"migrant-health-access/backend/internal/policy/engine"
	policyrepo "migrant-health-access/backend/internal/policy/repository"
	requesterrepo "migrant-health-access/backend/internal/requester/repository"
	requesterservice "migrant-health-access/backend/internal/requester/service"
	"migrant-health-access/backend/internal/security"
	"migrant-health-access/backend/internal/telemetry"
	telemetryotel "migrant-health-access/backend/internal/telemetry/otel"
	"migrant-health-access/backend/internal/telemetry/producer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
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

	ctx := context.Background()
	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, "mha-api", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()

	emitters := telemetry.MultiEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		defer kafkaProducer.Close()
	}

	clk := clock.System{}

	requesters := requesterrepo.NewPostgresRepository(conn)
	migrants := migrantrepo.NewPostgresRepository(conn)
	records := recordrepo.NewPostgresRepository(conn)
	requests := accessrepo.NewPostgresRepository(conn)
	policies := policyrepo.NewPostgresRepository(conn)
	audits := auditrepo.NewPostgresRepository(conn)

	auditor := audit.NewLogger(audits, api.ClientIP, clk)
	evaluator := engine.NewOPAEvaluator(policies)
	if err := evaluator.HealthCheck(ctx); err != nil {
		log.Fatalf("consent policy: %v", err)
	}

	var sender sms.Sender
	var devStore *devotp.MemoryStore
	if cfg.OTPReturnToClient {
		log.Println("dev OTP mode enabled: codes are NOT sent by SMS and are readable via GET /api/dev/otp")
		devStore = devotp.NewMemoryStore(clk)
		sender = sms.NopSender{}
	} else {
		sender = sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)
	}

	var devPut accessservice.DevOTPStore
	var devGet api.DevOTPReader
	if devStore != nil {
		devPut = devStore
		devGet = devStore
	}

	access := accessservice.NewService(requests, migrants, records, evaluator,
		sender, devPut, auditor, emitters, cfg.OTPLifetime(), clk)
	auth := requesterservice.NewAuthService(requesters, security.NewHasher(cfg.BcryptCost), tokens, clk)

	handler := api.NewHandler(auth, access, migrants, records, devGet, clk)
	router := api.NewRouter(handler, tokens)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	// Let in-flight async telemetry emits finish before the providers go away.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("telemetry shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}
