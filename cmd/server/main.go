package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/novascore/engine/internal/aa"
	"github.com/novascore/engine/internal/aadhaar"
	"github.com/novascore/engine/internal/api"
	"github.com/novascore/engine/internal/behaviour"
	"github.com/novascore/engine/internal/cache"
	"github.com/novascore/engine/internal/capability"
	"github.com/novascore/engine/internal/config"
	"github.com/novascore/engine/internal/consent"
	"github.com/novascore/engine/internal/gst"
	"github.com/novascore/engine/internal/identity"
	"github.com/novascore/engine/internal/jws"
	"github.com/novascore/engine/internal/metrics"
	"github.com/novascore/engine/internal/scoring"
	"github.com/novascore/engine/internal/social"
	"github.com/novascore/engine/internal/utility"
)

func main() {
	log.Println("🔥 Starting NovaScore credit intelligence engine...")

	// .env is optional; real deployments inject the environment directly.
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	var cfg *config.Config
	if cfgPath != "" {
		loaded, err := config.LoadConfig(cfgPath)
		if err != nil {
			log.Fatalf("Failed to load config %s: %v", cfgPath, err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}
	production := cfg.IsProduction()

	// Consent persistence: Postgres when reachable, memory otherwise.
	var consentStore consent.Store
	if cfg.Database.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pg, err := consent.NewPostgresStore(ctx, cfg.Database.URL)
		cancel()
		if err != nil {
			if production {
				log.Fatalf("Postgres unavailable in production: %v", err)
			}
			log.Printf("⚠️ Postgres unavailable (%v), consent log falls back to memory", err)
			consentStore = consent.NewMemoryStore()
		} else {
			log.Println("✅ Postgres connected")
			consentStore = pg
		}
	} else {
		log.Println("⚠️ DATABASE_URL not set, consent log held in memory")
		consentStore = consent.NewMemoryStore()
	}
	consentService := consent.NewService(consentStore)

	// Analysis cache: Redis when configured, memory otherwise.
	cacheStore := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer cacheStore.Close()

	httpClient := capability.NewHTTPClient(30 * time.Second)

	// Aadhaar OTP flow.
	identityStore := identity.NewStore(
		identity.WithMaxAttempts(orInt(cfg.Aadhaar.MaxAttempts, identity.DefaultMaxAttempts)),
		identity.WithLockout(minutesOr(cfg.Aadhaar.LockoutMinutes, identity.DefaultLockout)),
	)
	aadhaarService := aadhaar.NewService(aadhaar.Config{
		AUACode:           cfg.Aadhaar.AUACode,
		SubAUA:            cfg.Aadhaar.SubAUA,
		LicenseKey:        cfg.Aadhaar.LicenseKey,
		AuthBaseURL:       cfg.Aadhaar.AuthBaseURL,
		UIDAIPublicKeyPEM: readKeyFile(cfg.Aadhaar.PublicKeyPath),
		TestOTP:           cfg.Aadhaar.TestOTP,
		JWTSecret:         cfg.Aadhaar.JWTSecret,
		TokenTTL:          time.Duration(cfg.Aadhaar.TokenTTLMinutes) * time.Minute,
		Production:        production,
		UpstreamTimeout:   secondsOr(cfg.Aadhaar.UpstreamTimeoutS, 15*time.Second),
	}, identityStore, httpClient, capability.NewLogSmsSender())

	// Account Aggregator pipeline.
	signer, err := jws.NewSigner(jws.Config{
		PrivateKeyPEM:  readKeyFile(cfg.AA.PrivateKeyPath),
		KeyID:          cfg.AA.SigningKeyID,
		FallbackSecret: cfg.AA.FallbackSecret,
		Production:     production,
	})
	if err != nil {
		log.Fatalf("JWS signer unavailable: %v", err)
	}
	pipeline := aa.NewPipeline(aa.Config{
		BaseURL:        cfg.AA.BaseURL,
		ClientAPIKey:   cfg.AA.ClientAPIKey,
		FIUEntityID:    cfg.AA.FIUEntityID,
		Production:     production,
		RequestTimeout: secondsOr(cfg.AA.RequestTimeoutS, 30*time.Second),
	}, signer, httpClient)

	// Evidence fetchers.
	gstFetcher := gst.NewFetcher(gst.Config{
		BaseURL:         cfg.GST.BaseURL,
		APIKey:          cfg.GST.APIKey,
		Production:      production,
		UpstreamTimeout: secondsOr(cfg.GST.UpstreamTimeoutS, 15*time.Second),
	}, httpClient)
	bbpsFetcher := utility.NewFetcher(utility.Config{
		BaseURL:         cfg.BBPS.BaseURL,
		APIKey:          cfg.BBPS.APIKey,
		Production:      production,
		UpstreamTimeout: secondsOr(cfg.BBPS.UpstreamTimeoutS, 15*time.Second),
	}, httpClient)

	handlers := &api.Handlers{
		Aadhaar: aadhaarService,
		Consent: consentService,
		AA:      pipeline,
		GST:     gstFetcher,
		BBPS:    bbpsFetcher,
		Quiz:    behaviour.NewService(cfg.Scoring.QuizSeed),
		Social:  social.NewAggregator(social.SampleFetcher{}),
		Scoring: scoring.NewEngine(),
		Cache:   cacheStore,
		Metrics: metrics.New(),
	}

	server := api.NewServer(cfg.Server.Port, handlers)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Received shutdown signal, shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server stopped")
}

// readKeyFile loads a PEM; an empty path or unreadable file yields "" and
// the dev fallbacks take over downstream.
func readKeyFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("⚠️ key file %s unreadable: %v", path, err)
		return ""
	}
	return string(data)
}

func orInt(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func minutesOr(minutes int, fallback time.Duration) time.Duration {
	if minutes > 0 {
		return time.Duration(minutes) * time.Minute
	}
	return fallback
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
