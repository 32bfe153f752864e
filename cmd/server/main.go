package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourusername/wrenchgate/api"
	"github.com/yourusername/wrenchgate/breaker"
	"github.com/yourusername/wrenchgate/clock"
	"github.com/yourusername/wrenchgate/config"
	"github.com/yourusername/wrenchgate/gate"
	"github.com/yourusername/wrenchgate/llm"
	"github.com/yourusername/wrenchgate/metrics"
	"github.com/yourusername/wrenchgate/ratelimit"
	"github.com/yourusername/wrenchgate/validator"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	log.Println("🏍️  WrenchGate - Motorcycle Repair ChatBot Gateway")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Printf("config loaded: rate limits %d/min %d/hour, breaker threshold %d, timeout %ds",
		cfg.RateLimit.MaxPerMinute, cfg.RateLimit.MaxPerHour,
		cfg.Breaker.Threshold, cfg.Breaker.TimeoutSeconds)

	clk := clock.NewRealClock()

	limiter, closeLimiter, err := initLimiter(cfg, clk)
	if err != nil {
		log.Fatalf("failed to init rate limiter: %v", err)
	}
	defer closeLimiter()

	v := validator.New(validator.Config{
		MaxQueryLength:   cfg.Validator.MaxQueryLength,
		SpecialCharRatio: cfg.Validator.SpecialCharRatio,
	})

	cb := breaker.New(uint32(cfg.Breaker.Threshold), cfg.BreakerTimeout(), clk)

	g, err := gate.New(limiter, v, cb)
	if err != nil {
		log.Fatalf("failed to create gate: %v", err)
	}

	providerOpts := []llm.ClientOption{llm.WithMaxTokens(cfg.OpenAI.MaxTokens)}
	if cfg.OpenAI.BaseURL != "" {
		providerOpts = append(providerOpts, llm.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	if cfg.OpenAI.UpstreamRPS > 0 {
		providerOpts = append(providerOpts, llm.WithUpstreamRate(cfg.OpenAI.UpstreamRPS, cfg.OpenAI.UpstreamBurst))
	}
	provider := llm.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, providerOpts...)

	m := metrics.New()
	handler := api.NewHandler(g, provider, cb, m)
	router := api.NewRouter(handler, api.NewMetricsHandler(m), dashboardHandler)

	reapInterval, err := cfg.ReapInterval()
	if err != nil {
		log.Fatalf("invalid reap interval: %v", err)
	}
	stopReaper := ratelimit.StartReaper(limiter, reapInterval)
	defer stopReaper()

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	log.Printf("🚀 listening on http://%s", addr)
	log.Println("endpoints:")
	log.Println("  GET  /                         - ops dashboard")
	log.Println("  POST /api/chat                 - chat with the assistant")
	log.Println("  GET  /api/status               - rate limit and breaker status")
	log.Println("  GET  /api/health               - health check")
	log.Println("  GET  /metrics                  - gate metrics (JSON)")
	log.Println("  POST /api/admin/circuit/reset  - force the circuit closed")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

// initLimiter picks the limiter backend: Redis when configured (shared quotas
// across instances), in-memory otherwise.
func initLimiter(cfg *config.Config, clk clock.Clock) (ratelimit.Limiter, func(), error) {
	limits := ratelimit.Config{
		MaxPerMinute: cfg.RateLimit.MaxPerMinute,
		MaxPerHour:   cfg.RateLimit.MaxPerHour,
	}

	if cfg.Redis.Addr != "" {
		rl, err := ratelimit.NewRedisLimiter(limits, ratelimit.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, clk)
		if err != nil {
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rl.Ping(pingCtx); err != nil {
			rl.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		log.Printf("rate limiter: redis backend at %s", cfg.Redis.Addr)
		return rl, func() {
			if err := rl.Close(); err != nil {
				log.Printf("failed to close redis limiter: %v", err)
			}
		}, nil
	}

	ml, err := ratelimit.NewMemoryLimiter(limits, clk)
	if err != nil {
		return nil, nil, err
	}
	log.Println("rate limiter: in-memory backend")
	return ml, func() {}, nil
}
