package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/config"
	"github.com/noah-isme/toko-cart/internal/events"
	"github.com/noah-isme/toko-cart/internal/health"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/ratelimit"
	"github.com/noah-isme/toko-cart/internal/resilience"
	"github.com/noah-isme/toko-cart/internal/security"
	"github.com/noah-isme/toko-cart/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "toko")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:    "toko-cart",
			ServiceVersion: envOrDefault("APP_VERSION", ""),
			Endpoint:       envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:       envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio:  envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:    cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	var redisClient *redis.Client
	if cfg.RedisEnabled() {
		redisClient, err = connectRedis(cfg.RedisURL, metricsEnabled, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect redis")
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	a := &app{
		cfg:            cfg,
		logger:         logger,
		redis:          redisClient,
		metricsEnabled: metricsEnabled,
		pprofEnabled:   envBool("OBS_ENABLE_PPROF", false),
		readyTimeout:   envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		headers: security.Headers{
			Enable:                envBool("SECURE_HEADERS_ENABLE", true),
			EnableHSTS:            envBool("SECURE_HSTS_ENABLE", false),
			HSTSMaxAge:            envInt("SECURE_HSTS_MAX_AGE", 31536000),
			HSTSIncludeSubdomains: envBool("SECURE_HSTS_INCLUDE_SUBDOMAINS", false),
		},
		maxBodyBytes: int64(envInt("HTTP_MAX_BODY_BYTES", 64<<10)),
	}
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		a.httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
		a.cartMetrics = obs.NewCartMetrics(metricsNamespace, nil)
		a.breakerMetrics = resilience.NewMetrics(metricsNamespace, nil)
	}
	if redisClient != nil {
		a.limiter, err = newLimiter(cfg, redisClient)
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise rate limiter")
		}
	}
	a.registry = a.newRegistry()

	var handler http.Handler = a.routes()
	if tracingEnabled {
		handler = otelhttp.NewHandler(handler, "toko-cart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go a.registry.Run(ctx, cfg.SessionSweepInterval, func(removed, remaining int) {
		if removed > 0 {
			logger.Debug().Int("removed", removed).Int("remaining", remaining).Msg("sessions swept")
		}
		if a.cartMetrics != nil {
			a.cartMetrics.SessionsActive.Set(float64(remaining))
		}
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
	}

	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	logger.Info().Msg("server stopped")
}

// app holds the wired dependencies of the HTTP server.
type app struct {
	cfg            *config.Config
	logger         zerolog.Logger
	redis          *redis.Client
	registry       *session.Registry
	limiter        ratelimit.Limiter
	httpMetrics    *obs.HTTPMetrics
	cartMetrics    *obs.CartMetrics
	breakerMetrics *resilience.Metrics
	metricsEnabled bool
	pprofEnabled   bool
	readyTimeout   time.Duration
	headers        security.Headers
	maxBodyBytes   int64
}

func connectRedis(url string, metricsEnabled bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func newLimiter(cfg *config.Config, client *redis.Client) (ratelimit.Limiter, error) {
	if cfg.RateLimitDriver == config.RateLimitUlule {
		return ratelimit.NewUluleRedis(client, "ratelimit:ulule")
	}
	return ratelimit.SlidingWindow{Client: client, Prefix: "ratelimit:"}, nil
}

// newBus fans cart events out to the log, metrics and, when configured, the Redis stream.
func (a *app) newBus() *events.Bus {
	notifiers := []events.Notifier{events.LogNotifier{Logger: a.logger}}
	if a.cartMetrics != nil {
		notifiers = append(notifiers, events.MetricsNotifier{Metrics: a.cartMetrics})
	}
	if a.redis != nil && a.cfg.CartEventsStream != "" {
		breaker := resilience.NewBreaker(5, 0.5, 30*time.Second).
			WithTarget("cart_events_stream").
			WithLogger(a.logger)
		if a.breakerMetrics != nil {
			breaker = breaker.WithMetrics(a.breakerMetrics)
		}
		notifiers = append(notifiers, events.Guarded{
			Notifier: events.RedisStream{
				Client:  a.redis,
				Stream:  a.cfg.CartEventsStream,
				MaxLen:  int64(envInt("CART_EVENTS_STREAM_MAXLEN", 10000)),
				Timeout: envDurationMillis("CART_EVENTS_STREAM_TIMEOUT_MS", 200),
			},
			Breaker: breaker,
		})
	}
	return &events.Bus{Notifiers: notifiers}
}

func (a *app) newRegistry() *session.Registry {
	bus := a.newBus()
	onError := func(err error) {
		a.logger.Warn().Err(err).Msg("publish cart event")
	}
	reg := &session.Registry{
		TTL: a.cfg.SessionTTL,
		Listen: func(sessionID string) cart.Listener {
			return events.CartListener{Bus: bus, SessionID: sessionID, OnError: onError}
		},
	}
	if a.cartMetrics != nil {
		gauge := a.cartMetrics.SessionsActive
		reg.OnCreate = func(session.Session) { gauge.Inc() }
		reg.OnEvict = func(session.Session) { gauge.Dec() }
	}
	return reg
}

func (a *app) routes() http.Handler {
	sessions := &session.Handler{
		Registry: a.registry,
		Tokens: session.Tokens{
			Secret:    []byte(a.cfg.SessionSecret),
			Issuer:    a.cfg.SessionIssuer,
			Audience:  a.cfg.SessionAudience,
			TTL:       a.cfg.SessionTTL,
			ClockSkew: 30 * time.Second,
		},
	}
	cartHandler := &cart.Handler{Validate: validator.New()}
	idem := common.Idem{R: a.redis, TTL: a.cfg.IdempotencyTTL}
	limits := ratelimit.Handler{
		Limiter: a.limiter,
		Config: ratelimit.Config{
			Key:    ratelimit.SessionOrIP,
			Window: a.cfg.RateLimitWindow,
			Max:    a.cfg.RateLimitMax,
		},
		OnError: func(err error) {
			a.logger.Warn().Err(err).Msg("rate limiter unavailable")
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RequestInfoMiddleware)
	if a.httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: a.httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: a.logger}.Middleware)
	r.Use(a.headers.Middleware)
	r.Use(security.BodyLimit{Max: a.maxBodyBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(a.cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if a.metricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
	}
	if a.pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Probes: map[string]health.Probe{
			"redis": a.redisProbe(),
		},
		Timeout: a.readyTimeout,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.With(limits.Middleware).Post("/sessions", sessions.Create)
		v.With(sessions.RequireSession).Delete("/sessions", sessions.End)
		v.With(limits.Middleware, sessions.RequireSession).Post("/sessions/refresh", sessions.Refresh)

		v.Route("/cart", func(c chi.Router) {
			c.Use(sessions.RequireSession)
			c.Get("/", cartHandler.Get)
			c.Get("/summary", cartHandler.Summary)
			c.Group(func(g chi.Router) {
				g.Use(limits.Middleware)
				g.Use(idem.Middleware)
				g.Delete("/", cartHandler.Clear)
				g.Post("/items", cartHandler.AddItem)
				g.Post("/items/increment", cartHandler.Increment)
				g.Post("/items/decrement", cartHandler.Decrement)
				g.Post("/items/remove", cartHandler.Remove)
			})
		})
	})

	return r
}

func (a *app) redisProbe() health.Probe {
	if a.redis == nil {
		return nil
	}
	return health.RedisProbe(a.redis)
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
