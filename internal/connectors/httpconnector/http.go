// Package httpconnector exposes POST /ingest/v1, the generic
// chat/webhook connector any Telegram/email-webhook/chat adapter
// normalizes to at the HTTP boundary.
//
// Grounded on event-service/internal/transport/http/router/router.go's
// chi middleware chain (RequestID, Metrics, SecurityHeaders,
// middleware.Recoverer, AccessLog, optional httprate rate limiting) and
// health/readiness conventions (/healthz, /readyz, /metrics).
package httpconnector

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tzeusy/switchboard/internal/apperrors"
	"github.com/tzeusy/switchboard/internal/connectors"
	"github.com/tzeusy/switchboard/internal/contracts"
	applogger "github.com/tzeusy/switchboard/internal/logger"
)

type Config struct {
	Addr             string
	RateLimitEnabled bool
	RateLimitLimit   int
	RateLimitWindow  time.Duration

	// ConnectorType/EndpointIdentity identify this connector instance in
	// connector_registry; both are required for heartbeat/rollup writes
	// to mean anything (they key connector_registry's primary key).
	ConnectorType    string
	EndpointIdentity string
	HeartbeatEvery   time.Duration
}

type Connector struct {
	cfg   Config
	log   zerolog.Logger
	store *connectors.Store
}

func New(cfg Config, log zerolog.Logger, store *connectors.Store) *Connector {
	if cfg.HeartbeatEvery == 0 {
		cfg.HeartbeatEvery = 30 * time.Second
	}
	return &Connector{cfg: cfg, log: log, store: store}
}

func (c *Connector) Start(ctx context.Context, sink connectors.IngestFunc) error {
	go c.heartbeatLoop(ctx)

	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"POST"}}))

	if c.cfg.RateLimitEnabled {
		r.Use(httprate.LimitByIP(c.cfg.RateLimitLimit, c.cfg.RateLimitWindow))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/ingest/v1", c.ingestHandler(sink))

	srv := &http.Server{Addr: c.cfg.Addr, Handler: r}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (c *Connector) ingestHandler(sink connectors.IngestFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, apperrors.NewValidation("cannot read request body"))
			return
		}

		env, err := contracts.ParseIngestV1(body)
		if err != nil {
			writeError(w, apperrors.NewValidation(err.Error()))
			return
		}

		resp, err := sink(r.Context(), *env)
		if err != nil {
			_ = c.store.RecordIngest(r.Context(), c.cfg.ConnectorType, c.cfg.EndpointIdentity, false, false)
			writeError(w, err)
			return
		}
		_ = c.store.RecordIngest(r.Context(), c.cfg.ConnectorType, c.cfg.EndpointIdentity, true, resp.Duplicate)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// heartbeatLoop upserts this connector's connector_registry row on an
// interval until ctx is canceled, the HTTP-boundary analog of
// registry.Store.Heartbeat's post-dispatch bump for butlers.
func (c *Connector) heartbeatLoop(ctx context.Context) {
	_ = c.store.Heartbeat(ctx, c.cfg.ConnectorType, c.cfg.EndpointIdentity, "", nil)

	ticker := time.NewTicker(c.cfg.HeartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.store.Heartbeat(ctx, c.cfg.ConnectorType, c.cfg.EndpointIdentity, "", nil); err != nil {
				c.log.Warn().Err(err).Msg("connector heartbeat failed")
			}
		}
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	if code == apperrors.CodeValidation {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error(), "error_category": string(code)})
}

type requestIDKey struct{}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		log := applogger.WithRequestID(id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		log.Debug().Str("path", r.URL.Path).Msg("ingest request received")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
