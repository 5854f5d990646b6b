package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Service is the engine surface the handlers call. *goGuard.Engine
// satisfies it.
type Service interface {
	BeginTwoFactorSetup(ctx context.Context, userID, email string) (*goGuard.TwoFactorSetupResult, error)
	EnableTwoFactor(ctx context.Context, userID, code string) (bool, error)
	VerifyTwoFactorLogin(ctx context.Context, userID, code string, method goGuard.TwoFactorMethod) (bool, error)
	DisableTwoFactor(ctx context.Context, userID, code string) (bool, error)
	RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, bool, error)
	TwoFactorStatus(ctx context.Context, userID string) (goGuard.TwoFactorStatus, error)

	ListActiveSessions(ctx context.Context, userID string) ([]goGuard.Session, error)
	GetSession(ctx context.Context, sessionID string) (*goGuard.Session, error)
	Heartbeat(ctx context.Context, sessionID string) error
	TerminateSession(ctx context.Context, sessionID string) error
	TerminateOtherSessions(ctx context.Context, userID, keepSessionID string) (int, error)

	ListSecurityEvents(ctx context.Context, userID string, filter goGuard.EventFilter) ([]goGuard.SecurityEvent, error)
	AssessRisk(ctx context.Context, userID string) (*goGuard.RiskAssessment, error)
}

// Options configures NewRouter. Verifier is required.
type Options struct {
	Verifier       middleware.TokenVerifier
	AllowedOrigins []string
	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool
	// StrictSessions rejects tokens whose session has been terminated.
	StrictSessions bool
	Logger         *slog.Logger
}

type api struct {
	svc    Service
	logger *slog.Logger
}

// NewRouter builds the HTTP handler for svc.
func NewRouter(svc Service, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &api{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.ClientContext(opts.TrustProxy))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RequireBearer(opts.Verifier))
		if opts.StrictSessions {
			r.Use(middleware.RequireActiveSession(svc))
		}

		r.Route("/2fa", func(r chi.Router) {
			r.Post("/setup", a.beginSetup)
			r.Post("/enable", a.enable)
			r.Post("/verify", a.verify)
			r.Post("/disable", a.disable)
			r.Post("/backup-codes", a.regenerateBackupCodes)
			r.Get("/status", a.status)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", a.listSessions)
			r.Post("/heartbeat", a.heartbeat)
			r.Post("/terminate-others", a.terminateOthers)
			r.Delete("/{id}", a.terminateSession)
		})

		r.Get("/security/events", a.listEvents)
		r.Get("/security/risk", a.assessRisk)
	})

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}
			logger.DebugContext(r.Context(), "request",
				slog.String("method", r.Method),
				slog.String("path", path),
				slog.Int("status", ww.Status()),
				slog.Duration("latency", time.Since(start)),
				slog.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}

func principal(w http.ResponseWriter, r *http.Request) (middleware.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
	}
	return p, ok
}
