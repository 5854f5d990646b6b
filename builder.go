package goGuard

import (
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/MrEthical07/goGuard/internal"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/MrEthical07/goGuard/otp"
	"github.com/MrEthical07/goGuard/store"
	"github.com/redis/go-redis/v9"
)

// GeoResolver maps an IP address to a location. Implementations must be
// safe for concurrent use.
type GeoResolver interface {
	Locate(ip string) (Location, error)
}

// Builder defines a public type used by goGuard APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	store  store.Store
	redis  redis.UniversalClient

	now       func() time.Time
	random    io.Reader
	logger    *slog.Logger
	auditSink SecuritySink
	qr        otp.QRRenderer
	geo       GeoResolver

	built bool
}

// New describes the new operation and its observable behavior.
//
// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration; start from DefaultConfig to keep the defaults.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the persistence backend. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis backs the two-factor attempt limiter with Redis so limits hold
// across processes. Without it the limiter is in-process.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithClock overrides time.Now.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRandom overrides crypto/rand.Reader for secrets, backup codes and
// identifiers. The reader must be safe for concurrent use.
func (b *Builder) WithRandom(r io.Reader) *Builder {
	b.random = r
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
//
// WithLogger sets the structured logger; slog.Default is used otherwise.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink mirrors every persisted security event to sink when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink SecuritySink) *Builder {
	b.auditSink = sink
	return b
}

// WithQRRenderer makes BeginTwoFactorSetup return a QR image of the
// provisioning URI.
func (b *Builder) WithQRRenderer(r otp.QRRenderer) *Builder {
	b.qr = r
	return b
}

// WithGeoResolver fills session origins from the client IP.
func (b *Builder) WithGeoResolver(g GeoResolver) *Builder {
	b.geo = g
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when the configuration is invalid or the store is missing.
// A Builder can be built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	random := b.random
	if random == nil {
		random = rand.Reader
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	generator := otp.NewGenerator(random)
	generator.BackupCodeCount = cfg.TwoFactor.BackupCodeCount
	generator.BackupCodeLength = cfg.TwoFactor.BackupCodeLength

	otpOpts := otp.Options{
		Period:    cfg.TOTP.Period,
		Digits:    cfg.TOTP.Digits,
		Algorithm: cfg.TOTP.Algorithm,
	}

	engine := &Engine{
		config:    cfg,
		now:       now,
		random:    random,
		logger:    logger.With("component", "goguard"),
		twoFactor: stores.NewTwoFactorRepo(b.store),
		sessions:  stores.NewSessionRepo(b.store),
		events:    stores.NewEventRepo(b.store),
		generator: generator,
		otpOpts:   otpOpts,
		verifier:  otp.NewVerifier(otpOpts, cfg.TOTP.Skew),
		qr:        b.qr,
		geo:       b.geo,
		eventIDs:  internal.NewEventIDs(random),
	}

	if cfg.TwoFactor.MaxAttempts > 0 {
		lcfg := limiters.Config{
			MaxAttempts: cfg.TwoFactor.MaxAttempts,
			Cooldown:    cfg.TwoFactor.Cooldown,
		}
		if b.redis != nil {
			engine.limiter = limiters.NewAttemptLimiter(b.redis, cfg.TwoFactor.LimiterPrefix, lcfg)
		} else {
			engine.limiter = limiters.NewLocalLimiter(lcfg, now)
		}
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, engine.logger)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
