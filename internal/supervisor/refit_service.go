package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Refitter is the part of the engine the refit service drives.
type Refitter interface {
	RefitIfStale(ctx context.Context) (bool, error)
	RefitRequests() <-chan struct{}
}

type RefitServiceConfig struct {
	// RefitOnStartup refits once when the service starts if the model is
	// stale.
	RefitOnStartup bool

	// Interval is how often staleness is checked. Zero disables the ticker;
	// refits then only follow explicit requests.
	Interval time.Duration

	// Timeout bounds a single refit.
	Timeout time.Duration
}

// RefitService keeps the cluster model current off the request path. It
// refits when the engine asks for it and on every tick while the model is
// stale.
type RefitService struct {
	engine Refitter
	config RefitServiceConfig
	logger zerolog.Logger
}

func NewRefitService(engine Refitter, cfg RefitServiceConfig, logger zerolog.Logger) *RefitService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	return &RefitService{
		engine: engine,
		config: cfg,
		logger: logger.With().Str("service", "refit").Logger(),
	}
}

func (s *RefitService) Serve(ctx context.Context) error {
	s.logger.Info().
		Bool("refit_on_startup", s.config.RefitOnStartup).
		Dur("interval", s.config.Interval).
		Msg("refit service starting")

	if s.config.RefitOnStartup {
		s.refit(ctx, "startup")
	}

	var tick <-chan time.Time
	if s.config.Interval > 0 {
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("refit service shutting down")
			return ctx.Err()
		case <-tick:
			s.refit(ctx, "schedule")
		case <-s.engine.RefitRequests():
			s.refit(ctx, "request")
		}
	}
}

// refit failures are logged and retried on the next trigger.
func (s *RefitService) refit(ctx context.Context, trigger string) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	ran, err := s.engine.RefitIfStale(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("trigger", trigger).Msg("refit failed")
		return
	}
	if ran {
		s.logger.Debug().Str("trigger", trigger).Msg("refit complete")
	}
}

func (s *RefitService) String() string {
	return "refit-service"
}
