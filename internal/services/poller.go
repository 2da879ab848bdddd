package services

import (
	"context"
	"time"

	"bridge/relayer/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

// PassRunner runs a single relay pass for a role.
type PassRunner interface {
	Pass(ctx context.Context, role models.Role) (*PassResult, error)
}

// Poller drives one role: a pass per tick, strictly sequential.
type Poller struct {
	engine   PassRunner
	role     models.Role
	interval time.Duration

	results chan *PassResult
	err     chan error
}

func NewPoller(engine PassRunner, role models.Role, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		engine:   engine,
		role:     role,
		interval: interval,
		results:  make(chan *PassResult, 1),
		err:      make(chan error, 1),
	}
}

// Start blocks until ctx is done. Pass errors are published on Err and the
// loop keeps going; nothing is advanced by a failed pass.
func (p *Poller) Start(ctx context.Context) error {
	defer close(p.results)
	defer close(p.err)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.tick(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	res, err := p.engine.Pass(ctx, p.role)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if !errors.Is(err, ErrPassInProgress) {
			log.Error().Err(err).Str("role", string(p.role)).Msg("[Poller] pass failed")
		}
		// keep only the latest error for slow readers
		select {
		case p.err <- err:
		default:
		}
		return
	}
	select {
	case p.results <- res:
	default:
	}
}

// Results carries the latest pass results; older ones are dropped when unread.
func (p *Poller) Results() <-chan *PassResult { return p.results }

func (p *Poller) Err() <-chan error { return p.err }
