package services

import (
	"context"
	"sync"
	"time"

	"bridge/relayer/internal/errs"
	"bridge/relayer/internal/metrics"
	"bridge/relayer/internal/models"
	"bridge/relayer/internal/stores"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrPassInProgress = errors.New("relay pass already in progress")
	ErrUnknownRole    = errors.New("role not configured")
)

// Chain is everything the engine needs to talk to one side of the bridge.
type Chain struct {
	Binding   *Binding
	Submitter *Submitter
}

type EngineConfig struct {
	// InitialWindow is how far below the head a role starts when it has no cursor.
	InitialWindow map[models.Role]uint64
	// ScanChunk bounds the block span of one eth_getLogs query.
	ScanChunk  map[models.Role]uint64
	MaxReverts int
	// Backoff is the wait after a failed submission before the next one.
	Backoff func(n int) time.Duration
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		InitialWindow: map[models.Role]uint64{models.Source: 5, models.Destination: 10},
		ScanChunk:     map[models.Role]uint64{models.Source: 2048, models.Destination: 2048},
		MaxReverts:    3,
		Backoff: func(n int) time.Duration {
			d := time.Duration(1<<min(n, 10)) * time.Second
			return min(d, 2*time.Minute)
		},
	}
}

type PassResult struct {
	Role       models.Role `json:"role"`
	From       uint64      `json:"from"`
	To         uint64      `json:"to"`
	Scanned    int         `json:"scanned"`
	Skipped    int         `json:"skipped"`
	Confirmed  int         `json:"confirmed"`
	Unresolved int         `json:"unresolved"`
	Cursor     uint64      `json:"cursor"`
}

// RoleStatus is the last known state of a role's loop.
type RoleStatus struct {
	Phase     models.Phase `json:"phase"`
	LastPass  *PassResult  `json:"last_pass,omitempty"`
	LastError string       `json:"last_error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

type RelayEngine struct {
	chains  map[models.Role]*Chain
	scanner *Scanner
	cursors stores.CursorStore
	events  stores.EventLog
	metrics *metrics.Metrics
	cfg     EngineConfig
	now     func() time.Time

	locks map[models.Role]*sync.Mutex

	statusMu sync.RWMutex
	status   map[models.Role]RoleStatus
}

func NewRelayEngine(chains map[models.Role]*Chain, cursors stores.CursorStore, events stores.EventLog, m *metrics.Metrics, cfg EngineConfig) *RelayEngine {
	def := DefaultEngineConfig()
	if cfg.MaxReverts <= 0 {
		cfg.MaxReverts = def.MaxReverts
	}
	if cfg.Backoff == nil {
		cfg.Backoff = def.Backoff
	}
	if cfg.InitialWindow == nil {
		cfg.InitialWindow = def.InitialWindow
	}
	if cfg.ScanChunk == nil {
		cfg.ScanChunk = def.ScanChunk
	}

	e := &RelayEngine{
		chains:  chains,
		scanner: NewScanner(),
		cursors: cursors,
		events:  events,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
		locks:   make(map[models.Role]*sync.Mutex, len(models.Roles)),
		status:  make(map[models.Role]RoleStatus, len(models.Roles)),
	}
	for _, r := range models.Roles {
		e.locks[r] = &sync.Mutex{}
		e.status[r] = RoleStatus{Phase: models.PhaseIdle}
	}
	return e
}

// Pass runs one scan, filter, submit and advance cycle for role. Passes for
// the same role never overlap; a concurrent call fails with ErrPassInProgress.
func (e *RelayEngine) Pass(ctx context.Context, role models.Role) (*PassResult, error) {
	lock, ok := e.locks[role]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownRole, "%q", role)
	}
	if !lock.TryLock() {
		return nil, errors.Wrapf(ErrPassInProgress, "%s", role)
	}
	defer lock.Unlock()

	start := e.now()
	res, err := e.pass(ctx, role)
	e.metrics.ObservePass(string(role), err, time.Since(start))

	st := RoleStatus{Phase: models.PhaseIdle, LastPass: res, UpdatedAt: e.now()}
	if err != nil {
		st.LastError = err.Error()
	}
	e.setStatus(role, st)
	return res, err
}

func (e *RelayEngine) pass(ctx context.Context, role models.Role) (*PassResult, error) {
	src, ok := e.chains[role]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownRole, "%q", role)
	}
	dst, ok := e.chains[role.Counterpart()]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownRole, "%q", role.Counterpart())
	}
	l := log.With().Str("role", string(role)).Logger()

	e.enter(role, models.PhaseScanning, l)
	head, err := src.Binding.Connector.CurrentHeight(ctx)
	if err != nil {
		return nil, err
	}
	e.metrics.SetHead(string(role), head)

	cursor, found, err := e.cursors.Load(ctx, role)
	if err != nil {
		return nil, errors.Wrap(err, "load cursor")
	}
	if !found {
		cursor = saturatingSub(head, e.cfg.InitialWindow[role])
		if err := e.cursors.Store(ctx, role, cursor); err != nil {
			return nil, errors.Wrap(err, "store bootstrap cursor")
		}
		l.Info().Uint64("head", head).Uint64("cursor", cursor).Msg("[RelayEngine] [Pass] bootstrapped cursor")
	}
	e.metrics.SetCursor(string(role), cursor)

	res := &PassResult{Role: role, From: cursor + 1, To: head, Cursor: cursor}
	if cursor >= head {
		l.Debug().Uint64("head", head).Uint64("cursor", cursor).Msg("[RelayEngine] [Pass] nothing to scan")
		return res, nil
	}

	chunk := e.cfg.ScanChunk[role]
	if chunk == 0 {
		chunk = head - cursor
	}

	blocked := false
	for lo := cursor + 1; lo <= head; {
		hi := min(lo+chunk-1, head)

		e.enter(role, models.PhaseScanning, l)
		events, err := e.scanner.Scan(ctx, src.Binding, role.Watches(), lo, hi)
		if err != nil {
			return res, err
		}
		res.Scanned += len(events)

		var (
			firstUnresolved uint64
			unresolved      bool
		)
		for _, ev := range events {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			resolved, err := e.process(ctx, ev, dst, res)
			if err != nil {
				return res, err
			}
			if !resolved && !unresolved {
				firstUnresolved, unresolved = ev.BlockNumber, true
			}
		}

		if !blocked {
			e.enter(role, models.PhaseAdvancing, l)
			next := hi
			if unresolved {
				next = firstUnresolved - 1
				blocked = true
			}
			if next > res.Cursor {
				if err := e.cursors.Store(ctx, role, next); err != nil {
					return res, errors.Wrap(err, "store cursor")
				}
				res.Cursor = next
				e.metrics.SetCursor(string(role), next)
			}
		}

		if hi == head {
			break
		}
		lo = hi + 1
	}

	l.Info().
		Uint64("from", res.From).
		Uint64("to", res.To).
		Int("scanned", res.Scanned).
		Int("skipped", res.Skipped).
		Int("confirmed", res.Confirmed).
		Int("unresolved", res.Unresolved).
		Uint64("cursor", res.Cursor).
		Msg("[RelayEngine] [Pass] done")
	return res, nil
}

// process brings one event as far as this pass can and reports whether it is
// resolved. Errors returned here abort the pass.
func (e *RelayEngine) process(ctx context.Context, ev *models.BridgeEvent, dst *Chain, res *PassResult) (bool, error) {
	l := log.With().Str("role", string(ev.Role)).Str("event", ev.ID()).Uint64("block", ev.BlockNumber).Logger()
	e.enter(ev.Role, models.PhaseFiltering, l)

	rec, err := e.events.Get(ctx, ev.ID())
	if err != nil && !errors.Is(err, stores.ErrRecordNotFound) {
		return false, errors.Wrapf(err, "lookup %s", ev.ID())
	}

	switch {
	case rec == nil:
		action, err := models.NewMirrorAction(ev)
		if err != nil {
			return false, err
		}
		rec = models.NewEventRecord(ev, action, e.now())
		return e.submit(ctx, rec, dst, res, l)

	case rec.Status.Resolved():
		res.Skipped++
		l.Debug().Str("status", string(rec.Status)).Msg("[RelayEngine] [Filter] already resolved")
		return true, nil

	case rec.Status == models.StatusFailed:
		res.Unresolved++
		l.Warn().Int("reverts", rec.Reverts).Str("error", rec.Error).Msg("[RelayEngine] [Filter] permanently failed, holding cursor")
		return false, nil

	case rec.Status.InFlight():
		return e.resume(ctx, rec, dst, res, l)

	default:
		if wait := e.cfg.Backoff(rec.Attempts); e.now().Sub(rec.UpdatedAt) < wait {
			res.Unresolved++
			l.Debug().Str("status", string(rec.Status)).Dur("backoff", wait).Msg("[RelayEngine] [Filter] backing off")
			return false, nil
		}
		if rec.Status == models.StatusFailedToSend && rec.RawTx != "" {
			sub, landed, err := dst.Submitter.Landed(ctx, rec.Submission())
			if err != nil {
				res.Unresolved++
				l.Warn().Err(err).Str("tx", rec.MirrorTxHash).Msg("[RelayEngine] [Filter] earlier tx unknown, not resubmitting")
				return false, nil
			}
			if landed {
				l.Info().Str("tx", rec.MirrorTxHash).Msg("[RelayEngine] [Filter] earlier tx mined after all")
				return e.record(ctx, rec, sub, res, l)
			}
		}
		return e.submit(ctx, rec, dst, res, l)
	}
}

func (e *RelayEngine) submit(ctx context.Context, rec *models.EventRecord, dst *Chain, res *PassResult, l zerolog.Logger) (bool, error) {
	e.enter(rec.Role, models.PhaseSubmitting, l)
	rec.Attempts++
	// RawTx only ever holds the latest attempt's tx
	rec.RawTx = ""

	var persistErr error
	sub := dst.Submitter.Submit(ctx, rec.Action(), func(s models.SubmissionRecord) error {
		applySubmission(rec, s, e.now())
		if err := e.events.Put(ctx, rec); err != nil {
			persistErr = err
			return err
		}
		return nil
	})
	if persistErr != nil {
		return false, errors.Wrapf(persistErr, "persist signed tx for %s", rec.ID)
	}
	return e.record(ctx, rec, sub, res, l)
}

func (e *RelayEngine) resume(ctx context.Context, rec *models.EventRecord, dst *Chain, res *PassResult, l zerolog.Logger) (bool, error) {
	e.enter(rec.Role, models.PhaseSubmitting, l)
	l.Info().Str("status", string(rec.Status)).Str("tx", rec.MirrorTxHash).Msg("[RelayEngine] [Resume] checking earlier submission")
	sub := dst.Submitter.Resume(ctx, rec.Submission())
	return e.record(ctx, rec, sub, res, l)
}

// record persists the outcome of a submission before the next event is looked at.
func (e *RelayEngine) record(ctx context.Context, rec *models.EventRecord, sub models.SubmissionRecord, res *PassResult, l zerolog.Logger) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	applySubmission(rec, sub, e.now())
	switch sub.Status {
	case models.StatusReverted:
		rec.Reverts++
		if rec.Reverts >= e.cfg.MaxReverts {
			rec.Status = models.StatusFailed
		}
	case models.StatusFailedToSend:
		// reverts only count when consecutive
		rec.Reverts = 0
	}
	if err := e.events.Put(ctx, rec); err != nil {
		return false, errors.Wrapf(err, "persist outcome for %s", rec.ID)
	}
	e.metrics.Outcome(string(rec.Role), string(rec.Status))

	ev := l.Info()
	if rec.Status != models.StatusConfirmed {
		ev = l.Warn()
	}
	ev.Str("status", string(rec.Status)).
		Str("tx", rec.MirrorTxHash).
		Int("attempts", rec.Attempts).
		Int("reverts", rec.Reverts).
		Err(sub.Err).
		Msg("[RelayEngine] [Submit] outcome")

	if errors.Is(sub.Err, errs.ErrConfiguration) {
		return false, sub.Err
	}
	if rec.Status == models.StatusConfirmed {
		res.Confirmed++
		return true, nil
	}
	res.Unresolved++
	return false, nil
}

func applySubmission(rec *models.EventRecord, s models.SubmissionRecord, now time.Time) {
	rec.Status = s.Status
	if s.RawTx != "" {
		rec.Nonce = s.Nonce
		rec.MirrorTxHash = s.TxHash.Hex()
		rec.RawTx = s.RawTx
	}
	rec.Error = ""
	if s.Err != nil {
		rec.Error = s.Err.Error()
	}
	rec.UpdatedAt = now
}

func (e *RelayEngine) enter(role models.Role, phase models.Phase, l zerolog.Logger) {
	l.Debug().Str("phase", string(phase)).Msg("[RelayEngine] phase")
	e.statusMu.Lock()
	st := e.status[role]
	st.Phase = phase
	st.UpdatedAt = e.now()
	e.status[role] = st
	e.statusMu.Unlock()
}

func (e *RelayEngine) setStatus(role models.Role, st RoleStatus) {
	e.statusMu.Lock()
	e.status[role] = st
	e.statusMu.Unlock()
}

// Status returns a snapshot of every role's loop state.
func (e *RelayEngine) Status() map[models.Role]RoleStatus {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	out := make(map[models.Role]RoleStatus, len(e.status))
	for r, st := range e.status {
		out[r] = st
	}
	return out
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
