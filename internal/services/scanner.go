package services

import (
	"context"
	"sort"

	"bridge/relayer/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

type Scanner struct{}

func NewScanner() *Scanner { return &Scanner{} }

// Scan returns the kind events emitted by the bound contract in [from, to],
// ordered by (block, log index). A failed query is an error, never an empty
// result.
func (s *Scanner) Scan(ctx context.Context, b *Binding, kind models.EventKind, from, to uint64) ([]*models.BridgeEvent, error) {
	if from > to {
		return nil, errors.Newf("invalid scan range [%d, %d]", from, to)
	}
	topic, err := Topic(kind)
	if err != nil {
		return nil, err
	}

	logs, err := b.Connector.GetLogs(ctx, b.Address(), topic, from, to)
	if err != nil {
		return nil, errors.Wrapf(err, "scan %s %s [%d, %d]", b.Role(), kind, from, to)
	}

	events := make([]*models.BridgeEvent, 0, len(logs))
	for _, l := range logs {
		if l.Address != b.Address() || len(l.Topics) == 0 || l.Topics[0] != topic {
			continue
		}
		ev, err := b.DecodeEvent(kind, l)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Less(events[j]) })

	log.Debug().Str("role", string(b.Role())).Str("kind", string(kind)).Uint64("from", from).Uint64("to", to).Int("events", len(events)).Msg("[Scanner] [Scan] done")
	return events, nil
}
