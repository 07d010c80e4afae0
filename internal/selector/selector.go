// Package selector picks the rotating subset of exam questions presented to
// a user per attempt, biased away from questions seen in recent attempts.
package selector

import (
	"context"
	"math/rand"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HistoryStore persists per-user selection history: which question ids were
// chosen in prior attempts, newest first, over a bounded window. Best effort;
// the selector tolerates read and write failures.
type HistoryStore interface {
	// Recent returns the question-id lists of up to `window` prior attempts.
	Recent(ctx context.Context, userID int, examID uuid.UUID, window int) ([][]uuid.UUID, error)
	// Append records this attempt's selection, evicting the oldest entry when
	// more than `retain` attempts are kept.
	Append(ctx context.Context, userID int, examID uuid.UUID, ids []uuid.UUID, retain int) error
}

// Selector chooses question subsets using a uniform shuffle and recent-attempt
// history filtering.
type Selector struct {
	history HistoryStore
	window  int
	rng     *rand.Rand
	log     zerolog.Logger
}

// New creates a Selector. rng may be seeded deterministically in tests; pass
// rand.New(rand.NewSource(time.Now().UnixNano())) in production.
func New(history HistoryStore, window int, rng *rand.Rand, log zerolog.Logger) *Selector {
	return &Selector{
		history: history,
		window:  window,
		rng:     rng,
		log:     log.With().Str("component", "selector").Logger(),
	}
}

// Select produces the question ids to present this attempt, given the full
// ordered question pool of the exam and the requested subset size. count == 0
// means "show all questions": selection degenerates to the identity over the
// pool, but the attempt is still recorded in history.
func (s *Selector) Select(ctx context.Context, userID int, examID uuid.UUID, pool []uuid.UUID, count int) []uuid.UUID {
	var chosen []uuid.UUID

	if count <= 0 || count >= len(pool) {
		chosen = append([]uuid.UUID(nil), pool...)
	} else {
		chosen = s.pickSubset(ctx, userID, examID, pool, count)
	}

	if err := s.history.Append(ctx, userID, examID, chosen, s.window); err != nil {
		s.log.Warn().Err(err).Int("user_id", userID).Msg("Selection history append failed")
	}

	return chosen
}

func (s *Selector) pickSubset(ctx context.Context, userID int, examID uuid.UUID, pool []uuid.UUID, count int) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)

	past, err := s.history.Recent(ctx, userID, examID, s.window)
	if err != nil {
		// Degrade to no history rather than failing the session start.
		s.log.Warn().Err(err).Int("user_id", userID).Msg("Selection history read failed")
	} else {
		for _, attempt := range past {
			for _, id := range attempt {
				seen[id] = true
			}
		}
	}

	eligible := make([]uuid.UUID, 0, len(pool))
	for _, id := range pool {
		if !seen[id] {
			eligible = append(eligible, id)
		}
	}

	// Reset policy: once history starves the pool below the requested size,
	// ignore it entirely instead of returning fewer than count ids.
	if len(eligible) < count {
		eligible = append(eligible[:0:0], pool...)
	}

	s.shuffle(eligible)
	return eligible[:count]
}

// shuffle performs an in-place Fisher–Yates permutation.
func (s *Selector) shuffle(ids []uuid.UUID) {
	for i := len(ids) - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}
