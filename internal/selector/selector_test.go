package selector

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryHistory is an in-memory HistoryStore, newest first.
type memoryHistory struct {
	entries [][]uuid.UUID
	readErr error
	appends int
}

func (m *memoryHistory) Recent(_ context.Context, _ int, _ uuid.UUID, window int) ([][]uuid.UUID, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	if len(m.entries) > window {
		return m.entries[:window], nil
	}
	return m.entries, nil
}

func (m *memoryHistory) Append(_ context.Context, _ int, _ uuid.UUID, ids []uuid.UUID, retain int) error {
	m.appends++
	m.entries = append([][]uuid.UUID{ids}, m.entries...)
	if len(m.entries) > retain {
		m.entries = m.entries[:retain]
	}
	return nil
}

func newPool(n int) []uuid.UUID {
	pool := make([]uuid.UUID, n)
	for i := range pool {
		pool[i] = uuid.New()
	}
	return pool
}

func newTestSelector(history HistoryStore, seed int64) *Selector {
	return New(history, 7, rand.New(rand.NewSource(seed)), zerolog.Nop())
}

func TestSelectAllWhenCountZero(t *testing.T) {
	history := &memoryHistory{}
	s := newTestSelector(history, 1)
	pool := newPool(5)

	chosen := s.Select(context.Background(), 1, uuid.New(), pool, 0)
	assert.Equal(t, pool, chosen)
	// Every attempt is recorded, identity selection included.
	assert.Equal(t, 1, history.appends)
}

func TestSelectAllWhenCountCoversPool(t *testing.T) {
	s := newTestSelector(&memoryHistory{}, 1)
	pool := newPool(4)

	chosen := s.Select(context.Background(), 1, uuid.New(), pool, 9)
	assert.Equal(t, pool, chosen)
}

func TestSelectReturnsRequestedCount(t *testing.T) {
	s := newTestSelector(&memoryHistory{}, 42)
	pool := newPool(10)

	chosen := s.Select(context.Background(), 1, uuid.New(), pool, 4)
	require.Len(t, chosen, 4)

	// All distinct, all from the pool.
	seen := map[uuid.UUID]bool{}
	poolSet := map[uuid.UUID]bool{}
	for _, id := range pool {
		poolSet[id] = true
	}
	for _, id := range chosen {
		assert.False(t, seen[id], "duplicate id")
		assert.True(t, poolSet[id], "id not in pool")
		seen[id] = true
	}
}

func TestSelectAvoidsRecentQuestions(t *testing.T) {
	pool := newPool(10)
	history := &memoryHistory{entries: [][]uuid.UUID{pool[:5]}}
	s := newTestSelector(history, 7)

	chosen := s.Select(context.Background(), 1, uuid.New(), pool, 4)
	require.Len(t, chosen, 4)
	for _, id := range chosen {
		for _, recent := range pool[:5] {
			assert.NotEqual(t, recent, id, "recently seen id selected")
		}
	}
}

func TestSelectResetsWhenHistoryStarvesPool(t *testing.T) {
	pool := newPool(6)
	// All six questions seen recently; strict filtering would leave nothing.
	history := &memoryHistory{entries: [][]uuid.UUID{pool[:3], pool[3:]}}
	s := newTestSelector(history, 3)

	chosen := s.Select(context.Background(), 1, uuid.New(), pool, 4)
	require.Len(t, chosen, 4)
}

func TestSelectHistoryReadFailureDegrades(t *testing.T) {
	history := &memoryHistory{readErr: errors.New("redis down")}
	s := newTestSelector(history, 5)
	pool := newPool(8)

	chosen := s.Select(context.Background(), 1, uuid.New(), pool, 3)
	require.Len(t, chosen, 3)
}

func TestSelectDeterministicForSeed(t *testing.T) {
	pool := newPool(10)

	first := newTestSelector(&memoryHistory{}, 99).Select(context.Background(), 1, uuid.Nil, pool, 5)
	second := newTestSelector(&memoryHistory{}, 99).Select(context.Background(), 1, uuid.Nil, pool, 5)
	assert.Equal(t, first, second)
}

func TestSelectRotatesAcrossAttempts(t *testing.T) {
	pool := newPool(8)
	history := &memoryHistory{}
	s := newTestSelector(history, 11)
	examID := uuid.New()

	first := s.Select(context.Background(), 1, examID, pool, 4)
	second := s.Select(context.Background(), 1, examID, pool, 4)

	// The second attempt must avoid everything from the first.
	firstSet := map[uuid.UUID]bool{}
	for _, id := range first {
		firstSet[id] = true
	}
	for _, id := range second {
		assert.False(t, firstSet[id], "question repeated on consecutive attempt")
	}
}
