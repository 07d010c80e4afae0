package worker

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestGradeRetryBudget(t *testing.T) {
	w := &GradingWorker{
		failures: make(map[string]int),
		log:      zerolog.Nop(),
	}
	const attemptID = "a0a0a0a0-0000-0000-0000-000000000001"

	// A poisoned attempt is requeued until the budget runs out, then parked.
	for i := 1; i < GradeMaxRetries; i++ {
		assert.False(t, w.noteFailure(attemptID), "failure %d must requeue", i)
	}
	assert.True(t, w.noteFailure(attemptID), "final failure must park the attempt")

	// Parking resets the counter, so a manual requeue gets a fresh budget.
	assert.False(t, w.noteFailure(attemptID))
}

func TestGradeRetryBudgetIsPerAttempt(t *testing.T) {
	w := &GradingWorker{
		failures: make(map[string]int),
		log:      zerolog.Nop(),
	}

	for i := 1; i < GradeMaxRetries; i++ {
		w.noteFailure("attempt-a")
	}
	// A different attempt failing once must not inherit attempt-a's tally.
	assert.False(t, w.noteFailure("attempt-b"))
	assert.True(t, w.noteFailure("attempt-a"))
}
