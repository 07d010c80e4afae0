package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/algoprep/algoprep-backend/internal/model"
)

// fakeClock hands the monitor a controllable time source.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMonitor(clock *fakeClock, overrides func(*Config)) *Monitor {
	cfg := Config{
		Limit:               3,
		Coalescing:          time.Second,
		Suppression:         3 * time.Second,
		DevtoolsThresholdPx: 200,
		Now:                 clock.now,
	}
	if overrides != nil {
		overrides(&cfg)
	}
	return New(cfg)
}

func TestSignalMapping(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newTestMonitor(clock, nil)
	defer m.Close()

	cases := []struct {
		sig  Signal
		kind model.ViolationKind
	}{
		{SignalVisibilityHidden, model.ViolationTabSwitch},
		{SignalFocusLost, model.ViolationTabSwitch},
		{SignalTabKeyCombo, model.ViolationTabSwitch},
		{SignalScreenshotKey, model.ViolationCopyPaste},
		{SignalClipboard, model.ViolationCopyPaste},
		{SignalFullscreenExit, model.ViolationFullscreenExit},
	}
	for _, tc := range cases {
		clock.advance(2 * time.Second) // clear coalescing between signals
		w := m.Observe(tc.sig)
		require.NotNil(t, w, "signal %s", tc.sig)
		assert.Equal(t, tc.kind, w.Kind, "signal %s", tc.sig)
	}
}

func TestContextMenuNeverCounted(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newTestMonitor(clock, nil)
	defer m.Close()

	assert.Nil(t, m.Observe(SignalContextMenu))
	assert.Equal(t, 0, m.Total())
}

func TestCoalescingSameKind(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newTestMonitor(clock, nil)
	defer m.Close()

	require.NotNil(t, m.Observe(SignalVisibilityHidden))
	// A blur-then-hidden burst produces one violation, not two.
	clock.advance(200 * time.Millisecond)
	assert.Nil(t, m.Observe(SignalFocusLost))
	assert.Equal(t, 1, m.Total())

	clock.advance(time.Second)
	require.NotNil(t, m.Observe(SignalFocusLost))
	assert.Equal(t, 2, m.Total())
}

func TestCoalescingIsPerKind(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newTestMonitor(clock, nil)
	defer m.Close()

	require.NotNil(t, m.Observe(SignalVisibilityHidden))
	// A different kind inside the window still counts.
	clock.advance(100 * time.Millisecond)
	require.NotNil(t, m.Observe(SignalClipboard))
	assert.Equal(t, 2, m.Total())
}

func TestThresholdFiresExactlyOnce(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	fired := 0
	m := newTestMonitor(clock, func(cfg *Config) {
		cfg.OnThreshold = func(total int) { fired++ }
	})
	defer m.Close()

	for i := 0; i < 5; i++ {
		clock.advance(2 * time.Second)
		m.Observe(SignalVisibilityHidden)
	}

	assert.Equal(t, 5, m.Total())
	assert.Equal(t, 1, fired, "threshold callback must fire exactly once")
}

func TestThresholdCountsAcrossKinds(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	var thresholdTotal int
	m := newTestMonitor(clock, func(cfg *Config) {
		cfg.OnThreshold = func(total int) { thresholdTotal = total }
	})
	defer m.Close()

	m.Observe(SignalVisibilityHidden)
	clock.advance(2 * time.Second)
	m.Observe(SignalClipboard)
	clock.advance(2 * time.Second)
	m.Observe(SignalFullscreenExit)

	assert.Equal(t, 3, thresholdTotal)
}

func TestSeededCountsSurviveReconnect(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	var thresholdTotal int
	m := newTestMonitor(clock, func(cfg *Config) {
		cfg.Seed = map[model.ViolationKind]int{
			model.ViolationTabSwitch: 1,
			model.ViolationCopyPaste: 1,
		}
		cfg.OnThreshold = func(total int) { thresholdTotal = total }
	})
	defer m.Close()

	assert.Equal(t, 2, m.Total())
	assert.Equal(t, 0, thresholdTotal)

	// The first violation after the reconnect crosses the limit.
	m.Observe(SignalFullscreenExit)
	assert.Equal(t, 3, thresholdTotal)
}

func TestSeedAtLimitFiresThresholdOnStart(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	fired := 0
	m := newTestMonitor(clock, func(cfg *Config) {
		cfg.Seed = map[model.ViolationKind]int{model.ViolationTabSwitch: 3}
		cfg.OnThreshold = func(total int) { fired++ }
	})
	defer m.Close()

	m.Start()
	assert.Equal(t, 1, fired)

	// New violations never re-fire the threshold.
	clock.advance(2 * time.Second)
	m.Observe(SignalVisibilityHidden)
	assert.Equal(t, 1, fired)
}

func TestSeedBelowLimitDoesNotFireOnStart(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	fired := 0
	m := newTestMonitor(clock, func(cfg *Config) {
		cfg.Seed = map[model.ViolationKind]int{model.ViolationTabSwitch: 2}
		cfg.OnThreshold = func(total int) { fired++ }
	})
	defer m.Close()

	m.Start()
	assert.Equal(t, 0, fired)
}

func TestFullscreenSuppressedWhileDialogOpen(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newTestMonitor(clock, nil)
	defer m.Close()

	m.SetDialogOpen(true)
	assert.Nil(t, m.Observe(SignalFullscreenExit))

	m.SetDialogOpen(false)
	assert.NotNil(t, m.Observe(SignalFullscreenExit))
}

func TestFullscreenSuppressedAfterSubmission(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newTestMonitor(clock, nil)
	defer m.Close()

	m.NoteSubmission()
	assert.Nil(t, m.Observe(SignalFullscreenExit))

	// Suppression holds only for the configured window.
	clock.advance(4 * time.Second)
	assert.NotNil(t, m.Observe(SignalFullscreenExit))
}

func TestSuppressionOnlyAppliesToFullscreen(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newTestMonitor(clock, nil)
	defer m.Close()

	m.NoteSubmission()
	assert.NotNil(t, m.Observe(SignalVisibilityHidden))
}

func TestDevtoolsCheck(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newTestMonitor(clock, nil)
	defer m.Close()

	// No viewport reported yet: nothing to compare.
	m.CheckDevtools()
	assert.Equal(t, 0, m.Total())

	m.ReportViewport(1920, 1080, 1920, 1080)
	m.CheckDevtools()
	assert.Equal(t, 0, m.Total())

	// Docked devtools shrink the inner height well past the threshold.
	m.ReportViewport(1920, 1080, 1920, 700)
	m.CheckDevtools()
	assert.Equal(t, 1, m.Counts()[model.ViolationDevtools])

	// Repeated checks inside the coalescing window stay at one.
	m.CheckDevtools()
	assert.Equal(t, 1, m.Counts()[model.ViolationDevtools])
}

func TestCloseStopsRecording(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newTestMonitor(clock, nil)

	require.NotNil(t, m.Observe(SignalVisibilityHidden))
	m.Close()

	clock.advance(time.Minute)
	assert.Nil(t, m.Observe(SignalVisibilityHidden))
	assert.Equal(t, 1, m.Total())

	// Idempotent.
	m.Close()
}

func TestCountsSnapshotIsACopy(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	m := newTestMonitor(clock, nil)
	defer m.Close()

	m.Observe(SignalVisibilityHidden)
	counts := m.Counts()
	counts[model.ViolationTabSwitch] = 99

	assert.Equal(t, 1, m.Counts()[model.ViolationTabSwitch])
}
