// Package monitor converts anti-cheating signals reported by the exam client
// into violation counts for one attempt. A Monitor is a scoped resource:
// acquired when the exam stream opens, closed exactly once when the session
// ends, after which no violation can be recorded.
package monitor

import (
	"sync"
	"time"

	"github.com/algoprep/algoprep-backend/internal/model"
)

// Signal is a raw browser-level event reported by the client.
type Signal string

const (
	SignalVisibilityHidden Signal = "visibility-hidden"
	SignalFocusLost        Signal = "focus-lost"
	SignalTabKeyCombo      Signal = "tab-key-combo"
	SignalScreenshotKey    Signal = "screenshot-key"
	SignalClipboard        Signal = "clipboard"
	SignalFullscreenExit   Signal = "fullscreen-exit"
	SignalContextMenu      Signal = "context-menu"
)

// Warning is the transient user-facing notice emitted for a recorded violation.
type Warning struct {
	Kind    model.ViolationKind `json:"kind"`
	Count   int                 `json:"count"`
	Total   int                 `json:"total"`
	Limit   int                 `json:"limit"`
	Message string              `json:"message"`
}

// Config tunes one monitor instance.
type Config struct {
	// Limit is the total violation count that triggers the threshold callback.
	Limit int
	// Coalescing is the minimum interval between two recorded violations of
	// the same kind; repeats inside the window are dropped.
	Coalescing time.Duration
	// Suppression is how long fullscreen-exit signals are ignored after a
	// submission completes, to avoid false positives from UI-induced focus
	// changes.
	Suppression time.Duration
	// DevtoolsThresholdPx is the outer-vs-inner window dimension delta above
	// which the devtools check fires.
	DevtoolsThresholdPx int
	// DevtoolsInterval is the period of the devtools dimension check.
	DevtoolsInterval time.Duration

	// Seed pre-loads the per-kind counters with violations recorded before
	// this monitor existed, so a reconnect cannot reset the running total.
	Seed map[model.ViolationKind]int

	// OnViolation is called for every recorded violation.
	OnViolation func(kind model.ViolationKind, warning Warning)
	// OnThreshold is called exactly once, when the total reaches Limit.
	OnThreshold func(total int)

	// Now overrides the clock; nil means time.Now. Used by tests.
	Now func() time.Time
}

type viewport struct {
	outerW, outerH int
	innerW, innerH int
	set            bool
}

// Monitor accumulates per-kind violation counters for a single attempt.
type Monitor struct {
	mu sync.Mutex

	cfg Config
	now func() time.Time

	counts        map[model.ViolationKind]int
	lastRecorded  map[model.ViolationKind]time.Time
	suppressUntil time.Time
	dialogOpen    bool
	fired         bool
	closed        bool

	view viewport
	done chan struct{}
}

// New creates a Monitor. Call Start to begin the periodic devtools check and
// Close to tear the monitor down.
func New(cfg Config) *Monitor {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.DevtoolsInterval <= 0 {
		cfg.DevtoolsInterval = time.Second
	}
	counts := make(map[model.ViolationKind]int, len(cfg.Seed))
	for k, n := range cfg.Seed {
		if n > 0 {
			counts[k] = n
		}
	}
	return &Monitor{
		cfg:          cfg,
		now:          now,
		counts:       counts,
		lastRecorded: make(map[model.ViolationKind]time.Time),
		done:         make(chan struct{}),
	}
}

// Start launches the periodic devtools dimension check. The check runs on a
// fixed interval, independent of other signals, until Close. When the seeded
// counters already meet the limit the threshold callback fires here, exactly
// once, before any new violation is observed.
func (m *Monitor) Start() {
	m.mu.Lock()
	total := 0
	for _, n := range m.counts {
		total += n
	}
	fireThreshold := total >= m.cfg.Limit && !m.fired
	if fireThreshold {
		m.fired = true
	}
	onThreshold := m.cfg.OnThreshold
	m.mu.Unlock()

	if fireThreshold && onThreshold != nil {
		onThreshold(total)
	}

	go func() {
		ticker := time.NewTicker(m.cfg.DevtoolsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				m.CheckDevtools()
			}
		}
	}()
}

// Observe maps a raw client signal to its violation kind and records it.
// Returns the warning to surface, or nil when the signal was suppressed or
// coalesced away.
func (m *Monitor) Observe(sig Signal) *Warning {
	switch sig {
	case SignalVisibilityHidden, SignalFocusLost, SignalTabKeyCombo:
		return m.RecordViolation(model.ViolationTabSwitch)
	case SignalScreenshotKey, SignalClipboard:
		return m.RecordViolation(model.ViolationCopyPaste)
	case SignalFullscreenExit:
		m.mu.Lock()
		suppressed := m.dialogOpen || m.now().Before(m.suppressUntil)
		m.mu.Unlock()
		if suppressed {
			return nil
		}
		return m.RecordViolation(model.ViolationFullscreenExit)
	case SignalContextMenu:
		// Suppressed client-side, never counted.
		return nil
	}
	return nil
}

// RecordViolation increments the counter for a kind, subject to coalescing,
// and re-evaluates the threshold. Safe to call from any goroutine.
func (m *Monitor) RecordViolation(kind model.ViolationKind) *Warning {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return nil
	}

	now := m.now()
	if last, ok := m.lastRecorded[kind]; ok && now.Sub(last) < m.cfg.Coalescing {
		m.mu.Unlock()
		return nil
	}
	m.lastRecorded[kind] = now
	m.counts[kind]++

	total := 0
	for _, n := range m.counts {
		total += n
	}

	warning := Warning{
		Kind:    kind,
		Count:   m.counts[kind],
		Total:   total,
		Limit:   m.cfg.Limit,
		Message: warningMessage(kind),
	}

	fireThreshold := total >= m.cfg.Limit && !m.fired
	if fireThreshold {
		m.fired = true
	}

	onViolation := m.cfg.OnViolation
	onThreshold := m.cfg.OnThreshold
	m.mu.Unlock()

	if onViolation != nil {
		onViolation(kind, warning)
	}
	if fireThreshold && onThreshold != nil {
		onThreshold(total)
	}

	return &warning
}

// ReportViewport stores the latest client-reported window dimensions for the
// periodic devtools check.
func (m *Monitor) ReportViewport(outerW, outerH, innerW, innerH int) {
	m.mu.Lock()
	m.view = viewport{outerW: outerW, outerH: outerH, innerW: innerW, innerH: innerH, set: true}
	m.mu.Unlock()
}

// CheckDevtools compares the last reported outer vs inner window dimensions
// and records a devtools violation when the delta exceeds the threshold.
func (m *Monitor) CheckDevtools() {
	m.mu.Lock()
	v := m.view
	threshold := m.cfg.DevtoolsThresholdPx
	m.mu.Unlock()

	if !v.set {
		return
	}
	if v.outerW-v.innerW > threshold || v.outerH-v.innerH > threshold {
		m.RecordViolation(model.ViolationDevtools)
	}
}

// SetDialogOpen marks whether a confirmation dialog is currently open; while
// open, fullscreen-exit signals are treated as self-inflicted and ignored.
func (m *Monitor) SetDialogOpen(open bool) {
	m.mu.Lock()
	m.dialogOpen = open
	m.mu.Unlock()
}

// NoteSubmission opens the post-submission suppression window for
// fullscreen-exit signals.
func (m *Monitor) NoteSubmission() {
	m.mu.Lock()
	m.suppressUntil = m.now().Add(m.cfg.Suppression)
	m.mu.Unlock()
}

// Counts returns a copy of the per-kind counters.
func (m *Monitor) Counts() map[model.ViolationKind]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.ViolationKind]int, len(m.counts))
	for k, n := range m.counts {
		out[k] = n
	}
	return out
}

// Total returns the sum of all counters.
func (m *Monitor) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.counts {
		total += n
	}
	return total
}

// Close tears the monitor down exactly once. After Close, RecordViolation is
// a no-op: no violation can be recorded once the exam has been submitted.
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.done)
	m.mu.Unlock()
}

func warningMessage(kind model.ViolationKind) string {
	switch kind {
	case model.ViolationTabSwitch:
		return "Switching away from the exam tab is not allowed."
	case model.ViolationCopyPaste:
		return "Clipboard use is disabled during the exam."
	case model.ViolationFullscreenExit:
		return "Please stay in fullscreen for the duration of the exam."
	case model.ViolationDevtools:
		return "Developer tools must stay closed during the exam."
	}
	return "Exam policy violation recorded."
}
