package websocket

import "github.com/algoprep/algoprep-backend/internal/monitor"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSignal    Action = "signal"
	ActionViewport  Action = "viewport"
	ActionDialog    Action = "dialog"
	ActionSubmitted Action = "submitted"
	ActionPing      Action = "ping"
)

// RequestPayload is the union of every client message. Action selects which
// fields are meaningful.
type RequestPayload struct {
	Action Action `json:"action"`

	// signal
	Signal string `json:"signal,omitempty"`

	// viewport
	OuterWidth  int `json:"outer_w,omitempty"`
	OuterHeight int `json:"outer_h,omitempty"`
	InnerWidth  int `json:"inner_w,omitempty"`
	InnerHeight int `json:"inner_h,omitempty"`

	// dialog
	Open bool `json:"open,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventWarning    Event = "warning"
	EventGrace      Event = "auto-submit-grace"
	EventAutoSubmit Event = "auto-submit"
	EventTick       Event = "tick"
	EventError      Event = "error"
	EventPong       Event = "pong"
)

// WarningResponse surfaces a recorded violation to the client.
type WarningResponse struct {
	Event   Event           `json:"event"`
	Warning monitor.Warning `json:"warning"`
}

// GraceResponse announces the violation threshold was reached and the attempt
// will be force-submitted after the grace window.
type GraceResponse struct {
	Event   Event `json:"event"`
	Seconds int   `json:"seconds"`
	Total   int   `json:"total"`
}

// AutoSubmitResponse announces the attempt was force-submitted.
type AutoSubmitResponse struct {
	Event  Event  `json:"event"`
	Reason string `json:"reason"`
}

// TickResponse carries the server-authoritative remaining time.
type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
