package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/autoprint/autoprint/internal/autoprint"
	"github.com/autoprint/autoprint/internal/logging"
)

// OutcomeData is the payload of an outcome message.
type OutcomeData struct {
	Path        string `json:"path"`
	Status      string `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Copies      int    `json:"copies,omitempty"`
	Submissions int    `json:"submissions,omitempty"`
	Pages       int    `json:"pages,omitempty"`
	LockWaits   int    `json:"lock_waits,omitempty"`
	Attempts    int    `json:"attempts,omitempty"`
	Error       string `json:"error,omitempty"`
}

// StateData is the payload of a state message.
type StateData struct {
	State string `json:"state"`
}

// HelloData is the payload of the hello message.
type HelloData struct {
	Dir     string         `json:"dir"`
	Printer string         `json:"printer"`
	State   string         `json:"state"`
	Totals  map[string]int `json:"totals"`
}

// Handler turns loop notifications into feed messages. It implements
// autoprint.Observer.
type Handler struct {
	server  *Server
	logger  *logging.Logger
	dir     string
	printer string

	mu     sync.Mutex
	state  autoprint.State
	totals map[string]int
}

// NewHandler creates a handler publishing to server. dir and printer are
// reported in the hello message.
func NewHandler(server *Server, dir, printer string, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		server:  server,
		logger:  logger,
		dir:     dir,
		printer: printer,
		totals:  make(map[string]int),
	}
}

// ObserveOutcome implements autoprint.Observer.
func (h *Handler) ObserveOutcome(out autoprint.Outcome) {
	h.mu.Lock()
	h.totals[string(out.Status)]++
	h.mu.Unlock()

	data := OutcomeData{
		Path:        out.Path,
		Status:      string(out.Status),
		ContentType: out.ContentType,
		Copies:      out.Copies,
		Submissions: out.Submissions,
		Pages:       out.Pages,
		LockWaits:   out.LockWaits,
		Attempts:    out.Attempts,
	}
	if out.Err != nil {
		data.Error = out.Err.Error()
	}
	h.publish(MessageTypeOutcome, data)
}

// ObserveState implements autoprint.Observer.
func (h *Handler) ObserveState(s autoprint.State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()

	h.publish(MessageTypeState, StateData{State: s.String()})
}

// Hello builds the message sent to new clients. Pass it as Config.Welcome.
func (h *Handler) Hello() Message {
	h.mu.Lock()
	totals := make(map[string]int, len(h.totals))
	for k, v := range h.totals {
		totals[k] = v
	}
	data := HelloData{
		Dir:     h.dir,
		Printer: h.printer,
		State:   h.state.String(),
		Totals:  totals,
	}
	h.mu.Unlock()

	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Errorf("Failed to marshal hello: %v", err)
	}
	return Message{Type: MessageTypeHello, Timestamp: time.Now(), Data: raw}
}

func (h *Handler) publish(t MessageType, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		h.logger.Errorf("Failed to marshal %s data: %v", t, err)
		return
	}
	h.server.Broadcast(Message{Type: t, Timestamp: time.Now(), Data: raw})
}
