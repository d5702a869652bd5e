package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aretw0/clara/pkg/domain"
)

// Message types emitted by the JSONHandler, one JSON object per line.
const (
	MessageQuestions = "questions"
	MessageResult    = "result"
	MessageSystem    = "system"
)

// Message is a line of JSONHandler output.
type Message struct {
	Type      string   `json:"type"`
	RequestID string   `json:"request_id,omitempty"`
	Questions []string `json:"questions,omitempty"`
	Report    *Report  `json:"report,omitempty"`
	Text      string   `json:"text,omitempty"`
}

// JSONHandler implements the IOHandler interface for structured JSON-Lines communication.
type JSONHandler struct {
	Reader  *bufio.Reader
	Writer  io.Writer
	Encoder *json.Encoder

	mu sync.Mutex
}

// NewJSONHandler creates a handler for JSON IO.
func NewJSONHandler(r io.Reader, w io.Writer) *JSONHandler {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return &JSONHandler{
		Reader:  bufio.NewReader(r),
		Writer:  w,
		Encoder: json.NewEncoder(w),
	}
}

func (h *JSONHandler) emit(msg Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Encoder.Encode(msg)
}

func (h *JSONHandler) Questions(ctx context.Context, requestID string, req domain.HumanRequest) error {
	return h.emit(Message{Type: MessageQuestions, RequestID: requestID, Questions: req.Questions})
}

// Input reads one line. A JSON string is unquoted, an object with an
// "answer" key yields that value, anything else is taken verbatim.
func (h *JSONHandler) Input(ctx context.Context) (string, error) {
	text, err := h.Reader.ReadString('\n')
	if err != nil && (err != io.EOF || text == "") {
		return "", err
	}
	text = strings.TrimSpace(text)

	var val string
	if err := json.Unmarshal([]byte(text), &val); err == nil {
		return SanitizeInput(val)
	}
	var obj struct {
		Answer *string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj.Answer != nil {
		return SanitizeInput(*obj.Answer)
	}
	return SanitizeInput(text)
}

func (h *JSONHandler) Result(ctx context.Context, state *domain.WorkflowState) error {
	rep := NewReport(state)
	return h.emit(Message{Type: MessageResult, RequestID: state.RequestID, Report: &rep})
}

func (h *JSONHandler) SystemOutput(ctx context.Context, msg string) error {
	return h.emit(Message{Type: MessageSystem, Text: msg})
}
