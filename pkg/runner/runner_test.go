package runner_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/clara"
	"github.com/aretw0/clara/pkg/adapters/simulated"
	"github.com/aretw0/clara/pkg/domain"
	"github.com/aretw0/clara/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request() map[string]any {
	return map[string]any{
		"customer_name": "Ada Lovelace",
		"email":         "ada@example.com",
		"query":         "My card was declined",
		"priority":      "medium",
	}
}

func newEngine(t *testing.T) (*clara.Engine, *simulated.Provider) {
	t.Helper()
	atlas := simulated.NewAtlas()
	eng, err := clara.New(
		clara.WithProvider(domain.ProviderAtlas, atlas),
		clara.WithProvider(domain.ProviderCommon, simulated.NewCommon()),
	)
	require.NoError(t, err)
	return eng, atlas
}

func TestRunner_TextConversation(t *testing.T) {
	eng, atlas := newEngine(t)
	out := &bytes.Buffer{}

	r := runner.NewRunner(
		runner.WithService(eng),
		runner.WithRequestID("req-1"),
		runner.WithRequest(request()),
		runner.WithInputHandler(runner.NewTextHandler(strings.NewReader("\nAccount ACC-12345\n"), out)),
	)

	state, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, state.Status)
	assert.Equal(t, "Account ACC-12345", state.Fields["customer_answer"])
	assert.Equal(t, 1, atlas.CallCount("extract_answer"))

	output := out.String()
	assert.Contains(t, output, "We need a few more details")
	assert.Contains(t, output, "An answer is required.")
	assert.Contains(t, output, "Decision:** AUTO_RESOLVE")
}

func TestRunner_StopLeavesWorkflowWaiting(t *testing.T) {
	eng, _ := newEngine(t)

	for _, input := range []string{"", "quit\n"} {
		id := "req-" + strings.TrimSpace(input)
		r := runner.NewRunner(
			runner.WithService(eng),
			runner.WithRequestID(id),
			runner.WithRequest(request()),
			runner.WithInputHandler(runner.NewTextHandler(strings.NewReader(input), io.Discard)),
		)

		state, err := r.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, domain.StatusWaitingForHuman, state.Status)

		stored, err := eng.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusWaitingForHuman, stored.Status)
	}
}

func TestRunner_PicksUpExistingWorkflow(t *testing.T) {
	eng, _ := newEngine(t)
	ctx := context.Background()

	_, err := eng.Run(ctx, "req-1", request())
	require.NoError(t, err)

	r := runner.NewRunner(
		runner.WithService(eng),
		runner.WithRequestID("req-1"),
		runner.WithAnswerField("customer_answer"),
		runner.WithInputHandler(runner.NewTextHandler(strings.NewReader("ACC-1\n"), io.Discard)),
	)
	state, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, state.Status)

	_, err = runner.NewRunner(runner.WithService(eng), runner.WithRequestID("missing")).Run(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "without a request nothing can be started")
}

func TestRunner_Interceptor(t *testing.T) {
	eng, _ := newEngine(t)
	out := &bytes.Buffer{}
	handler := runner.NewTextHandler(strings.NewReader("ACC-1\nn\nACC-12345\ny\n"), out)

	r := runner.NewRunner(
		runner.WithService(eng),
		runner.WithRequest(request()),
		runner.WithInputHandler(handler),
		runner.WithInterceptor(runner.ConfirmationMiddleware(handler)),
	)

	state, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, state.Status)
	assert.Equal(t, "ACC-12345", state.Fields["customer_answer"])
	assert.Contains(t, out.String(), "Answer discarded")
}

func TestRunner_InputTimeout(t *testing.T) {
	eng, _ := newEngine(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	r := runner.NewRunner(
		runner.WithService(eng),
		runner.WithRequestID("req-1"),
		runner.WithRequest(request()),
		runner.WithInputTimeout(20*time.Millisecond),
		runner.WithInputHandler(runner.NewTextHandler(pr, io.Discard)),
	)

	state, err := r.Run(context.Background())
	assert.ErrorIs(t, err, runner.ErrInputTimeout)
	require.NotNil(t, state)
	assert.Equal(t, domain.StatusWaitingForHuman, state.Status)
}

// askedHandler closes asked once the questions are shown.
type askedHandler struct {
	*runner.TextHandler
	asked chan struct{}
}

func (h *askedHandler) Questions(ctx context.Context, id string, req domain.HumanRequest) error {
	close(h.asked)
	return h.TextHandler.Questions(ctx, id, req)
}

func TestRunner_Interrupt(t *testing.T) {
	eng, _ := newEngine(t)
	pr, pw := io.Pipe()
	defer pw.Close()

	handler := &askedHandler{TextHandler: runner.NewTextHandler(pr, io.Discard), asked: make(chan struct{})}
	interrupts := make(chan struct{})
	r := runner.NewRunner(
		runner.WithService(eng),
		runner.WithRequestID("req-1"),
		runner.WithRequest(request()),
		runner.WithInterruptSource(interrupts),
		runner.WithInputHandler(handler),
	)

	go func() {
		<-handler.asked
		close(interrupts)
	}()

	state, err := r.Run(context.Background())
	assert.ErrorIs(t, err, runner.ErrInterrupted)
	assert.Equal(t, domain.StatusWaitingForHuman, state.Status)

	stored, err := eng.Get(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWaitingForHuman, stored.Status, "an interrupted conversation can be picked up later")
}

func TestRunner_JSONConversation(t *testing.T) {
	eng, _ := newEngine(t)
	out := &bytes.Buffer{}

	r := runner.NewRunner(
		runner.WithService(eng),
		runner.WithRequestID("req-1"),
		runner.WithRequest(request()),
		runner.WithInputHandler(runner.NewJSONHandler(strings.NewReader(`{"answer": "ACC-12345"}`+"\n"), out)),
	)

	state, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, state.Status)

	dec := json.NewDecoder(out)
	var questions, result runner.Message
	require.NoError(t, dec.Decode(&questions))
	require.NoError(t, dec.Decode(&result))
	assert.Equal(t, runner.MessageQuestions, questions.Type)
	assert.NotEmpty(t, questions.Questions)
	assert.Equal(t, runner.MessageResult, result.Type)
	assert.Equal(t, "req-1", result.RequestID)
	require.NotNil(t, result.Report)
	assert.Equal(t, "req-1", result.Report.Payload["request_id"])
}

func TestRunner_NoService(t *testing.T) {
	_, err := runner.NewRunner().Run(context.Background())
	assert.Error(t, err)
}
