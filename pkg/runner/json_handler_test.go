package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/clara/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONHandler_Output(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := NewJSONHandler(strings.NewReader(""), buf)
	ctx := context.Background()

	require.NoError(t, handler.Questions(ctx, "req-1", domain.HumanRequest{Questions: []string{"Which account?"}}))
	require.NoError(t, handler.SystemOutput(ctx, "hello"))

	state := domain.NewState("req-1", nil)
	state.Status = domain.StatusFailed
	state.Failure = &domain.Failure{Kind: domain.KindCancelled, Stage: domain.StageRetrieve, Message: "stopped"}
	require.NoError(t, handler.Result(ctx, state))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3, "one JSON object per line")

	var msgs []Message
	for _, line := range lines {
		var m Message
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		msgs = append(msgs, m)
	}

	assert.Equal(t, MessageQuestions, msgs[0].Type)
	assert.Equal(t, []string{"Which account?"}, msgs[0].Questions)
	assert.Equal(t, MessageSystem, msgs[1].Type)
	assert.Equal(t, "hello", msgs[1].Text)
	assert.Equal(t, MessageResult, msgs[2].Type)
	require.NotNil(t, msgs[2].Report)
	assert.Equal(t, domain.StatusFailed, msgs[2].Report.Status)
	assert.Equal(t, domain.KindCancelled, msgs[2].Report.Failure.Kind)
	assert.Contains(t, msgs[2].Report.Markdown, "failed")
}

func TestJSONHandler_Input(t *testing.T) {
	input := strings.Join([]string{
		`"quoted answer"`,
		`{"answer": "object answer"}`,
		`plain answer`,
		`{"other": 1}`,
	}, "\n")
	handler := NewJSONHandler(strings.NewReader(input), io.Discard)
	ctx := context.Background()

	for _, want := range []string{"quoted answer", "object answer", "plain answer", `{"other": 1}`} {
		got, err := handler.Input(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := handler.Input(ctx)
	assert.ErrorIs(t, err, io.EOF)
}
