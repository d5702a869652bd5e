package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/aretw0/clara/pkg/domain"
)

// DefaultWatchInterval is how often Watch polls the store.
const DefaultWatchInterval = 500 * time.Millisecond

// Watch follows a workflow from the store, printing audit entries as they are
// appended, until it reaches a terminal status, suspends at ASK (unless
// follow is set) or ctx is done. It works across processes sharing a file or
// redis store.
func Watch(ctx context.Context, app *App, requestID string, interval time.Duration, follow bool, w io.Writer) (*domain.WorkflowState, error) {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *domain.WorkflowState
	for {
		state, err := app.Engine.Get(ctx, requestID)
		switch {
		case errors.Is(err, domain.ErrSessionNotFound) && last == nil && follow:
			// not created yet
		case err != nil:
			return last, fmt.Errorf("error loading workflow '%s': %w", requestID, err)
		default:
			if diff := domain.Diff(last, state); diff != nil {
				printDiff(w, diff)
			}
			last = state
			if state.Status.Terminal() || (!follow && state.Status == domain.StatusWaitingForHuman) {
				printSystemMessage(w, "Workflow '%s' is %s at '%s'.", requestID, state.Status, state.CurrentStage)
				return state, nil
			}
		}

		select {
		case <-ctx.Done():
			return last, nil
		case <-ticker.C:
		}
	}
}

func printDiff(w io.Writer, diff *domain.StateDiff) {
	if len(diff.Audit) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, e := range diff.Audit {
			writeAuditLine(tw, e)
		}
		_ = tw.Flush()
	}
	if diff.Status != nil {
		printSystemMessage(w, "Status: %s", *diff.Status)
	}
}
