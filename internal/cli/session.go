package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/aretw0/clara/pkg/domain"
)

// ListSessions prints one line per stored workflow.
func ListSessions(ctx context.Context, app *App, w io.Writer) error {
	ids, err := app.Engine.List(ctx)
	if err != nil {
		return fmt.Errorf("error listing workflows: %w", err)
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "No workflows found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "REQUEST ID\tSTATUS\tSTAGE\tDECISION")
	for _, id := range ids {
		state, err := app.Engine.Get(ctx, id)
		if err != nil {
			fmt.Fprintf(tw, "%s\t?\t?\t%v\n", id, err)
			continue
		}
		decision := "-"
		if state.Decision != nil {
			decision = fmt.Sprintf("%s (%d)", state.Decision.Outcome, state.Decision.Score)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, state.Status, state.CurrentStage, decision)
	}
	return tw.Flush()
}

// InspectSession prints the stored state of a workflow as indented JSON.
func InspectSession(ctx context.Context, app *App, requestID string, w io.Writer) error {
	state, err := app.Engine.Get(ctx, requestID)
	if err != nil {
		return fmt.Errorf("error loading workflow '%s': %w", requestID, err)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling state: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// RemoveSessions deletes workflows, reporting each one.
func RemoveSessions(ctx context.Context, app *App, ids []string, w io.Writer) error {
	var errs []error
	for _, id := range ids {
		if err := app.Engine.Delete(ctx, id); err != nil {
			fmt.Fprintf(w, "Error removing '%s': %v\n", id, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "Removed workflow '%s'\n", id)
	}
	return errors.Join(errs...)
}

// PrintAudit prints the audit trail of a workflow, as JSON Lines when asJSON is set.
func PrintAudit(ctx context.Context, app *App, requestID string, asJSON bool, w io.Writer) error {
	entries, err := app.Engine.Audit(ctx, requestID)
	if err != nil {
		return fmt.Errorf("error loading audit of '%s': %w", requestID, err)
	}
	if asJSON {
		enc := json.NewEncoder(w)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tSTAGE\tEVENT\tDURATION\tDETAIL")
	for _, e := range entries {
		writeAuditLine(tw, e)
	}
	return tw.Flush()
}

func writeAuditLine(w io.Writer, e domain.AuditEntry) {
	detail := ""
	if len(e.Detail) > 0 {
		if data, err := json.Marshal(e.Detail); err == nil {
			detail = string(data)
		}
	}
	duration := "-"
	if e.DurationMicros > 0 {
		duration = (time.Duration(e.DurationMicros) * time.Microsecond).String()
	}
	fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
		e.Sequence, e.Timestamp.Format(time.RFC3339), e.StageID, e.EventType, duration, detail)
}
