/*
Package runner drives a Clara workflow to completion from an interactive or
scripted frontend.

The engine suspends a workflow at ASK until a human answers the clarification
questions. The Runner owns that conversation: it starts (or picks up) the
workflow, presents the pending questions through an IOHandler, reads and
sanitizes the answer and resumes the workflow, repeating until it completes
or fails. Interrupting the runner while it waits for an answer leaves the
workflow suspended, so it can be picked up later by request ID.

# Key Components

  - Runner: the conversation loop over a ports.WorkflowService.
  - IOHandler: decouples how questions are shown and answers read.
  - TextHandler: interactive terminal usage, with optional markdown rendering.
  - JSONHandler: JSON-Lines for hosts driving the runner programmatically.

# Usage

	r := runner.NewRunner(
		runner.WithService(engine),
		runner.WithRequest(fields),
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)

	state, err := r.Run(ctx)
	if err != nil {
		log.Fatal(err)
	}
*/
package runner
