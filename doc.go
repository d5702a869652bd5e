/*
Package clara is a customer-support workflow engine.

Every request travels through the same eleven stages:

	INTAKE → UNDERSTAND → PREPARE → ASK → WAIT → RETRIEVE → DECIDE → UPDATE → CREATE → DO → COMPLETE

Each stage invokes named abilities on one of two capability providers: ATLAS
(external systems such as the CRM, ticketing and notifications) and COMMON
(internal parsing, scoring and generation). DETERMINISTIC stages run their
abilities in declared order and stop at the first failure. NON_DETERMINISTIC
stages let a planner choose among their abilities and only degrade on
failure. ASK suspends the workflow until a human answer is supplied with
Resume. DECIDE scores the candidate solutions: a score below 90 escalates the
ticket to a human agent, which switches UPDATE and DO to their escalation
abilities.

Every stage entry and exit, ability call, decision and failure is appended to
the workflow's audit trail.

# Usage

	eng, err := clara.New(
		clara.WithProvider(domain.ProviderAtlas, atlas),
		clara.WithProvider(domain.ProviderCommon, common),
	)
	if err != nil {
		log.Fatal(err)
	}

	state, err := eng.Run(ctx, "", map[string]any{
		"customer_name": "Ada Lovelace",
		"email":         "ada@example.com",
		"query":         "My card was declined",
	})
	// state.Status == domain.StatusWaitingForHuman, state.Pending holds the questions.

	state, err = eng.Resume(ctx, state.RequestID, map[string]any{
		"customer_answer": "Account ACC-12345, since Monday",
	})
	payload, _ := state.Payload()

Workflows are persisted after every stage and every completed ability, in
memory by default. Use WithStore with a file or Redis store, and WithLocker,
to share workflows between processes; Recover continues a workflow whose
process crashed mid-run.
*/
package clara
