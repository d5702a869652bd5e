package pipeline

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/clara/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	stages := c.Stages()
	require.Len(t, stages, 11)
	for i, id := range domain.StageOrder() {
		assert.Equal(t, id, stages[i].ID)
	}

	assert.Equal(t, domain.AbilityRef{Name: "solution_evaluation", Provider: domain.ProviderCommon}, c.Scoring)
	assert.Equal(t, domain.AbilityRef{Name: "escalation_decision", Provider: domain.ProviderAtlas}, c.Escalation)

	ask, ok := c.Stage(domain.StageAsk)
	require.True(t, ok)
	assert.Equal(t, domain.StageHumanInteraction, ask.Type)
	assert.Equal(t, "clarification_questions", ask.PromptField)

	update, _ := c.Stage(domain.StageUpdate)
	assert.Equal(t, "close_ticket", update.AbilitiesFor(domain.StatusRunning)[1].Name)
	assert.Equal(t, "record_escalation", update.AbilitiesFor(domain.StatusEscalated)[1].Name)

	do, _ := c.Stage(domain.StageDo)
	assert.Equal(t, "handoff_to_human", do.AbilitiesFor(domain.StatusEscalated)[0].Name)

	assert.Equal(t, []string{"query"}, c.Inputs(domain.AbilityRef{Name: "parse_request_text", Provider: domain.ProviderCommon}))
	assert.Nil(t, c.Inputs(domain.AbilityRef{Name: "unknown", Provider: domain.ProviderCommon}))
	assert.NotEmpty(t, c.Abilities())
}

func mutate(t *testing.T, fn func(cfg *ConfigFile)) error {
	t.Helper()
	var cfg ConfigFile
	require.NoError(t, yaml.Unmarshal(defaultCatalog, &cfg))
	fn(&cfg)
	_, err := Build(cfg)
	return err
}

func TestCatalogValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *ConfigFile)
		wantMsg string
	}{
		{
			name:    "missing stage",
			mutate:  func(cfg *ConfigFile) { cfg.Stages = cfg.Stages[:10] },
			wantMsg: "expected 11 stages",
		},
		{
			name: "wrong order",
			mutate: func(cfg *ConfigFile) {
				cfg.Stages[1], cfg.Stages[2] = cfg.Stages[2], cfg.Stages[1]
			},
			wantMsg: "position 2 must be UNDERSTAND",
		},
		{
			name:    "unknown provider",
			mutate:  func(cfg *ConfigFile) { cfg.Stages[1].Abilities[0].Provider = "ZEUS" },
			wantMsg: "unknown provider",
		},
		{
			name:    "deterministic stage without abilities",
			mutate:  func(cfg *ConfigFile) { cfg.Stages[8].Abilities = nil },
			wantMsg: "needs abilities",
		},
		{
			name:    "human stage without prompt",
			mutate:  func(cfg *ConfigFile) { cfg.Stages[3].PromptField = "" },
			wantMsg: "prompt_field is required",
		},
		{
			name:    "unknown transform",
			mutate:  func(cfg *ConfigFile) { cfg.Stages[0].Transform = "nope" },
			wantMsg: "unknown transform",
		},
		{
			name:    "scoring on ATLAS",
			mutate:  func(cfg *ConfigFile) { cfg.Stages[6].Abilities[0].Provider = "ATLAS" },
			wantMsg: "must be provided by COMMON",
		},
		{
			name:    "missing scoring ability",
			mutate:  func(cfg *ConfigFile) { cfg.Scoring = "missing" },
			wantMsg: "needs a scoring ability",
		},
		{
			name: "escalation variant before DECIDE",
			mutate: func(cfg *ConfigFile) {
				cfg.Stages[1].EscalationAbilities = cfg.Stages[1].Abilities
			},
			wantMsg: "only allowed after DECIDE",
		},
		{
			name: "duplicate ability",
			mutate: func(cfg *ConfigFile) {
				cfg.Stages[2].Abilities = append(cfg.Stages[2].Abilities, cfg.Stages[2].Abilities[0])
			},
			wantMsg: "duplicate ability",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mutate(t, tt.mutate)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCatalog)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "stages.yaml")
	require.NoError(t, os.WriteFile(yamlPath, defaultCatalog, 0644))
	c, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Len(t, c.Stages(), 11)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	jsonPath := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{"), 0644))
	_, err = Load(jsonPath)
	assert.Error(t, err)
}

func TestIntake(t *testing.T) {
	created := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	t.Run("defaults", func(t *testing.T) {
		s := domain.NewState("ab12cd34-ef56-7890", map[string]any{
			"customer_name": " Ada ",
			"email":         "ada@example.com",
			"query":         "My payment failed",
		})
		s.CreatedAt = created

		out, err := Intake(s)
		require.NoError(t, err)
		assert.Equal(t, "Ada", out["customer_name"])
		assert.Equal(t, "medium", out["priority"])
		assert.Equal(t, "TKT-20240115-ab12cd34", out["ticket_id"])
	})

	t.Run("ticket suffix is hex for any request ID", func(t *testing.T) {
		ticket := regexp.MustCompile(`^TKT-20240115-[0-9a-f]{8}$`)
		for _, id := range []string{"req-1", "CUSTOMER_42", "x", "ab12cd34-ef56-7890"} {
			got := TicketID(id, created)
			assert.Regexp(t, ticket, got, id)
			assert.Equal(t, got, TicketID(id, created), "stable for %s", id)
		}
		assert.NotEqual(t, TicketID("req-1", created), TicketID("req-2", created))
	})

	t.Run("keeps supplied ticket and normalises priority", func(t *testing.T) {
		s := domain.NewState("req-1", map[string]any{
			"customer_name": "Ada",
			"email":         "ada@example.com",
			"query":         "help",
			"priority":      "URGENT",
			"ticket_id":     "TKT-1",
		})
		out, err := Intake(s)
		require.NoError(t, err)
		assert.Equal(t, "urgent", out["priority"])
		assert.Equal(t, "TKT-1", out["ticket_id"])
	})

	t.Run("reports every problem", func(t *testing.T) {
		s := domain.NewState("req-1", map[string]any{
			"email":    "not-an-email",
			"priority": "whenever",
		})
		_, err := Intake(s)
		require.Error(t, err)
		msg := err.Error()
		assert.True(t, strings.Contains(msg, "customer_name"))
		assert.True(t, strings.Contains(msg, "invalid email"))
		assert.True(t, strings.Contains(msg, "query"))
		assert.True(t, strings.Contains(msg, "invalid priority"))
	})
}

func TestComplete(t *testing.T) {
	s := domain.NewState("req-1", map[string]any{
		"ticket_id":          "TKT-1",
		"customer_name":      "Ada",
		"email":              "ada@example.com",
		"generated_response": "Dear Ada",
		"selected_solution":  map[string]any{"id": "SOL-001", "title": "Billing Payment Failure Resolution"},
		"ticket_closed":      true,
	})
	rec, err := domain.NewDecisionRecord(92, nil, "ok", time.Now())
	require.NoError(t, err)
	s.Decision = &rec

	now := time.Now()
	s.Audit.Append(domain.AuditEntry{StageID: domain.StageIntake, EventType: domain.EventStageEnter, Timestamp: now})
	s.Audit.Append(domain.AuditEntry{StageID: domain.StageUnderstand, EventType: domain.EventStageEnter, Timestamp: now})
	s.Audit.Append(domain.AuditEntry{StageID: domain.StageUnderstand, EventType: domain.EventAbilityCall, Timestamp: now,
		Detail: map[string]any{"ability": "parse_request_text", "success": true}})
	s.Audit.Append(domain.AuditEntry{StageID: domain.StageUnderstand, EventType: domain.EventAbilityCall, Timestamp: now.Add(50 * time.Millisecond),
		Detail: map[string]any{"ability": "extract_entities", "success": false}})

	out, err := Complete(s)
	require.NoError(t, err)

	payload := out[domain.FieldFinalPayload].(map[string]any)
	assert.Equal(t, "TKT-1", payload["ticket_id"])
	assert.Equal(t, "Dear Ada", payload["resolution"])
	assert.Equal(t, false, payload["escalated"])
	assert.Equal(t, "auto_resolved", payload["resolution_path"])
	assert.Equal(t, "resolved", payload["resolution_status"])
	assert.Contains(t, payload["resolution_summary"], "Billing Payment Failure Resolution")

	summary := payload["processing_summary"].(map[string]any)
	assert.Equal(t, 11, summary["total_stages"])
	assert.Equal(t, []string{"INTAKE", "UNDERSTAND"}, summary["stages_executed"])
	assert.Equal(t, 2, summary["abilities_invoked"])
	assert.Equal(t, []string{"extract_entities"}, summary["failed_abilities"])
	assert.Equal(t, int64(50), summary["total_duration_ms"])
}
