package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func scriptedGenerate(t *testing.T, replies []string) GenerateFunc {
	i := 0
	return func(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
		if i >= len(replies) {
			t.Fatalf("generate called %d times, only %d replies scripted", i+1, len(replies))
		}
		reply := replies[i]
		i++
		return reply, nil
	}
}

func echoToolset() *Toolset {
	return NewToolset(Tool{
		Name:        "echo",
		Description: "Echoes the query back.",
		Run: func(ctx context.Context, input map[string]interface{}) (string, error) {
			q, _ := input["query"].(string)
			return "ECHO: " + q, nil
		},
	}, Tool{
		Name:        "always_fails",
		Description: "Fails on every call.",
		Run: func(ctx context.Context, input map[string]interface{}) (string, error) {
			return "", errors.New("backing store offline")
		},
	})
}

func TestResearch_ToolLoopThenFinal(t *testing.T) {
	gen := scriptedGenerate(t, []string{
		`{"action":"tool","tool":"echo","input":{"query":"awards"}}`,
		`{"action":"final","answer":"Client won the NeurIPS best paper award."}`,
	})
	o := NewOrchestratorWithGenerate(gen, nil)

	result, err := o.Research(context.Background(), "system", "task", echoToolset(), 10)
	if err != nil {
		t.Fatalf("research: %v", err)
	}
	if !result.Complete {
		t.Fatalf("expected complete run")
	}
	if result.Brief != "Client won the NeurIPS best paper award." {
		t.Fatalf("unexpected brief %q", result.Brief)
	}
	if len(result.Calls) != 1 || result.Calls[0].Tool != "echo" || result.Calls[0].Result != "ECHO: awards" {
		t.Fatalf("unexpected call log %+v", result.Calls)
	}
}

func TestResearch_ToolFailureIsRecoverable(t *testing.T) {
	var secondPrompt string
	replies := []string{
		`{"action":"tool","tool":"always_fails","input":{}}`,
		`{"action":"final","answer":"done without that tool"}`,
	}
	i := 0
	gen := func(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
		if i == 1 {
			secondPrompt = prompt
		}
		reply := replies[i]
		i++
		return reply, nil
	}
	o := NewOrchestratorWithGenerate(gen, nil)

	result, err := o.Research(context.Background(), "system", "task", echoToolset(), 10)
	if err != nil {
		t.Fatalf("tool failure must not abort the run: %v", err)
	}
	if !result.Complete || result.Brief != "done without that tool" {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Calls[0].Error == "" {
		t.Fatalf("tool error not recorded: %+v", result.Calls[0])
	}
	if !strings.Contains(secondPrompt, "TOOL ERROR (always_fails)") {
		t.Fatalf("model never saw the failure: %q", secondPrompt)
	}
}

func TestResearch_UnknownToolReportedAsError(t *testing.T) {
	gen := scriptedGenerate(t, []string{
		`{"action":"tool","tool":"no_such_tool","input":{}}`,
		`{"action":"final","answer":"ok"}`,
	})
	o := NewOrchestratorWithGenerate(gen, nil)

	result, err := o.Research(context.Background(), "system", "task", echoToolset(), 10)
	if err != nil {
		t.Fatalf("unknown tool must not abort the run: %v", err)
	}
	if !strings.Contains(result.Calls[0].Error, "unknown tool") {
		t.Fatalf("unexpected call log %+v", result.Calls)
	}
}

func TestResearch_BudgetExhaustionYieldsDegradedBrief(t *testing.T) {
	gen := func(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
		return `{"action":"tool","tool":"echo","input":{"query":"more"}}`, nil
	}
	o := NewOrchestratorWithGenerate(gen, nil)

	result, err := o.Research(context.Background(), "system", "task", echoToolset(), 3)
	if err != nil {
		t.Fatalf("research: %v", err)
	}
	if result.Complete {
		t.Fatalf("expected incomplete run after budget exhaustion")
	}
	if len(result.Calls) != 3 {
		t.Fatalf("expected exactly 3 calls, got %d", len(result.Calls))
	}
	if !strings.Contains(result.Brief, "ECHO: more") {
		t.Fatalf("degraded brief missing tool output: %q", result.Brief)
	}
}

func TestResearch_ProseReplyTreatedAsFinal(t *testing.T) {
	gen := scriptedGenerate(t, []string{"Here is my research brief in plain prose."})
	o := NewOrchestratorWithGenerate(gen, nil)

	result, err := o.Research(context.Background(), "system", "task", echoToolset(), 10)
	if err != nil {
		t.Fatalf("research: %v", err)
	}
	if !result.Complete || result.Brief != "Here is my research brief in plain prose." {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestResearch_ModelCallFailureIsFatal(t *testing.T) {
	gen := func(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
		return "", fmt.Errorf("provider unreachable")
	}
	o := NewOrchestratorWithGenerate(gen, nil)

	if _, err := o.Research(context.Background(), "system", "task", echoToolset(), 10); err == nil {
		t.Fatalf("expected error when the model call fails")
	}
}

func TestExtractSections_ParsesAndDefaultsIDs(t *testing.T) {
	gen := scriptedGenerate(t, []string{
		"```json\n" + `{"sections":[{"title":"Introduction","content":"Hello."},{"id":"closing","title":"Conclusion","content":"Bye."}]}` + "\n```",
	})
	o := NewOrchestratorWithGenerate(gen, nil)

	sections, err := o.ExtractSections(context.Background(), "instructions", "brief")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[0].ID != "introduction" {
		t.Fatalf("missing id not defaulted: %q", sections[0].ID)
	}
	if sections[1].ID != "closing" {
		t.Fatalf("explicit id lost: %q", sections[1].ID)
	}
}

func TestExtractSections_InvalidOutputIsFatal(t *testing.T) {
	cases := []string{
		"I could not produce the document, sorry.",
		`{"sections":[]}`,
	}
	for _, reply := range cases {
		o := NewOrchestratorWithGenerate(scriptedGenerate(t, []string{reply}), nil)
		if _, err := o.ExtractSections(context.Background(), "instructions", "brief"); !errors.Is(err, ErrNoStructuredOutput) {
			t.Fatalf("reply %q: expected ErrNoStructuredOutput, got %v", reply, err)
		}
	}
}
