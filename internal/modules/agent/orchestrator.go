package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	appcfg "github.com/casevine/core/internal/config"
	"github.com/casevine/core/internal/modules/document"
	"go.uber.org/zap"
)

const (
	researchMaxTokens   = 2048
	extractionMaxTokens = 8192
)

// ErrNoStructuredOutput is returned when the extraction phase fails to
// produce valid structured content. Callers treat it as fatal for the run.
var ErrNoStructuredOutput = errors.New("no structured output generated")

// GenerateFunc is the single model call the orchestrator is built on.
type GenerateFunc func(ctx context.Context, systemPrompt, prompt string, maxTokens int) (string, error)

// ToolCall records one step of a research run for audit and debugging.
type ToolCall struct {
	Step   int                    `json:"step"`
	Tool   string                 `json:"tool"`
	Input  map[string]interface{} `json:"input"`
	Result string                 `json:"result"`
	Error  string                 `json:"error,omitempty"`
}

// ResearchResult is the outcome of the bounded research phase. Complete
// is false when the step budget ran out before the model concluded; the
// brief is then a degraded transcript compilation rather than a synthesis.
type ResearchResult struct {
	Brief    string     `json:"brief"`
	Calls    []ToolCall `json:"calls"`
	Complete bool       `json:"complete"`
}

// Orchestrator runs the two-phase generation pipeline: a tool-use
// research loop followed by schema-constrained extraction.
type Orchestrator struct {
	generate GenerateFunc
	logger   *zap.Logger
}

func NewOrchestrator(provider *appcfg.AIProvider, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		generate: func(ctx context.Context, systemPrompt, prompt string, maxTokens int) (string, error) {
			return generateText(ctx, provider, systemPrompt, prompt, maxTokens)
		},
		logger: logger,
	}
}

// NewOrchestratorWithGenerate wires a custom model call, used by tests
// and by callers that already hold a bound generate function.
func NewOrchestratorWithGenerate(generate GenerateFunc, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{generate: generate, logger: logger}
}

// agentDecision is the model's per-step reply in the research loop.
type agentDecision struct {
	Action string                 `json:"action"`
	Tool   string                 `json:"tool"`
	Input  map[string]interface{} `json:"input"`
	Answer string                 `json:"answer"`
}

// Research runs the bounded tool-use loop. Tool failures are reported
// back to the model as textual results and never abort the run; only a
// failed model call is fatal. Tool calls execute sequentially.
func (o *Orchestrator) Research(ctx context.Context, systemPrompt, task string, tools *Toolset, stepBudget int) (*ResearchResult, error) {
	system := systemPrompt + "\n\n" + researchProtocol + "\n\nAvailable tools:\n" + tools.Catalog()

	result := &ResearchResult{}
	transcript := []string{"TASK:\n" + task}

	for step := 1; step <= stepBudget; step++ {
		raw, err := o.generate(ctx, system, strings.Join(transcript, "\n\n"), researchMaxTokens)
		if err != nil {
			return nil, err
		}

		var decision agentDecision
		if err := unmarshalAIJSON(raw, &decision); err != nil {
			// A non-JSON reply is taken as the model answering in prose.
			result.Brief = strings.TrimSpace(raw)
			result.Complete = true
			return result, nil
		}

		if decision.Action != "tool" {
			answer := strings.TrimSpace(decision.Answer)
			if answer == "" {
				answer = strings.TrimSpace(raw)
			}
			result.Brief = answer
			result.Complete = true
			return result, nil
		}

		call := ToolCall{Step: step, Tool: decision.Tool, Input: decision.Input}
		toolResult, err := tools.Execute(ctx, decision.Tool, decision.Input)
		if err != nil {
			call.Error = err.Error()
			toolResult = fmt.Sprintf("TOOL ERROR (%s): %s", decision.Tool, err.Error())
			if o.logger != nil {
				o.logger.Warn("research tool failed",
					zap.String("tool", decision.Tool),
					zap.Int("step", step),
					zap.Error(err))
			}
		}
		call.Result = toolResult
		result.Calls = append(result.Calls, call)

		transcript = append(transcript,
			"ASSISTANT:\n"+strings.TrimSpace(raw),
			fmt.Sprintf("TOOL RESULT (%s):\n%s", decision.Tool, toolResult))
	}

	// Budget exhausted: fall back to a brief compiled from the raw tool
	// results so the extraction phase still has material to work with.
	result.Brief = compileTranscriptBrief(result.Calls)
	result.Complete = false
	if o.logger != nil {
		o.logger.Warn("research step budget exhausted", zap.Int("budget", stepBudget))
	}
	return result, nil
}

func compileTranscriptBrief(calls []ToolCall) string {
	var sb strings.Builder
	sb.WriteString("Research was cut short; the notes below are raw tool output.\n")
	for _, call := range calls {
		if call.Error != "" {
			continue
		}
		fmt.Fprintf(&sb, "\n--- %s ---\n%s\n", call.Tool, call.Result)
	}
	return sb.String()
}

// Extract runs the schema-constrained second phase: one model call whose
// reply must parse as JSON into out.
func (o *Orchestrator) Extract(ctx context.Context, systemPrompt, prompt string, out interface{}) error {
	raw, err := o.generate(ctx, systemPrompt, prompt, extractionMaxTokens)
	if err != nil {
		return err
	}
	if err := unmarshalAIJSON(raw, out); err != nil {
		if o.logger != nil {
			o.logger.Error("extraction produced unparseable output", zap.String("raw", truncateText(raw, 500)))
		}
		return ErrNoStructuredOutput
	}
	return nil
}

type sectionsPayload struct {
	Sections []struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"sections"`
}

// ExtractSections turns a research brief into an ordered section list
// for one document kind. An empty or unparseable reply is fatal.
func (o *Orchestrator) ExtractSections(ctx context.Context, instructions, brief string) ([]document.Section, error) {
	prompt := instructions + "\n\nResearch brief:\n" + brief

	var payload sectionsPayload
	if err := o.Extract(ctx, sectionExtractionSystem, prompt, &payload); err != nil {
		return nil, err
	}
	if len(payload.Sections) == 0 {
		return nil, ErrNoStructuredOutput
	}

	sections := make([]document.Section, 0, len(payload.Sections))
	for _, s := range payload.Sections {
		title := strings.TrimSpace(s.Title)
		if title == "" && strings.TrimSpace(s.Content) == "" {
			continue
		}
		id := strings.TrimSpace(s.ID)
		if id == "" {
			id = document.Slugify(title)
		}
		sections = append(sections, document.Section{ID: id, Title: title, Content: s.Content})
	}
	if len(sections) == 0 {
		return nil, ErrNoStructuredOutput
	}
	return sections, nil
}
