package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/casevine/core/internal/models"
	"github.com/casevine/core/internal/modules/vault"
	"gorm.io/gorm"
)

const toolResultLimit = 6000

// ToolFunc executes one research tool call. A returned error is fed back
// to the model as a textual failure and never aborts the loop.
type ToolFunc func(ctx context.Context, input map[string]interface{}) (string, error)

type Tool struct {
	Name        string
	Description string
	Usage       string
	Run         ToolFunc
}

// Toolset is the catalog of tools available to one research run. Every
// tool is bound to a single case so the model cannot read across clients.
type Toolset struct {
	order []string
	tools map[string]Tool
}

func NewToolset(tools ...Tool) *Toolset {
	ts := &Toolset{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		if _, dup := ts.tools[tool.Name]; dup {
			continue
		}
		ts.order = append(ts.order, tool.Name)
		ts.tools[tool.Name] = tool
	}
	return ts
}

func (ts *Toolset) Catalog() string {
	var sb strings.Builder
	for _, name := range ts.order {
		tool := ts.tools[name]
		fmt.Fprintf(&sb, "- %s: %s", tool.Name, tool.Description)
		if tool.Usage != "" {
			fmt.Fprintf(&sb, " Input: %s", tool.Usage)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (ts *Toolset) Execute(ctx context.Context, name string, input map[string]interface{}) (string, error) {
	tool, ok := ts.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	result, err := tool.Run(ctx, input)
	if err != nil {
		return "", err
	}
	return truncateText(result, toolResultLimit), nil
}

func stringInput(input map[string]interface{}, key string) string {
	if input == nil {
		return ""
	}
	v, ok := input[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

func stringSliceInput(input map[string]interface{}, key string) []string {
	if input == nil {
		return nil
	}
	raw, ok := input[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

// CaseTools builds the standard toolset for one client's case.
func CaseTools(db *gorm.DB, searcher vault.Searcher, client *models.ClientModel) *Toolset {
	return NewToolset(
		clientProfileTool(db, client),
		vaultSearchTool(searcher, client),
		gapAnalysisTool(db, client),
		eligibilityReportTool(db, client),
		existingDraftsTool(db, client),
		recommenderTool(db, client),
	)
}

// EvaluationTools is the reduced toolset the eligibility evaluator runs
// with: profile and evidence search only, no derived artifacts.
func EvaluationTools(db *gorm.DB, searcher vault.Searcher, client *models.ClientModel) *Toolset {
	return NewToolset(
		clientProfileTool(db, client),
		vaultSearchTool(searcher, client),
	)
}

// GapTools is the toolset for gap analysis: evidence plus the latest
// eligibility report, but no drafts or recommenders.
func GapTools(db *gorm.DB, searcher vault.Searcher, client *models.ClientModel) *Toolset {
	return NewToolset(
		clientProfileTool(db, client),
		vaultSearchTool(searcher, client),
		eligibilityReportTool(db, client),
	)
}

func clientProfileTool(db *gorm.DB, client *models.ClientModel) Tool {
	return Tool{
		Name:        "get_client_profile",
		Description: "Returns the client's profile and the list of evidence documents on file.",
		Usage:       "{} (no arguments)",
		Run: func(ctx context.Context, _ map[string]interface{}) (string, error) {
			var docs []models.EvidenceDocumentModel
			if err := db.WithContext(ctx).
				Where("client_id = ?", client.ID).
				Order("created_at asc").
				Find(&docs).Error; err != nil {
				return "", err
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Name: %s\nVisa category: %s\nField of endeavor: %s\n", client.Name, client.VisaCategory, client.FieldOfEndeavor)
			if strings.TrimSpace(client.ProfileSummary) != "" {
				fmt.Fprintf(&sb, "Profile summary: %s\n", client.ProfileSummary)
			}
			if len(docs) == 0 {
				sb.WriteString("Evidence documents: none uploaded yet.\n")
				return sb.String(), nil
			}
			sb.WriteString("Evidence documents:\n")
			for _, doc := range docs {
				fmt.Fprintf(&sb, "- %s (%s, id %s)\n", doc.Name, doc.DocType, doc.ID)
			}
			return sb.String(), nil
		},
	}
}

func vaultSearchTool(searcher vault.Searcher, client *models.ClientModel) Tool {
	return Tool{
		Name:        "search_vault",
		Description: "Semantic search over the client's uploaded evidence documents.",
		Usage:       `{"query": "...", "document_ids": ["..."] (optional)}`,
		Run: func(ctx context.Context, input map[string]interface{}) (string, error) {
			query := stringInput(input, "query")
			if query == "" {
				return "", fmt.Errorf("search_vault requires a non-empty query")
			}
			chunks, err := searcher.Search(ctx, client.ID, query, stringSliceInput(input, "document_ids"), 0)
			if err != nil {
				return "", err
			}
			return vault.FormatChunks(chunks), nil
		},
	}
}

func gapAnalysisTool(db *gorm.DB, client *models.ClientModel) Tool {
	return Tool{
		Name:        "get_gap_analysis",
		Description: "Returns the most recent evidence gap analysis for this case.",
		Usage:       "{} (no arguments)",
		Run: func(ctx context.Context, _ map[string]interface{}) (string, error) {
			var snapshot models.GapAnalysisModel
			err := db.WithContext(ctx).
				Where("client_id = ?", client.ID).
				Order("created_at desc").
				First(&snapshot).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "No gap analysis has been generated for this case yet.", nil
			}
			if err != nil {
				return "", err
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Overall strength: %s\nSummary: %s\n", snapshot.OverallStrength, snapshot.Summary)
			for _, crit := range snapshot.Criteria {
				fmt.Fprintf(&sb, "\n%s:\n", models.CriterionLabels[crit.Slug])
				for _, gap := range crit.Gaps {
					fmt.Fprintf(&sb, "- gap: %s\n", gap)
				}
				for _, rec := range crit.Recommendations {
					fmt.Fprintf(&sb, "- recommendation: %s\n", rec)
				}
			}
			if len(snapshot.PriorityActions) > 0 {
				sb.WriteString("\nPriority actions:\n")
				for _, action := range snapshot.PriorityActions {
					fmt.Fprintf(&sb, "- %s\n", action)
				}
			}
			return sb.String(), nil
		},
	}
}

func eligibilityReportTool(db *gorm.DB, client *models.ClientModel) Tool {
	return Tool{
		Name:        "get_eligibility_report",
		Description: "Returns the most recent criterion-by-criterion eligibility evaluation.",
		Usage:       "{} (no arguments)",
		Run: func(ctx context.Context, _ map[string]interface{}) (string, error) {
			var report models.EligibilityReportModel
			err := db.WithContext(ctx).
				Where("client_id = ?", client.ID).
				Order("created_at desc").
				First(&report).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "No eligibility evaluation has been run for this case yet.", nil
			}
			if err != nil {
				return "", err
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Verdict: %s\nSummary: %s\n", report.Verdict, report.Summary)
			for _, crit := range report.Criteria {
				fmt.Fprintf(&sb, "\n%s (score %d/5): %s\n", crit.Label, crit.Score, crit.Analysis)
				for _, ev := range crit.Evidence {
					fmt.Fprintf(&sb, "- evidence: %s\n", ev)
				}
			}
			return sb.String(), nil
		},
	}
}

func existingDraftsTool(db *gorm.DB, client *models.ClientModel) Tool {
	return Tool{
		Name:        "get_existing_drafts",
		Description: "Returns the text of drafts already produced for this case.",
		Usage:       `{"kind": "petition_letter" (optional, filters to one document kind)}`,
		Run: func(ctx context.Context, input map[string]interface{}) (string, error) {
			q := db.WithContext(ctx).Where("client_id = ?", client.ID)
			if kind := stringInput(input, "kind"); kind != "" {
				q = q.Where("kind = ?", kind)
			}
			var drafts []models.DraftModel
			if err := q.Order("updated_at desc").Find(&drafts).Error; err != nil {
				return "", err
			}
			if len(drafts) == 0 {
				return "No drafts exist for this case yet.", nil
			}

			sort.Slice(drafts, func(i, j int) bool { return drafts[i].Kind < drafts[j].Kind })
			var sb strings.Builder
			for _, draft := range drafts {
				fmt.Fprintf(&sb, "=== %s (status %s) ===\n%s\n\n", draft.Kind, draft.Status, truncateText(draft.Mirror, 2500))
			}
			return sb.String(), nil
		},
	}
}

func recommenderTool(db *gorm.DB, client *models.ClientModel) Tool {
	return Tool{
		Name:        "get_recommender",
		Description: "Returns one recommender's profile, qualifications and talking points.",
		Usage:       `{"recommender_id": "..."}`,
		Run: func(ctx context.Context, input map[string]interface{}) (string, error) {
			id := stringInput(input, "recommender_id")
			if id == "" {
				return "", fmt.Errorf("get_recommender requires recommender_id")
			}
			var rec models.RecommenderModel
			err := db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Sprintf("No recommender with id %s exists.", id), nil
			}
			if err != nil {
				return "", err
			}
			if rec.ClientID != client.ID {
				return fmt.Sprintf("ACCESS ERROR: recommender %s belongs to a different case and cannot be read here.", id), nil
			}

			var sb strings.Builder
			fmt.Fprintf(&sb, "Name: %s\nTitle: %s\nOrganization: %s\nRelationship: %s\n", rec.Name, rec.Title, rec.Organization, rec.Relationship)
			if len(rec.Qualifications) > 0 {
				fmt.Fprintf(&sb, "Qualifications: %s\n", strings.Join(rec.Qualifications, "; "))
			}
			if len(rec.TalkingPoints) > 0 {
				sb.WriteString("Talking points:\n")
				for _, point := range rec.TalkingPoints {
					fmt.Fprintf(&sb, "- %s\n", point)
				}
			}
			return sb.String(), nil
		},
	}
}
