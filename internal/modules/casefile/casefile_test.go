package casefile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/casevine/core/internal/models"
	"github.com/casevine/core/internal/modules/agent"
	"github.com/casevine/core/internal/modules/vault"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.ClientModel{},
		&models.EvidenceDocumentModel{},
		&models.RecommenderModel{},
		&models.EligibilityReportModel{},
		&models.GapAnalysisModel{},
		&models.DraftModel{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type noopSearcher struct{}

func (noopSearcher) Search(ctx context.Context, corpusRef, query string, documentIDs []string, topK int) ([]vault.RankedChunk, error) {
	return []vault.RankedChunk{}, nil
}

func scriptedOrchestrator(t *testing.T, replies []string) *agent.Orchestrator {
	t.Helper()
	i := 0
	return agent.NewOrchestratorWithGenerate(func(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
		if i >= len(replies) {
			t.Fatalf("generate called %d times, only %d replies scripted", i+1, len(replies))
		}
		reply := replies[i]
		i++
		return reply, nil
	}, nil)
}

func TestClientCRUDAndEvidenceScoping(t *testing.T) {
	db := openTestDB(t)
	svc := NewClientService(db)
	ctx := context.Background()

	client, err := svc.Create(ctx, CreateClientDTO{Name: "Alice", VisaCategory: "EB-1A", FieldOfEndeavor: "machine learning"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if client.EvaluationStatus != models.EvaluationNone {
		t.Fatalf("new client must start unevaluated, got %q", client.EvaluationStatus)
	}

	newField := "robotics"
	updated, err := svc.Update(ctx, client.ID, UpdateClientDTO{FieldOfEndeavor: &newField})
	if err != nil {
		t.Fatalf("update client: %v", err)
	}
	got, _ := svc.GetByID(ctx, updated.ID)
	if got.FieldOfEndeavor != "robotics" {
		t.Fatalf("update not persisted: %q", got.FieldOfEndeavor)
	}

	doc, err := svc.AddEvidence(ctx, client.ID, CreateEvidenceDTO{Name: "award letter", DocType: "award_letter"})
	if err != nil {
		t.Fatalf("add evidence: %v", err)
	}
	if err := svc.RemoveEvidence(ctx, "other-client", doc.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("evidence removal must be scoped to the owning client, got %v", err)
	}
	if err := svc.RemoveEvidence(ctx, client.ID, doc.ID); err != nil {
		t.Fatalf("remove evidence: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func suggestedFor(t *testing.T, db *gorm.DB, clientID string) []models.RecommenderModel {
	t.Helper()
	var recs []models.RecommenderModel
	if err := db.Where("client_id = ? AND status = ?", clientID, models.RecommenderSuggested).
		Order("created_at asc").Find(&recs).Error; err != nil {
		t.Fatalf("list suggested: %v", err)
	}
	return recs
}

func TestStartSuggestion_CreatesSuggestedAndSkipsDuplicates(t *testing.T) {
	db := openTestDB(t)
	client := &models.ClientModel{Name: "Alice", VisaCategory: "EB-1A", FieldOfEndeavor: "machine learning"}
	if err := db.Create(client).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}
	existing := &models.RecommenderModel{ClientID: client.ID, Name: "Independent program chair", Status: models.RecommenderConfirmed}
	if err := db.Create(existing).Error; err != nil {
		t.Fatalf("seed recommender: %v", err)
	}

	extraction := `{"recommenders":[
		{"role":"independent program chair","title":"Chair","organization":"","relationship":"peer","reasoning":"dup","criteriaRelevance":[],"qualifications":[],"talkingPoints":[]},
		{"role":"Senior researcher who adopted the method","title":"","organization":"","relationship":"independent expert","reasoning":"can speak to original contribution","criteriaRelevance":["original_contribution"],"qualifications":["published follow-up work"],"talkingPoints":["adoption in production systems"]}]}`
	orch := scriptedOrchestrator(t, []string{`{"action":"final","answer":"brief"}`, extraction})

	svc := NewRecommenderService(db, noopSearcher{}, orch, nil, nil)
	if _, err := svc.StartSuggestion(context.Background(), client.ID); err != nil {
		t.Fatalf("start suggestion: %v", err)
	}

	// The agent run happens in the background; the call returns at once.
	waitFor(t, func() bool {
		return len(suggestedFor(t, db, client.ID)) > 0
	})

	created := suggestedFor(t, db, client.ID)
	if len(created) != 1 {
		t.Fatalf("expected 1 new suggestion (dup skipped), got %d", len(created))
	}
	rec := created[0]
	if rec.Name != "Senior researcher who adopted the method" || rec.SourceType != models.SourceAISuggested {
		t.Fatalf("unexpected suggestion %+v", rec)
	}
}

func TestStartSuggestion_CapsSuggestionCount(t *testing.T) {
	db := openTestDB(t)
	client := &models.ClientModel{Name: "Alice", VisaCategory: "EB-1A", FieldOfEndeavor: "machine learning"}
	if err := db.Create(client).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}

	var roles []string
	for i := 0; i < 12; i++ {
		roles = append(roles, fmt.Sprintf(
			`{"role":"Role %d","title":"","organization":"","relationship":"","reasoning":"","criteriaRelevance":[],"qualifications":[],"talkingPoints":[]}`, i))
	}
	extraction := fmt.Sprintf(`{"recommenders":[%s]}`, strings.Join(roles, ","))
	orch := scriptedOrchestrator(t, []string{`{"action":"final","answer":"brief"}`, extraction})

	svc := NewRecommenderService(db, noopSearcher{}, orch, nil, nil)
	if _, err := svc.StartSuggestion(context.Background(), client.ID); err != nil {
		t.Fatalf("start suggestion: %v", err)
	}

	waitFor(t, func() bool {
		return len(suggestedFor(t, db, client.ID)) >= maxSuggestions
	})
	if got := len(suggestedFor(t, db, client.ID)); got != maxSuggestions {
		t.Fatalf("expected at most %d suggestions, got %d", maxSuggestions, got)
	}
}

func TestAccept_OnlyFromSuggested(t *testing.T) {
	db := openTestDB(t)
	client := &models.ClientModel{Name: "Alice"}
	if err := db.Create(client).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}
	rec := &models.RecommenderModel{
		ClientID:   client.ID,
		Name:       "Dr. Okafor",
		Status:     models.RecommenderSuggested,
		SourceType: models.SourceAISuggested,
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("seed recommender: %v", err)
	}

	svc := NewRecommenderService(db, noopSearcher{}, nil, nil, nil)
	accepted, err := svc.Accept(context.Background(), client.ID, rec.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.Status != models.RecommenderIdentified {
		t.Fatalf("expected identified, got %q", accepted.Status)
	}
	if accepted.SourceType != models.SourceAISuggested {
		t.Fatalf("acceptance must keep the AI provenance, got %q", accepted.SourceType)
	}

	if _, err := svc.Accept(context.Background(), client.ID, rec.ID); !errors.Is(err, ErrNotSuggested) {
		t.Fatalf("expected ErrNotSuggested on second accept, got %v", err)
	}
}

func TestRecommenderReads_ScopedToClient(t *testing.T) {
	db := openTestDB(t)
	a := &models.ClientModel{Name: "Alice"}
	b := &models.ClientModel{Name: "Bob"}
	db.Create(a)
	db.Create(b)
	rec := &models.RecommenderModel{ClientID: b.ID, Name: "Prof. Chen"}
	db.Create(rec)

	svc := NewRecommenderService(db, noopSearcher{}, nil, nil, nil)
	got, err := svc.Get(context.Background(), a.ID, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("cross-case read must return nothing, got %+v", got)
	}
}
