package eligibility

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
		&models.EligibilityReportModel{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type noopSearcher struct{}

func (noopSearcher) Search(ctx context.Context, corpusRef, query string, documentIDs []string, topK int) ([]vault.RankedChunk, error) {
	return []vault.RankedChunk{}, nil
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

func seedEvalClient(t *testing.T, db *gorm.DB) *models.ClientModel {
	t.Helper()
	client := &models.ClientModel{
		Name:             "Alice",
		VisaCategory:     "EB-1A",
		FieldOfEndeavor:  "machine learning",
		EvaluationStatus: models.EvaluationNone,
	}
	if err := db.Create(client).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return client
}

func TestStartEvaluation_PersistsReportWithComputedVerdict(t *testing.T) {
	db := openTestDB(t)
	client := seedEvalClient(t, db)

	// Model reports four criteria at 4+, one out of range, and skips the
	// rest. The verdict must come from the scorer, not the model.
	extraction := `{"summary":"Strong researcher profile.","criteria":[
		{"slug":"awards","score":5,"analysis":"NeurIPS best paper.","evidence":["award letter"]},
		{"slug":"original_contribution","score":4,"analysis":"Widely adopted method.","evidence":[]},
		{"slug":"scholarly_articles","score":4,"analysis":"30 publications.","evidence":[]},
		{"slug":"judging","score":9,"analysis":"Reviewer for top venues.","evidence":[]},
		{"slug":"not_a_real_criterion","score":5,"analysis":"ignore me","evidence":[]}]}`
	replies := []string{`{"action":"final","answer":"research brief"}`, extraction}
	i := 0
	gen := func(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
		reply := replies[i]
		i++
		return reply, nil
	}

	svc := NewService(db, noopSearcher{}, agent.NewOrchestratorWithGenerate(gen, nil), nil, nil)
	if _, err := svc.StartEvaluation(context.Background(), client.ID); err != nil {
		t.Fatalf("start evaluation: %v", err)
	}

	waitFor(t, func() bool {
		var c models.ClientModel
		db.First(&c, "id = ?", client.ID)
		return c.EvaluationStatus == models.EvaluationDone
	})

	report, err := svc.GetLatest(context.Background(), client.ID)
	if err != nil || report == nil {
		t.Fatalf("get latest: %v, %v", report, err)
	}
	if report.Verdict != models.VerdictStrong {
		t.Fatalf("expected strong verdict, got %q", report.Verdict)
	}
	if len(report.Criteria) != models.CriterionCount {
		t.Fatalf("expected %d criteria, got %d", models.CriterionCount, len(report.Criteria))
	}
	bySlug := map[string]models.CriterionResult{}
	for _, crit := range report.Criteria {
		bySlug[crit.Slug] = crit
	}
	if bySlug["judging"].Score != 5 {
		t.Fatalf("out-of-range score not clamped: %d", bySlug["judging"].Score)
	}
	if bySlug["high_salary"].Score != 1 {
		t.Fatalf("missing criterion not backfilled: %+v", bySlug["high_salary"])
	}
	if _, leaked := bySlug["not_a_real_criterion"]; leaked {
		t.Fatalf("unknown slug kept in report")
	}
}

func TestStartEvaluation_TwoStrongCriteriaIsWeak(t *testing.T) {
	db := openTestDB(t)
	client := seedEvalClient(t, db)
	for _, doc := range []models.EvidenceDocumentModel{
		{ClientID: client.ID, Name: "NeurIPS award letter", DocType: "award_letter"},
		{ClientID: client.ID, Name: "citation report", DocType: "citation_report"},
	} {
		if err := db.Create(&doc).Error; err != nil {
			t.Fatalf("seed evidence: %v", err)
		}
	}

	// Only two criteria reach 3 or better; everything else stays at 1-2.
	extraction := `{"summary":"Narrow but real strengths.","criteria":[
		{"slug":"awards","score":4,"analysis":"NeurIPS award letter on file.","evidence":["NeurIPS award letter"]},
		{"slug":"scholarly_articles","score":5,"analysis":"Citation report shows sustained impact.","evidence":["citation report"]},
		{"slug":"membership","score":1,"analysis":"","evidence":[]},
		{"slug":"published_material","score":2,"analysis":"","evidence":[]},
		{"slug":"judging","score":2,"analysis":"","evidence":[]},
		{"slug":"original_contribution","score":2,"analysis":"","evidence":[]},
		{"slug":"exhibitions","score":1,"analysis":"","evidence":[]},
		{"slug":"leading_role","score":1,"analysis":"","evidence":[]},
		{"slug":"high_salary","score":2,"analysis":"","evidence":[]},
		{"slug":"commercial_success","score":1,"analysis":"","evidence":[]}]}`
	replies := []string{`{"action":"final","answer":"brief"}`, extraction}
	i := 0
	gen := func(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
		reply := replies[i]
		i++
		return reply, nil
	}

	svc := NewService(db, noopSearcher{}, agent.NewOrchestratorWithGenerate(gen, nil), nil, nil)
	if _, err := svc.StartEvaluation(context.Background(), client.ID); err != nil {
		t.Fatalf("start evaluation: %v", err)
	}
	waitFor(t, func() bool {
		var c models.ClientModel
		db.First(&c, "id = ?", client.ID)
		return c.EvaluationStatus == models.EvaluationDone
	})

	report, err := svc.GetLatest(context.Background(), client.ID)
	if err != nil || report == nil {
		t.Fatalf("get latest: %v, %v", report, err)
	}
	if report.Verdict != models.VerdictWeak {
		t.Fatalf("expected weak verdict, got %q", report.Verdict)
	}
	bySlug := map[string]int{}
	for _, crit := range report.Criteria {
		bySlug[crit.Slug] = crit.Score
	}
	if bySlug["awards"] != 4 || bySlug["scholarly_articles"] != 5 {
		t.Fatalf("scores not preserved: %+v", bySlug)
	}
}

func TestStartEvaluation_MutualExclusion(t *testing.T) {
	db := openTestDB(t)
	client := seedEvalClient(t, db)

	release := make(chan struct{})
	gen := func(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
		<-release
		return "", errors.New("aborted")
	}

	svc := NewService(db, noopSearcher{}, agent.NewOrchestratorWithGenerate(gen, nil), nil, nil)
	if _, err := svc.StartEvaluation(context.Background(), client.ID); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if _, err := svc.StartEvaluation(context.Background(), client.ID); !errors.Is(err, ErrEvaluationInProgress) {
		t.Fatalf("expected ErrEvaluationInProgress, got %v", err)
	}
	close(release)

	waitFor(t, func() bool {
		var c models.ClientModel
		db.First(&c, "id = ?", client.ID)
		return c.EvaluationStatus == models.EvaluationNone
	})
}

func TestStartEvaluation_FailureRevertsStatus(t *testing.T) {
	db := openTestDB(t)
	client := seedEvalClient(t, db)
	db.Model(client).Update("evaluation_status", models.EvaluationDone)

	gen := func(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
		return "", errors.New("provider down")
	}
	svc := NewService(db, noopSearcher{}, agent.NewOrchestratorWithGenerate(gen, nil), nil, nil)
	if _, err := svc.StartEvaluation(context.Background(), client.ID); err != nil {
		t.Fatalf("start evaluation: %v", err)
	}

	// A failed run restores the pre-run status rather than resetting it.
	waitFor(t, func() bool {
		var c models.ClientModel
		db.First(&c, "id = ?", client.ID)
		return c.EvaluationStatus == models.EvaluationDone
	})
	report, err := svc.GetLatest(context.Background(), client.ID)
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if report != nil {
		t.Fatalf("failed run must not persist a report")
	}
}

func TestStartEvaluation_UnknownClient(t *testing.T) {
	db := openTestDB(t)
	svc := NewService(db, noopSearcher{}, agent.NewOrchestratorWithGenerate(nil, nil), nil, nil)
	if _, err := svc.StartEvaluation(context.Background(), "missing"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected record not found, got %v", err)
	}
}

func TestStartEvaluation_ExtractionFailureIsFatal(t *testing.T) {
	db := openTestDB(t)
	client := seedEvalClient(t, db)

	replies := []string{`{"action":"final","answer":"brief"}`, "sorry, no JSON today"}
	i := 0
	gen := func(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
		reply := replies[i]
		i++
		return reply, nil
	}
	svc := NewService(db, noopSearcher{}, agent.NewOrchestratorWithGenerate(gen, nil), nil, nil)
	if _, err := svc.StartEvaluation(context.Background(), client.ID); err != nil {
		t.Fatalf("start evaluation: %v", err)
	}

	waitFor(t, func() bool {
		var c models.ClientModel
		db.First(&c, "id = ?", client.ID)
		return c.EvaluationStatus == models.EvaluationNone
	})
	report, _ := svc.GetLatest(context.Background(), client.ID)
	if report != nil {
		t.Fatalf("extraction failure must not persist a report")
	}
}
