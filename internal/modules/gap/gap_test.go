package gap

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/casevine/core/internal/models"
	"github.com/casevine/core/internal/modules/agent"
	"github.com/casevine/core/internal/modules/vault"
	"github.com/casevine/core/internal/pkg/pagination"
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
		&models.GapAnalysisModel{},
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

func scripted(replies ...string) agent.GenerateFunc {
	i := 0
	return func(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
		reply := replies[i]
		i++
		return reply, nil
	}
}

func seedGapClient(t *testing.T, db *gorm.DB) *models.ClientModel {
	t.Helper()
	client := &models.ClientModel{
		Name:            "Alice",
		VisaCategory:    "EB-1A",
		FieldOfEndeavor: "machine learning",
	}
	if err := db.Create(client).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return client
}

func TestStart_PersistsSnapshotAndFiltersUnknownSlugs(t *testing.T) {
	db := openTestDB(t)
	client := seedGapClient(t, db)

	extraction := `{"overallStrength":"moderate","summary":"Solid record, thin on media coverage.",
		"criteria":[
			{"slug":"published_material","gaps":["no major outlet features"],"recommendations":["pitch a profile piece"],"existingEvidence":[]},
			{"slug":"bogus_slug","gaps":["x"],"recommendations":["y"],"existingEvidence":[]}],
		"priorityActions":["request two more recommendation letters"]}`
	gen := scripted(`{"action":"final","answer":"audit brief"}`, extraction)

	svc := NewService(db, noopSearcher{}, agent.NewOrchestratorWithGenerate(gen, nil), nil, nil)
	if _, err := svc.Start(context.Background(), client.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, func() bool {
		snapshot, _ := svc.GetLatest(context.Background(), client.ID)
		return snapshot != nil
	})

	snapshot, err := svc.GetLatest(context.Background(), client.ID)
	if err != nil || snapshot == nil {
		t.Fatalf("get latest: %v, %v", snapshot, err)
	}
	if snapshot.OverallStrength != "moderate" {
		t.Fatalf("unexpected strength %q", snapshot.OverallStrength)
	}
	if len(snapshot.Criteria) != 1 || snapshot.Criteria[0].Slug != "published_material" {
		t.Fatalf("unknown slugs must be dropped, got %+v", snapshot.Criteria)
	}
	if len(snapshot.PriorityActions) != 1 {
		t.Fatalf("priority actions lost: %+v", snapshot.PriorityActions)
	}
}

func TestStart_SnapshotsAreAppendOnly(t *testing.T) {
	db := openTestDB(t)
	client := seedGapClient(t, db)

	makeGen := func(summary string) agent.GenerateFunc {
		return scripted(
			`{"action":"final","answer":"brief"}`,
			fmt.Sprintf(`{"overallStrength":"weak","summary":%q,"criteria":[],"priorityActions":[]}`, summary),
		)
	}

	svcOne := NewService(db, noopSearcher{}, agent.NewOrchestratorWithGenerate(makeGen("first pass"), nil), nil, nil)
	if _, err := svcOne.Start(context.Background(), client.ID); err != nil {
		t.Fatalf("first start: %v", err)
	}
	waitFor(t, func() bool {
		snapshot, _ := svcOne.GetLatest(context.Background(), client.ID)
		return snapshot != nil
	})

	svcTwo := NewService(db, noopSearcher{}, agent.NewOrchestratorWithGenerate(makeGen("second pass"), nil), nil, nil)
	if _, err := svcTwo.Start(context.Background(), client.ID); err != nil {
		t.Fatalf("second start: %v", err)
	}
	waitFor(t, func() bool {
		snapshot, _ := svcTwo.GetLatest(context.Background(), client.ID)
		return snapshot != nil && snapshot.Summary == "second pass"
	})

	history, pag, err := svcTwo.History(context.Background(), client.ID, pagination.Query{Page: 1, Size: 10})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if pag.Total != 2 || len(history) != 2 {
		t.Fatalf("expected two snapshots, got %d (%d listed)", pag.Total, len(history))
	}
	if history[0].Summary != "second pass" {
		t.Fatalf("history must be newest-first, got %q", history[0].Summary)
	}
}

func TestGetLatest_NoSnapshot(t *testing.T) {
	db := openTestDB(t)
	client := seedGapClient(t, db)

	svc := NewService(db, noopSearcher{}, agent.NewOrchestratorWithGenerate(nil, nil), nil, nil)
	snapshot, err := svc.GetLatest(context.Background(), client.ID)
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if snapshot != nil {
		t.Fatalf("expected nil snapshot, got %+v", snapshot)
	}
}
