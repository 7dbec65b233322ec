package drafting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/casevine/core/internal/models"
	"github.com/casevine/core/internal/modules/agent"
	"github.com/casevine/core/internal/modules/document"
	"github.com/casevine/core/internal/modules/vault"
	"github.com/casevine/core/internal/pkg/taskqueue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrGenerationInProgress is returned when a generation is requested
	// for a draft that is already generating.
	ErrGenerationInProgress = errors.New("a generation is already running for this draft")
	// ErrDraftLocked rejects edits while a generation holds the draft.
	ErrDraftLocked = errors.New("draft is locked by a running generation")
	// ErrSectionNotFound is returned when a section id matches neither a
	// tree anchor nor a mirror heading.
	ErrSectionNotFound = errors.New("section not found in draft")
	// ErrUnknownKind rejects document kinds outside the fixed set.
	ErrUnknownKind = errors.New("unknown document kind")
	// ErrRecommenderRequired is returned when a recommendation letter is
	// requested without a recommender.
	ErrRecommenderRequired = errors.New("recommendation letters require a recommender")
)

const draftTaskType = "draft_generation"

// Notifier pushes an out-of-band alert when a long generation run
// settles. Satisfied by the bark service.
type Notifier interface {
	Push(title, body string) error
}

// Service owns the draft lifecycle: lazy creation, background
// generation, section regeneration, versioning and manual edits.
type Service struct {
	db       *gorm.DB
	searcher vault.Searcher
	orch     *agent.Orchestrator
	taskSvc  *taskqueue.Service
	notifier Notifier
	logger   *zap.Logger
}

func NewService(db *gorm.DB, searcher vault.Searcher, orch *agent.Orchestrator, taskSvc *taskqueue.Service, logger *zap.Logger) *Service {
	return &Service{db: db, searcher: searcher, orch: orch, taskSvc: taskSvc, logger: logger}
}

// SetNotifier enables completion/failure pushes. Optional.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

func (s *Service) push(title, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Push(title, body); err != nil && s.logger != nil {
		s.logger.Warn("push notification failed", zap.Error(err))
	}
}

func validKind(kind models.DraftKind) bool {
	for _, k := range models.AllDraftKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// GetOrCreate returns the draft for a (client, kind, recommender)
// triple, creating the row on first reference.
func (s *Service) GetOrCreate(ctx context.Context, clientID string, kind models.DraftKind, recommenderID *string) (*models.DraftModel, error) {
	if !validKind(kind) {
		return nil, ErrUnknownKind
	}
	if kind == models.DraftRecommendationLetter && (recommenderID == nil || *recommenderID == "") {
		return nil, ErrRecommenderRequired
	}
	if kind != models.DraftRecommendationLetter {
		recommenderID = nil
	}

	tx := s.db.WithContext(ctx).Where("client_id = ? AND kind = ?", clientID, kind)
	if recommenderID != nil {
		tx = tx.Where("recommender_id = ?", *recommenderID)
	} else {
		tx = tx.Where("recommender_id IS NULL")
	}

	var draft models.DraftModel
	err := tx.First(&draft).Error
	if err == nil {
		return &draft, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var client models.ClientModel
	if err := s.db.WithContext(ctx).Where("id = ?", clientID).First(&client).Error; err != nil {
		return nil, err
	}
	if recommenderID != nil {
		var rec models.RecommenderModel
		if err := s.db.WithContext(ctx).
			Where("id = ? AND client_id = ?", *recommenderID, clientID).
			First(&rec).Error; err != nil {
			return nil, err
		}
	}

	draft = models.DraftModel{
		ClientID:      clientID,
		Kind:          kind,
		RecommenderID: recommenderID,
		Status:        models.DraftNotStarted,
	}
	if err := s.db.WithContext(ctx).Create(&draft).Error; err != nil {
		return nil, err
	}
	return &draft, nil
}

func (s *Service) List(ctx context.Context, clientID string) ([]models.DraftModel, error) {
	var drafts []models.DraftModel
	err := s.db.WithContext(ctx).Where("client_id = ?", clientID).
		Order("kind asc, created_at asc").Find(&drafts).Error
	return drafts, err
}

func (s *Service) Get(ctx context.Context, clientID, draftID string) (*models.DraftModel, error) {
	var draft models.DraftModel
	err := s.db.WithContext(ctx).
		Where("id = ? AND client_id = ?", draftID, clientID).
		First(&draft).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

// claim moves a draft into generating if no generation holds it. The
// conditional update is the mutual-exclusion guard.
func (s *Service) claim(ctx context.Context, draftID string) (models.DraftStatus, error) {
	var draft models.DraftModel
	if err := s.db.WithContext(ctx).Where("id = ?", draftID).First(&draft).Error; err != nil {
		return "", err
	}
	prev := draft.Status

	result := s.db.WithContext(ctx).Model(&models.DraftModel{}).
		Where("id = ? AND status <> ?", draftID, models.DraftGenerating).
		Update("status", models.DraftGenerating)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", ErrGenerationInProgress
	}
	return prev, nil
}

// settledStatus decides the post-generation status: a first generation
// lands on draft, but review states survive regeneration.
func settledStatus(prev models.DraftStatus) models.DraftStatus {
	switch prev {
	case models.DraftInReview, models.DraftFinal:
		return prev
	default:
		return models.DraftDrafted
	}
}

// StartGeneration claims the draft and regenerates the whole document
// in the background.
func (s *Service) StartGeneration(ctx context.Context, clientID string, kind models.DraftKind, recommenderID *string) (*models.DraftModel, *taskqueue.Task, error) {
	draft, err := s.GetOrCreate(ctx, clientID, kind, recommenderID)
	if err != nil {
		return nil, nil, err
	}
	prev, err := s.claim(ctx, draft.ID)
	if err != nil {
		return nil, nil, err
	}

	task := s.enqueue(ctx, draft, "full")
	go s.executeFull(draft, prev, task)
	draft.Status = models.DraftGenerating
	return draft, task, nil
}

// StartSectionRegeneration claims the draft and rewrites one section in
// the background, leaving every other section untouched.
func (s *Service) StartSectionRegeneration(ctx context.Context, clientID, draftID, sectionID, instructions string) (*models.DraftModel, *taskqueue.Task, error) {
	draft, err := s.Get(ctx, clientID, draftID)
	if err != nil {
		return nil, nil, err
	}
	if draft == nil {
		return nil, nil, gorm.ErrRecordNotFound
	}
	if heading := s.sectionHeading(draft, sectionID); heading == "" {
		return nil, nil, ErrSectionNotFound
	}
	prev, err := s.claim(ctx, draft.ID)
	if err != nil {
		return nil, nil, err
	}

	task := s.enqueue(ctx, draft, "section:"+sectionID)
	go s.executeSection(draft, prev, sectionID, instructions, task)
	draft.Status = models.DraftGenerating
	return draft, task, nil
}

func (s *Service) sectionHeading(draft *models.DraftModel, sectionID string) string {
	for _, sec := range draft.Sections {
		if sec.ID == sectionID {
			return sec.Heading
		}
	}
	return ""
}

func (s *Service) enqueue(ctx context.Context, draft *models.DraftModel, scope string) *taskqueue.Task {
	if s.taskSvc == nil {
		return nil
	}
	task, err := s.taskSvc.Enqueue(ctx, draftTaskType, map[string]string{
		"draftId":  draft.ID,
		"clientId": draft.ClientID,
		"kind":     string(draft.Kind),
		"scope":    scope,
	}, draft.ID, draft.ClientID)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to enqueue draft task", zap.Error(err))
		}
		return nil
	}
	return task
}

func (s *Service) updateTask(ctx context.Context, task *taskqueue.Task, status taskqueue.TaskStatus, result interface{}, errMsg string) {
	if s.taskSvc == nil || task == nil {
		return
	}
	if err := s.taskSvc.UpdateStatus(ctx, task.ID, status, result, errMsg); err != nil && s.logger != nil {
		s.logger.Warn("failed to update draft task", zap.Error(err))
	}
}

func (s *Service) executeFull(draft *models.DraftModel, prev models.DraftStatus, task *taskqueue.Task) {
	ctx := context.Background()
	s.updateTask(ctx, task, taskqueue.TaskRunning, nil, "")

	err := s.generateFull(ctx, draft, prev)
	if err != nil {
		s.fail(ctx, draft, prev, task, err)
		return
	}
	s.updateTask(ctx, task, taskqueue.TaskCompleted, map[string]string{"draftId": draft.ID}, "")
	s.push("draft ready", fmt.Sprintf("%s finished generating for client %s", draft.Kind, draft.ClientID))
}

func (s *Service) executeSection(draft *models.DraftModel, prev models.DraftStatus, sectionID, instructions string, task *taskqueue.Task) {
	ctx := context.Background()
	s.updateTask(ctx, task, taskqueue.TaskRunning, nil, "")

	err := s.regenerateSection(ctx, draft, prev, sectionID, instructions)
	if err != nil {
		s.fail(ctx, draft, prev, task, err)
		return
	}
	s.updateTask(ctx, task, taskqueue.TaskCompleted, map[string]string{"draftId": draft.ID}, "")
	s.push("section ready", fmt.Sprintf("section %q of %s regenerated for client %s", sectionID, draft.Kind, draft.ClientID))
}

func (s *Service) fail(ctx context.Context, draft *models.DraftModel, prev models.DraftStatus, task *taskqueue.Task, err error) {
	if s.logger != nil {
		s.logger.Error("draft generation failed",
			zap.String("draftId", draft.ID),
			zap.String("kind", string(draft.Kind)),
			zap.Error(err))
	}
	// Failed runs leave the previous content and status in place.
	s.db.Model(&models.DraftModel{}).Where("id = ?", draft.ID).Update("status", prev)
	s.updateTask(ctx, task, taskqueue.TaskFailed, nil, err.Error())
	s.push("draft generation failed", fmt.Sprintf("%s for client %s: %v", draft.Kind, draft.ClientID, err))
}

func (s *Service) loadGenerationContext(ctx context.Context, draft *models.DraftModel) (*models.ClientModel, *models.RecommenderModel, error) {
	var client models.ClientModel
	if err := s.db.WithContext(ctx).Where("id = ?", draft.ClientID).First(&client).Error; err != nil {
		return nil, nil, err
	}
	var rec *models.RecommenderModel
	if draft.RecommenderID != nil {
		var r models.RecommenderModel
		if err := s.db.WithContext(ctx).
			Where("id = ? AND client_id = ?", *draft.RecommenderID, draft.ClientID).
			First(&r).Error; err != nil {
			return nil, nil, err
		}
		rec = &r
	}
	return &client, rec, nil
}

func (s *Service) generateFull(ctx context.Context, draft *models.DraftModel, prev models.DraftStatus) error {
	client, rec, err := s.loadGenerationContext(ctx, draft)
	if err != nil {
		return err
	}

	systemPrompt, task := agent.BuildDraftPrompts(draft.Kind, client, rec)
	tools := agent.CaseTools(s.db, s.searcher, client)
	research, err := s.orch.Research(ctx, systemPrompt, task, tools, agent.StepBudget(draft.Kind))
	if err != nil {
		return err
	}

	sections, err := s.orch.ExtractSections(ctx, agent.BuildExtractionInstructions(draft.Kind, client), research.Brief)
	if err != nil {
		return err
	}

	tree := document.FromSections(sections)
	return s.storeContent(ctx, draft.ID, tree, settledStatus(prev))
}

func (s *Service) regenerateSection(ctx context.Context, draft *models.DraftModel, prev models.DraftStatus, sectionID, instructions string) error {
	client, _, err := s.loadGenerationContext(ctx, draft)
	if err != nil {
		return err
	}
	heading := s.sectionHeading(draft, sectionID)

	systemPrompt, task := agent.BuildSectionPrompts(draft.Kind, client, heading, draft.Mirror, instructions)
	tools := agent.CaseTools(s.db, s.searcher, client)
	research, err := s.orch.Research(ctx, systemPrompt, task, tools, agent.StepBudget(draft.Kind))
	if err != nil {
		return err
	}

	sections, err := s.orch.ExtractSections(ctx, agent.BuildSectionExtractionInstructions(draft.Kind, heading), research.Brief)
	if err != nil {
		return err
	}
	content := sections[0].Content

	// Tree anchoring (id, then heading slug) keeps the untouched
	// sections intact; the mirror rewrite only covers drafts that never
	// had a tree and loses inline marks on rebuild.
	if draft.Tree != nil && document.ReplaceSection(draft.Tree, sectionID, content) {
		return s.storeContent(ctx, draft.ID, draft.Tree, settledStatus(prev))
	}
	newMirror, ok := document.ReplaceMirrorSection(draft.Mirror, heading, content)
	if !ok {
		return ErrSectionNotFound
	}
	return s.storeContent(ctx, draft.ID, document.FromSections(document.SplitMirror(newMirror)), settledStatus(prev))
}

// storeContent persists a new tree together with its derived mirror and
// section cache in one update.
func (s *Service) storeContent(ctx context.Context, draftID string, tree *models.DocNode, status models.DraftStatus) error {
	// Struct-based update so the serializer:json columns encode; map
	// updates would hand the raw structs to the SQL driver.
	update := models.DraftModel{
		Tree:     tree,
		Mirror:   document.Mirror(tree),
		Sections: document.ExtractSections(tree),
		Status:   status,
	}
	return s.db.WithContext(ctx).Model(&models.DraftModel{}).
		Where("id = ?", draftID).
		Select("tree", "mirror", "sections", "status").
		Updates(&update).Error
}

// ManualEdit replaces the draft content with an attorney-edited tree.
// Rejected while a generation holds the draft.
func (s *Service) ManualEdit(ctx context.Context, clientID, draftID string, tree *models.DocNode) (*models.DraftModel, error) {
	draft, err := s.Get(ctx, clientID, draftID)
	if err != nil || draft == nil {
		return draft, err
	}
	if draft.Status == models.DraftGenerating {
		return nil, ErrDraftLocked
	}
	status := draft.Status
	if status == models.DraftNotStarted {
		status = models.DraftDrafted
	}
	if err := s.storeContent(ctx, draft.ID, tree, status); err != nil {
		return nil, err
	}
	return s.Get(ctx, clientID, draftID)
}

// UpdateStatus sets the review state. Generating is reserved for the
// generation pipeline and cannot be set directly.
func (s *Service) UpdateStatus(ctx context.Context, clientID, draftID string, status models.DraftStatus) (*models.DraftModel, error) {
	switch status {
	case models.DraftNotStarted, models.DraftDrafted, models.DraftInReview, models.DraftFinal:
	default:
		return nil, fmt.Errorf("status %q cannot be set directly", status)
	}
	draft, err := s.Get(ctx, clientID, draftID)
	if err != nil || draft == nil {
		return draft, err
	}
	if draft.Status == models.DraftGenerating {
		return nil, ErrDraftLocked
	}
	if err := s.db.WithContext(ctx).Model(draft).Update("status", status).Error; err != nil {
		return nil, err
	}
	draft.Status = status
	return draft, nil
}

// SaveVersion snapshots the current content. Versions are append-only
// and only created by explicit user action.
func (s *Service) SaveVersion(ctx context.Context, clientID, draftID, note string) (*models.DraftVersionModel, error) {
	draft, err := s.Get(ctx, clientID, draftID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, gorm.ErrRecordNotFound
	}
	version := &models.DraftVersionModel{
		DraftID:  draft.ID,
		Note:     note,
		Tree:     draft.Tree,
		Mirror:   draft.Mirror,
		Sections: draft.Sections,
		SavedAt:  time.Now(),
	}
	return version, s.db.WithContext(ctx).Create(version).Error
}

func (s *Service) ListVersions(ctx context.Context, clientID, draftID string) ([]models.DraftVersionModel, error) {
	draft, err := s.Get(ctx, clientID, draftID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, gorm.ErrRecordNotFound
	}
	var versions []models.DraftVersionModel
	err = s.db.WithContext(ctx).Where("draft_id = ?", draft.ID).
		Order("saved_at desc").Find(&versions).Error
	return versions, err
}

// RestoreVersion copies a snapshot's content back into the draft. The
// snapshot itself is never modified.
func (s *Service) RestoreVersion(ctx context.Context, clientID, draftID, versionID string) (*models.DraftModel, error) {
	draft, err := s.Get(ctx, clientID, draftID)
	if err != nil || draft == nil {
		return draft, err
	}
	if draft.Status == models.DraftGenerating {
		return nil, ErrDraftLocked
	}

	var version models.DraftVersionModel
	err = s.db.WithContext(ctx).
		Where("id = ? AND draft_id = ?", versionID, draft.ID).
		First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	restored := models.DraftModel{
		Tree:     version.Tree,
		Mirror:   version.Mirror,
		Sections: version.Sections,
	}
	if err := s.db.WithContext(ctx).Model(draft).
		Select("tree", "mirror", "sections").
		Updates(&restored).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, clientID, draftID)
}

// RenderHTML renders the draft's canonical tree for preview.
func (s *Service) RenderHTML(ctx context.Context, clientID, draftID string) (string, error) {
	draft, err := s.Get(ctx, clientID, draftID)
	if err != nil {
		return "", err
	}
	if draft == nil {
		return "", gorm.ErrRecordNotFound
	}
	return document.RenderHTML(draft.Tree), nil
}
