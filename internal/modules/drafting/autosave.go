package drafting

import (
	"sync"
	"time"

	"github.com/casevine/core/internal/models"
	"github.com/casevine/core/internal/modules/document"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultAutosaveDelay = 2 * time.Second

type pendingSave struct {
	tree     *models.DocNode
	mirror   string
	sections []models.DraftSection
}

// Autosaver coalesces rapid editor updates into debounced writes. Each
// draft has at most one pending payload (newer queues replace older)
// and at most one write in flight; Flush drains everything on shutdown.
type Autosaver struct {
	delay  time.Duration
	save   func(draftID string, p *pendingSave) error
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingSave
	timers  map[string]*time.Timer
	writing map[string]bool
	wg      sync.WaitGroup
}

func NewAutosaver(db *gorm.DB, delay time.Duration, logger *zap.Logger) *Autosaver {
	a := newAutosaver(delay, logger)
	a.save = func(draftID string, p *pendingSave) error {
		update := models.DraftModel{
			Tree:     p.tree,
			Mirror:   p.mirror,
			Sections: p.sections,
		}
		return db.Model(&models.DraftModel{}).Where("id = ?", draftID).
			Select("tree", "mirror", "sections").
			Updates(&update).Error
	}
	return a
}

func newAutosaver(delay time.Duration, logger *zap.Logger) *Autosaver {
	if delay <= 0 {
		delay = defaultAutosaveDelay
	}
	return &Autosaver{
		delay:   delay,
		logger:  logger,
		pending: make(map[string]*pendingSave),
		timers:  make(map[string]*time.Timer),
		writing: make(map[string]bool),
	}
}

// Queue records the latest editor state for a draft and (re)arms its
// debounce timer. Intermediate states queued before the timer fires are
// discarded.
func (a *Autosaver) Queue(draftID string, tree *models.DocNode) {
	payload := &pendingSave{
		tree:     tree,
		mirror:   document.Mirror(tree),
		sections: document.ExtractSections(tree),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[draftID] = payload
	if timer, ok := a.timers[draftID]; ok {
		timer.Stop()
	}
	a.timers[draftID] = time.AfterFunc(a.delay, func() {
		a.wg.Add(1)
		defer a.wg.Done()
		a.drain(draftID)
	})
}

// drain writes the pending payload for one draft, looping in case new
// payloads arrive while a write is running. Only one drain per draft
// runs at a time.
func (a *Autosaver) drain(draftID string) {
	a.mu.Lock()
	if a.writing[draftID] {
		a.mu.Unlock()
		return
	}
	a.writing[draftID] = true
	a.mu.Unlock()

	for {
		a.mu.Lock()
		payload := a.pending[draftID]
		delete(a.pending, draftID)
		if payload == nil {
			a.writing[draftID] = false
			a.mu.Unlock()
			return
		}
		a.mu.Unlock()

		if err := a.save(draftID, payload); err != nil && a.logger != nil {
			a.logger.Error("autosave write failed", zap.String("draftId", draftID), zap.Error(err))
		}
	}
}

// Flush writes all pending payloads immediately and waits for in-flight
// writes. Called on shutdown so queued edits are never dropped.
func (a *Autosaver) Flush() {
	a.mu.Lock()
	ids := make([]string, 0, len(a.pending))
	for id := range a.pending {
		ids = append(ids, id)
	}
	for id, timer := range a.timers {
		timer.Stop()
		delete(a.timers, id)
	}
	a.mu.Unlock()

	for _, id := range ids {
		a.drain(id)
	}
	a.wg.Wait()
}
