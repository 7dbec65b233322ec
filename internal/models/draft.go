package models

import "time"

// DraftKind enumerates the six generated document types.
type DraftKind string

const (
	DraftPetitionLetter       DraftKind = "petition_letter"
	DraftPersonalStatement    DraftKind = "personal_statement"
	DraftRecommendationLetter DraftKind = "recommendation_letter"
	DraftExhibitList          DraftKind = "exhibit_list"
	DraftTableOfContents      DraftKind = "table_of_contents"
	DraftRFEResponse          DraftKind = "rfe_response"
)

// AllDraftKinds lists every document type in display order.
var AllDraftKinds = []DraftKind{
	DraftPetitionLetter,
	DraftPersonalStatement,
	DraftRecommendationLetter,
	DraftExhibitList,
	DraftTableOfContents,
	DraftRFEResponse,
}

// DraftStatus is the lifecycle state of a draft.
type DraftStatus string

const (
	DraftNotStarted DraftStatus = "not_started"
	DraftGenerating DraftStatus = "generating"
	DraftDrafted    DraftStatus = "draft"
	DraftInReview   DraftStatus = "in_review"
	DraftFinal      DraftStatus = "final"
)

// DraftModel is one generated document instance for a client.
// Created lazily on first reference to a (kind, client, recommender) triple.
type DraftModel struct {
	Base
	ClientID      string         `json:"clientId"      gorm:"index;not null"`
	Kind          DraftKind      `json:"kind"          gorm:"index;not null"`
	RecommenderID *string        `json:"recommenderId" gorm:"index"` // recommendation letters only
	Status        DraftStatus    `json:"status"        gorm:"default:not_started"`
	Tree          *DocNode       `json:"tree"          gorm:"type:longtext;serializer:json"`
	Mirror        string         `json:"mirror"        gorm:"type:longtext"`
	Sections      []DraftSection `json:"sections"      gorm:"type:longtext;serializer:json"`
}

func (DraftModel) TableName() string { return "drafts" }

// DraftVersionModel is an immutable snapshot of a draft's content.
// Created only by explicit user action; append-only.
type DraftVersionModel struct {
	Base
	DraftID  string         `json:"-"        gorm:"index;not null"`
	Note     string         `json:"note"`
	Tree     *DocNode       `json:"tree"     gorm:"type:longtext;serializer:json"`
	Mirror   string         `json:"mirror"   gorm:"type:longtext"`
	Sections []DraftSection `json:"sections" gorm:"type:longtext;serializer:json"`
	SavedAt  time.Time      `json:"savedAt"`
}

func (DraftVersionModel) TableName() string { return "draft_versions" }
