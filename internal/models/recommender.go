package models

// RecommenderStatus is the outreach pipeline state. Monotonic in normal use,
// but any value may be set directly.
type RecommenderStatus string

const (
	RecommenderSuggested       RecommenderStatus = "suggested"
	RecommenderIdentified      RecommenderStatus = "identified"
	RecommenderContacted       RecommenderStatus = "contacted"
	RecommenderConfirmed       RecommenderStatus = "confirmed"
	RecommenderLetterDrafted   RecommenderStatus = "letter_drafted"
	RecommenderLetterFinalized RecommenderStatus = "letter_finalized"
)

// RecommenderSource records how a recommender entered the pipeline.
type RecommenderSource string

const (
	SourceManual          RecommenderSource = "manual"
	SourceAISuggested     RecommenderSource = "ai_suggested"
	SourceLinkedInExtract RecommenderSource = "linkedin_extract"
)

// RecommenderModel is a person (or AI-suggested role) who may write a
// recommendation letter for a client.
type RecommenderModel struct {
	Base
	ClientID          string            `json:"clientId"          gorm:"index;not null"`
	Name              string            `json:"name"`
	Title             string            `json:"title"`
	Organization      string            `json:"organization"`
	Relationship      string            `json:"relationship"`
	Status            RecommenderStatus `json:"status"            gorm:"default:suggested"`
	SourceType        RecommenderSource `json:"sourceType"        gorm:"default:manual"`
	CriteriaRelevance StringArray       `json:"criteriaRelevance" gorm:"type:longtext"`
	Reasoning         string            `json:"reasoning"         gorm:"type:longtext"`
	Qualifications    StringArray       `json:"qualifications"    gorm:"type:longtext"`
	TalkingPoints     StringArray       `json:"talkingPoints"     gorm:"type:longtext"`
}

func (RecommenderModel) TableName() string { return "recommenders" }
