package models

// CriterionGap is the per-criterion slice of a gap analysis snapshot.
type CriterionGap struct {
	Slug             string   `json:"slug"`
	Gaps             []string `json:"gaps"`
	Recommendations  []string `json:"recommendations"`
	ExistingEvidence []string `json:"existingEvidence"`
}

// GapAnalysisModel is a point-in-time gap analysis snapshot for a client.
// Snapshots accumulate; the most recent by creation time is authoritative.
type GapAnalysisModel struct {
	Base
	ClientID        string         `json:"clientId"        gorm:"index;not null"`
	OverallStrength string         `json:"overallStrength"`
	Summary         string         `json:"summary"         gorm:"type:longtext"`
	Criteria        []CriterionGap `json:"criteria"        gorm:"type:longtext;serializer:json"`
	PriorityActions StringArray    `json:"priorityActions" gorm:"type:longtext"`
}

func (GapAnalysisModel) TableName() string { return "gap_analyses" }
