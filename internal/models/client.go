package models

// EvaluationStatus tracks where a client is in the eligibility pipeline.
type EvaluationStatus string

const (
	EvaluationNone    EvaluationStatus = "none"
	EvaluationRunning EvaluationStatus = "evaluating"
	EvaluationDone    EvaluationStatus = "evaluated"
)

// ClientModel is one petitioner case file.
type ClientModel struct {
	Base
	Name             string           `json:"name"              gorm:"not null"`
	Email            string           `json:"email"             gorm:"index"`
	VisaCategory     string           `json:"visaCategory"` // e.g. EB-1A, O-1A
	FieldOfEndeavor  string           `json:"fieldOfEndeavor"`
	ProfileSummary   string           `json:"profileSummary"    gorm:"type:longtext"`
	EvaluationStatus EvaluationStatus `json:"evaluationStatus"  gorm:"default:none"`
}

func (ClientModel) TableName() string { return "clients" }

// EvidenceDocumentModel registers one uploaded evidence document for a client.
// The file body lives in the vault service; this row carries the metadata the
// drafting tools need (names for exhibit lists, corpus refs for search).
type EvidenceDocumentModel struct {
	Base
	ClientID  string `json:"clientId"  gorm:"index;not null"`
	Name      string `json:"name"      gorm:"not null"`
	DocType   string `json:"docType"` // award_letter | publication | citation_report | media | contract | other
	CorpusRef string `json:"corpusRef"`
}

func (EvidenceDocumentModel) TableName() string { return "evidence_documents" }
