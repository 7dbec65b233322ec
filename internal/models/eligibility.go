package models

// Verdict is one of four eligibility classes derived from the ten criterion scores.
type Verdict string

const (
	VerdictStrong       Verdict = "strong"
	VerdictModerate     Verdict = "moderate"
	VerdictWeak         Verdict = "weak"
	VerdictInsufficient Verdict = "insufficient"
)

// CriterionCount is the fixed rubric size.
const CriterionCount = 10

// CriterionSlugs lists the ten rubric criteria in canonical order.
var CriterionSlugs = []string{
	"awards",
	"membership",
	"published_material",
	"judging",
	"original_contribution",
	"scholarly_articles",
	"exhibitions",
	"leading_role",
	"high_salary",
	"commercial_success",
}

// CriterionLabels maps slugs to display labels.
var CriterionLabels = map[string]string{
	"awards":                "Nationally or Internationally Recognized Awards",
	"membership":            "Membership in Distinguished Associations",
	"published_material":    "Published Material About the Beneficiary",
	"judging":               "Judging the Work of Others",
	"original_contribution": "Original Contributions of Major Significance",
	"scholarly_articles":    "Authorship of Scholarly Articles",
	"exhibitions":           "Display of Work at Artistic Exhibitions",
	"leading_role":          "Leading or Critical Role for Distinguished Organizations",
	"high_salary":           "High Salary Relative to Others in the Field",
	"commercial_success":    "Commercial Success in the Performing Arts",
}

// CriterionResult is one scored rubric entry in an eligibility report.
type CriterionResult struct {
	Slug     string   `json:"slug"`
	Label    string   `json:"label"`
	Score    int      `json:"score"` // 1..5
	Analysis string   `json:"analysis"`
	Evidence []string `json:"evidence"`
}

// EligibilityReportModel holds the latest eligibility evaluation for a client.
// The verdict is always a pure function of the ten scores.
type EligibilityReportModel struct {
	Base
	ClientID string            `json:"clientId" gorm:"index;not null"`
	Verdict  Verdict           `json:"verdict"`
	Summary  string            `json:"summary"  gorm:"type:longtext"`
	Criteria []CriterionResult `json:"criteria" gorm:"type:longtext;serializer:json"`
}

func (EligibilityReportModel) TableName() string { return "eligibility_reports" }
