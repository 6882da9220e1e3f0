package incident

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
	SeverityFatality Severity = "FATALITY"
)

type Incident struct {
	ID                string   `json:"id"`
	OrgID             string   `json:"orgId"`
	SiteID            string   `json:"siteId,omitempty"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Location          string   `json:"location,omitempty"`
	Severity          Severity `json:"severity"`
	RootCause         string   `json:"rootCause,omitempty"`
	CorrectiveActions []string `json:"correctiveActions"`
	OccurredAt        int64    `json:"occurredAt"`
	ReportedBy        string   `json:"reportedBy,omitempty"`
	ScenarioID        string   `json:"scenarioId,omitempty"`
	CreatedAt         int64    `json:"createdAt"`
}

// Input is the body of an incident report.
type Input struct {
	SiteID            string   `json:"siteId"`
	Title             string   `json:"title" validate:"required,max=200"`
	Description       string   `json:"description" validate:"required"`
	Location          string   `json:"location" validate:"max=200"`
	Severity          Severity `json:"severity" validate:"required,oneof=LOW MEDIUM HIGH CRITICAL FATALITY"`
	RootCause         string   `json:"rootCause"`
	CorrectiveActions []string `json:"correctiveActions" validate:"omitempty,dive,required,max=500"`
	OccurredAt        int64    `json:"occurredAt" validate:"gte=0"`
}
