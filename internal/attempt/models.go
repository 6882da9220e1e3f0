package attempt

// Attempt is one play-through of a scenario. It is immutable once FinishedAt is set.
type Attempt struct {
	ID         string             `json:"id"`
	ScenarioID string             `json:"scenarioId"`
	ModuleID   string             `json:"moduleId"`
	UserID     string             `json:"userId"`
	TotalScore float64            `json:"totalScore"`
	KPIScores  map[string]float64 `json:"kpiScores"`
	Passed     bool               `json:"passed"`
	StartedAt  int64              `json:"startedAt"`
	FinishedAt *int64             `json:"finishedAt,omitempty"`
}

func (a Attempt) Finished() bool { return a.FinishedAt != nil }

// Decision is an append-only record of one choice made during an attempt.
type Decision struct {
	ID        string             `json:"id"`
	AttemptID string             `json:"attemptId"`
	NodeKey   string             `json:"nodeKey"`
	ChoiceID  string             `json:"choiceId"`
	Score     float64            `json:"score"`
	KPIScores map[string]float64 `json:"kpiScores"`
	Feedback  string             `json:"feedback"`
	CreatedAt int64              `json:"createdAt"`
}

// Completion is the client-reported result of an attempt.
type Completion struct {
	ModuleID   string             `json:"moduleId" validate:"required"`
	Passed     *bool              `json:"passed" validate:"required"`
	TotalScore *float64           `json:"totalScore" validate:"required,gte=0,lte=100"`
	KPIScores  map[string]float64 `json:"kpiScores" validate:"omitempty,dive,gte=0,lte=100"`
}
