package course

import "encoding/json"

const DefaultCertValidityMonths = 12

type Org struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	RequireSequential  bool   `json:"requireSequential"`
	CertValidityMonths *int   `json:"certValidityMonths,omitempty"`
}

// ValidityMonths is the configured certificate validity, 12 when unset.
func (o Org) ValidityMonths() int {
	if o.CertValidityMonths == nil || *o.CertValidityMonths <= 0 {
		return DefaultCertValidityMonths
	}
	return *o.CertValidityMonths
}

type Site struct {
	ID    string `json:"id"`
	OrgID string `json:"orgId"`
	Name  string `json:"name" validate:"required,max=200"`
}

type ModuleKind string

const (
	KindScenario ModuleKind = "SCENARIO"
	KindQuiz     ModuleKind = "QUIZ"
	KindVideo    ModuleKind = "VIDEO"
	KindPolicy   ModuleKind = "POLICY"
)

type Course struct {
	ID        string   `json:"id"`
	OrgID     string   `json:"orgId"`
	Title     string   `json:"title" validate:"required,max=200"`
	Slug      string   `json:"slug" validate:"required,max=120"`
	CreatedAt int64    `json:"createdAt"`
	Modules   []Module `json:"modules,omitempty"`
}

type Module struct {
	ID         string          `json:"id"`
	CourseID   string          `json:"courseId"`
	Title      string          `json:"title" validate:"required,max=200"`
	Kind       ModuleKind      `json:"kind" validate:"required,oneof=SCENARIO QUIZ VIDEO POLICY"`
	OrderIndex int             `json:"orderIndex"`
	PassScore  float64         `json:"passScore" validate:"gte=0,lte=100"`
	Content    json.RawMessage `json:"content,omitempty"`
	AssetKey   string          `json:"assetKey,omitempty"`
	CreatedAt  int64           `json:"createdAt"`
}

type EnrollmentStatus string

const (
	StatusEnrolled   EnrollmentStatus = "ENROLLED"
	StatusInProgress EnrollmentStatus = "IN_PROGRESS"
	StatusCompleted  EnrollmentStatus = "COMPLETED"
)

type Enrollment struct {
	ID                 string           `json:"id"`
	UserID             string           `json:"userId"`
	CourseID           string           `json:"courseId"`
	Status             EnrollmentStatus `json:"status"`
	CurrentModuleIndex int              `json:"currentModuleIndex"`
	Progress           float64          `json:"progress"`
	EnrolledAt         int64            `json:"enrolledAt"`
	CompletedAt        *int64           `json:"completedAt,omitempty"`
}

type ModuleAttempt struct {
	ID            string  `json:"id"`
	EnrollmentID  string  `json:"enrollmentId"`
	ModuleID      string  `json:"moduleId"`
	AttemptID     string  `json:"attemptId,omitempty"`
	AttemptNumber int     `json:"attemptNumber"`
	Passed        bool    `json:"passed"`
	Score         float64 `json:"score"`
	CompletedAt   int64   `json:"completedAt"`
}

// ModuleState is a learner-facing view of one module within an enrollment.
type ModuleState struct {
	Module   Module `json:"module"`
	Unlocked bool   `json:"unlocked"`
	Passed   bool   `json:"passed"`
	Attempts int    `json:"attempts"`
}
