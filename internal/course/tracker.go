package course

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/coremine/safety-lms/internal/apperr"
)

// Tracker derives enrollment progress from recorded module attempts.
type Tracker struct {
	store *SQLStore
	now   func() time.Time
}

func NewTracker(store *SQLStore) *Tracker {
	return &Tracker{store: store, now: time.Now}
}

// IsUnlocked applies the sequential gate: with requireSequential set, module
// N is open only once the enrollment's current index has reached N.
func IsUnlocked(org Org, e Enrollment, m Module) bool {
	return !org.RequireSequential || m.OrderIndex <= e.CurrentModuleIndex
}

// Percent is passed/total as a 0-100 value rounded to two decimals.
func Percent(passed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(passed)/float64(total)*10000) / 100
}

// Playable loads the module's enrollment and org and fails with ErrForbidden
// when the user is not enrolled or ErrLocked when the module is gated.
func (t *Tracker) Playable(ctx context.Context, userID string, m Module) (Enrollment, Org, error) {
	c, err := t.store.GetCourse(ctx, m.CourseID)
	if err != nil {
		return Enrollment{}, Org{}, err
	}
	org, err := t.store.GetOrg(ctx, c.OrgID)
	if err != nil {
		return Enrollment{}, Org{}, err
	}
	e, err := t.store.GetEnrollment(ctx, userID, m.CourseID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Enrollment{}, Org{}, apperr.Forbidden("not enrolled in course %s", c.Title)
		}
		return Enrollment{}, Org{}, err
	}
	if !IsUnlocked(org, e, m) {
		return Enrollment{}, Org{}, apperr.Locked("module %q is locked until earlier modules are passed", m.Title)
	}
	return e, org, nil
}

type Result struct {
	UserID    string
	ModuleID  string
	AttemptID string
	Score     float64
	Passed    bool
}

type Outcome struct {
	Enrollment      Enrollment    `json:"enrollment"`
	ModuleAttempt   ModuleAttempt `json:"moduleAttempt"`
	CourseCompleted bool          `json:"courseCompleted"`
}

// Record stores a ModuleAttempt and recomputes the enrollment. The current
// module index moves forward by one on a module's first passing attempt.
func (t *Tracker) Record(ctx context.Context, r Result) (Outcome, error) {
	m, err := t.store.GetModule(ctx, r.ModuleID)
	if err != nil {
		return Outcome{}, err
	}
	e, err := t.store.GetEnrollment(ctx, r.UserID, m.CourseID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return Outcome{}, apperr.Forbidden("not enrolled in course")
		}
		return Outcome{}, err
	}
	total, passedBefore, err := t.store.ModuleAttemptCounts(ctx, e.ID, m.ID)
	if err != nil {
		return Outcome{}, err
	}

	now := t.now().Unix()
	ma, err := t.store.InsertModuleAttempt(ctx, ModuleAttempt{
		EnrollmentID:  e.ID,
		ModuleID:      m.ID,
		AttemptID:     r.AttemptID,
		AttemptNumber: total + 1,
		Passed:        r.Passed,
		Score:         r.Score,
		CompletedAt:   now,
	})
	if err != nil {
		return Outcome{}, err
	}
	if r.Passed && passedBefore == 0 {
		e.CurrentModuleIndex++
	}

	moduleCount, err := t.store.CountModules(ctx, m.CourseID)
	if err != nil {
		return Outcome{}, err
	}
	_, passed, err := t.store.ModuleSummary(ctx, e.ID)
	if err != nil {
		return Outcome{}, err
	}
	e.Progress = Percent(len(passed), moduleCount)
	if moduleCount > 0 && len(passed) >= moduleCount {
		e.Status = StatusCompleted
		if e.CompletedAt == nil {
			e.CompletedAt = &now
		}
	} else {
		e.Status = StatusInProgress
	}
	if err := t.store.UpdateEnrollment(ctx, e); err != nil {
		return Outcome{}, err
	}
	return Outcome{Enrollment: e, ModuleAttempt: ma, CourseCompleted: e.Status == StatusCompleted}, nil
}

// Progress returns the enrollment and the per-module view for a learner.
func (t *Tracker) Progress(ctx context.Context, userID, courseID string) (Enrollment, []ModuleState, error) {
	c, err := t.store.GetCourse(ctx, courseID)
	if err != nil {
		return Enrollment{}, nil, err
	}
	org, err := t.store.GetOrg(ctx, c.OrgID)
	if err != nil {
		return Enrollment{}, nil, err
	}
	e, err := t.store.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		return Enrollment{}, nil, err
	}
	attempts, passed, err := t.store.ModuleSummary(ctx, e.ID)
	if err != nil {
		return Enrollment{}, nil, err
	}
	states := make([]ModuleState, 0, len(c.Modules))
	for _, m := range c.Modules {
		states = append(states, ModuleState{
			Module:   m,
			Unlocked: IsUnlocked(org, e, m),
			Passed:   passed[m.ID],
			Attempts: attempts[m.ID],
		})
	}
	return e, states, nil
}
