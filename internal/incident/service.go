// Package incident records site incidents, alerts supervisors and turns an
// investigated incident into a draft training scenario.
package incident

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/audit"
	"github.com/coremine/safety-lms/internal/course"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/notify"
	"github.com/coremine/safety-lms/internal/scenario"
	"github.com/coremine/safety-lms/internal/users"
)

type Modules interface {
	GetModule(ctx context.Context, id string) (course.Module, error)
	GetCourse(ctx context.Context, id string) (course.Course, error)
}

type Staff interface {
	List(ctx context.Context, orgID string, roles ...users.Role) ([]users.User, error)
}

type Mailer interface {
	Send(ctx context.Context, e notify.Email) (notify.EmailLog, error)
}

type Service struct {
	store     *SQLStore
	scenarios scenario.Store
	modules   Modules
	staff     Staff
	mailer    Mailer
	audit     audit.Recorder
	log       *logger.Logger
	loc       *time.Location
	validate  *validator.Validate
}

func NewService(store *SQLStore, scenarios scenario.Store, modules Modules, staff Staff, mailer Mailer,
	rec audit.Recorder, log *logger.Logger, loc *time.Location) *Service {
	return &Service{
		store:     store,
		scenarios: scenarios,
		modules:   modules,
		staff:     staff,
		mailer:    mailer,
		audit:     rec,
		log:       log,
		loc:       loc,
		validate:  validator.New(),
	}
}

func (s *Service) Store() *SQLStore { return s.store }

// Report stores an incident and alerts the org's admins and supervisors.
// Alert delivery is best effort.
func (s *Service) Report(ctx context.Context, orgID, reporterID string, in Input) (Incident, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := s.validate.Struct(in); err != nil {
		return Incident{}, apperr.Invalid("%v", err)
	}
	inc, err := s.store.Create(ctx, Incident{
		OrgID:             orgID,
		SiteID:            in.SiteID,
		Title:             in.Title,
		Description:       in.Description,
		Location:          in.Location,
		Severity:          in.Severity,
		RootCause:         strings.TrimSpace(in.RootCause),
		CorrectiveActions: in.CorrectiveActions,
		OccurredAt:        in.OccurredAt,
		ReportedBy:        reporterID,
	})
	if err != nil {
		return Incident{}, err
	}
	s.log.Info("incident reported", "incident_id", inc.ID, "severity", inc.Severity, "org_id", orgID)
	if err := s.audit.Record(ctx, orgID, audit.TypeIncidentCreated, inc.ID, map[string]any{
		"title": inc.Title, "severity": inc.Severity, "by": reporterID,
	}); err != nil {
		s.log.Warn("audit incident created", "err", err)
	}
	s.alert(ctx, inc)
	return inc, nil
}

func (s *Service) alert(ctx context.Context, inc Incident) {
	staff, err := s.staff.List(ctx, inc.OrgID, users.RoleAdmin, users.RoleSupervisor)
	if err != nil {
		s.log.Warn("list incident recipients", "incident_id", inc.ID, "err", err)
		return
	}
	for _, u := range staff {
		_, err := s.mailer.Send(ctx, notify.Email{
			OrgID:   inc.OrgID,
			Type:    notify.TypeIncidentAlert,
			UserID:  u.ID,
			ToName:  u.Name,
			ToEmail: u.Email,
			Data: notify.IncidentData{
				Title:       inc.Title,
				Severity:    string(inc.Severity),
				Location:    inc.Location,
				Description: inc.Description,
				RootCause:   inc.RootCause,
			},
		})
		if err != nil {
			s.log.Warn("incident alert not sent", "incident_id", inc.ID, "to", u.Email, "err", err)
		}
	}
}

// Generated is a freshly generated draft with its lint findings.
type Generated struct {
	Scenario scenario.Scenario  `json:"scenario"`
	Nodes    []scenario.Node    `json:"nodes"`
	Warnings []scenario.Warning `json:"warnings"`
}

// GenerateScenario builds a DRAFT scenario from the incident and links it.
// moduleID, when set, must be an unclaimed SCENARIO module of the same org.
func (s *Service) GenerateScenario(ctx context.Context, orgID, incidentID, moduleID string) (Generated, error) {
	inc, err := s.store.Get(ctx, orgID, incidentID)
	if err != nil {
		return Generated{}, err
	}
	if inc.ScenarioID != "" {
		return Generated{}, apperr.Conflict("incident already has scenario %s", inc.ScenarioID)
	}
	sc, nodes, err := Generate(inc, s.loc)
	if err != nil {
		return Generated{}, err
	}
	if moduleID != "" {
		if err := s.checkModule(ctx, orgID, moduleID); err != nil {
			return Generated{}, err
		}
		sc.ModuleID = moduleID
	}
	saved, err := s.scenarios.Save(ctx, sc, nodes)
	if err != nil {
		return Generated{}, err
	}
	if err := s.store.SetScenario(ctx, inc.ID, saved.ID); err != nil {
		return Generated{}, err
	}
	s.log.Info("scenario generated from incident", "incident_id", inc.ID, "scenario_id", saved.ID)
	if err := s.audit.Record(ctx, orgID, audit.TypeScenarioGenerated, inc.ID, map[string]any{
		"scenarioId": saved.ID, "moduleId": moduleID,
	}); err != nil {
		s.log.Warn("audit incident scenario", "err", err)
	}
	return Generated{
		Scenario: saved,
		Nodes:    nodes,
		Warnings: scenario.NewGraph(saved.StartNodeKey, nodes).Lint(),
	}, nil
}

func (s *Service) checkModule(ctx context.Context, orgID, moduleID string) error {
	m, err := s.modules.GetModule(ctx, moduleID)
	if err != nil {
		return err
	}
	c, err := s.modules.GetCourse(ctx, m.CourseID)
	if err != nil {
		return err
	}
	if c.OrgID != orgID {
		return apperr.NotFound("module")
	}
	if m.Kind != course.KindScenario {
		return apperr.Invalid("module %q is not a scenario module", m.Title)
	}
	_, _, err = s.scenarios.GetByModule(ctx, moduleID)
	switch {
	case err == nil:
		return apperr.Conflict("module %q already has a scenario", m.Title)
	case errors.Is(err, apperr.ErrNotFound):
		return nil
	default:
		return err
	}
}
