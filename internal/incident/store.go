package incident

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/coremine/safety-lms/internal/apperr"
)

type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(dbh *sql.DB) *SQLStore { return &SQLStore{db: dbh, now: time.Now} }

const selectIncident = `SELECT id, org_id, site_id, title, description, location, severity, root_cause,
	corrective_actions_json, occurred_at, reported_by, scenario_id, created_at FROM incidents`

func scanIncident(sc interface{ Scan(...any) error }) (Incident, error) {
	var (
		in      Incident
		actions string
	)
	err := sc.Scan(&in.ID, &in.OrgID, &in.SiteID, &in.Title, &in.Description, &in.Location, &in.Severity,
		&in.RootCause, &actions, &in.OccurredAt, &in.ReportedBy, &in.ScenarioID, &in.CreatedAt)
	if err != nil {
		return Incident{}, err
	}
	if err := json.Unmarshal([]byte(actions), &in.CorrectiveActions); err != nil {
		return Incident{}, err
	}
	if in.CorrectiveActions == nil {
		in.CorrectiveActions = []string{}
	}
	return in, nil
}

func (s *SQLStore) Create(ctx context.Context, in Incident) (Incident, error) {
	in.ID = uuid.NewString()
	in.CreatedAt = s.now().Unix()
	if in.OccurredAt == 0 {
		in.OccurredAt = in.CreatedAt
	}
	if in.CorrectiveActions == nil {
		in.CorrectiveActions = []string{}
	}
	actions, err := json.Marshal(in.CorrectiveActions)
	if err != nil {
		return Incident{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO incidents
		(id,org_id,site_id,title,description,location,severity,root_cause,corrective_actions_json,occurred_at,reported_by,scenario_id,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,'',$12)`,
		in.ID, in.OrgID, in.SiteID, in.Title, in.Description, in.Location, in.Severity, in.RootCause,
		string(actions), in.OccurredAt, in.ReportedBy, in.CreatedAt)
	if err != nil {
		return Incident{}, err
	}
	return in, nil
}

// Get returns an incident of orgID.
func (s *SQLStore) Get(ctx context.Context, orgID, id string) (Incident, error) {
	in, err := scanIncident(s.db.QueryRowContext(ctx, selectIncident+` WHERE id=$1 AND org_id=$2`, id, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return Incident{}, apperr.NotFound("incident")
	}
	return in, err
}

func (s *SQLStore) List(ctx context.Context, orgID string) ([]Incident, error) {
	rows, err := s.db.QueryContext(ctx, selectIncident+` WHERE org_id=$1 ORDER BY occurred_at DESC, created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Incident{}
	for rows.Next() {
		in, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// SetScenario links the generated scenario. It fails with ErrConflict once set.
func (s *SQLStore) SetScenario(ctx context.Context, id, scenarioID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE incidents SET scenario_id=$1 WHERE id=$2 AND scenario_id=''`, scenarioID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Conflict("incident already has a generated scenario")
	}
	return nil
}
