package attempt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/db"
)

type Store interface {
	Create(ctx context.Context, scenarioID, moduleID, userID string) (Attempt, error)
	Get(ctx context.Context, id string) (Attempt, error)
	AppendDecision(ctx context.Context, d Decision) (Decision, error)
	ListDecisions(ctx context.Context, attemptID string) ([]Decision, error)
	Finish(ctx context.Context, id string, total float64, kpis map[string]float64, passed bool) (Attempt, error)
}

type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(dbh *sql.DB) *SQLStore {
	return &SQLStore{db: dbh, now: time.Now}
}

func (s *SQLStore) Create(ctx context.Context, scenarioID, moduleID, userID string) (Attempt, error) {
	a := Attempt{
		ID:         uuid.NewString(),
		ScenarioID: scenarioID,
		ModuleID:   moduleID,
		UserID:     userID,
		KPIScores:  map[string]float64{},
		StartedAt:  s.now().Unix(),
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO attempts (id,scenario_id,module_id,user_id,total_score,kpi_json,passed,started_at)
		VALUES ($1,$2,$3,$4,0,'{}',0,$5)`, a.ID, a.ScenarioID, a.ModuleID, a.UserID, a.StartedAt)
	if err != nil {
		return Attempt{}, err
	}
	return a, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Attempt, error) {
	var a Attempt
	var kpis string
	var passed int
	var finished sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT id, scenario_id, module_id, user_id, total_score, kpi_json, passed, started_at, finished_at
		FROM attempts WHERE id=$1`, id).
		Scan(&a.ID, &a.ScenarioID, &a.ModuleID, &a.UserID, &a.TotalScore, &kpis, &passed, &a.StartedAt, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, apperr.NotFound("attempt")
		}
		return Attempt{}, err
	}
	a.Passed = passed == 1
	a.FinishedAt = db.Int64Ptr(finished)
	a.KPIScores = decodeKPIs(kpis)
	return a, nil
}

// AppendDecision inserts d unless its attempt has already finished or
// already holds a decision for d.NodeKey.
func (s *SQLStore) AppendDecision(ctx context.Context, d Decision) (Decision, error) {
	a, err := s.Get(ctx, d.AttemptID)
	if err != nil {
		return Decision{}, err
	}
	if a.Finished() {
		return Decision{}, apperr.Conflict("attempt %s is already finished", a.ID)
	}
	d.ID = uuid.NewString()
	d.CreatedAt = s.now().Unix()
	if d.KPIScores == nil {
		d.KPIScores = map[string]float64{}
	}
	kpis, err := json.Marshal(d.KPIScores)
	if err != nil {
		return Decision{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO decisions (id,attempt_id,seq,node_key,choice_id,score,kpi_json,feedback,created_at)
		VALUES ($1,$2,(SELECT COALESCE(MAX(seq),0)+1 FROM decisions WHERE attempt_id=$2),$3,$4,$5,$6,$7,$8)`,
		d.ID, d.AttemptID, d.NodeKey, d.ChoiceID, d.Score, string(kpis), d.Feedback, d.CreatedAt)
	if db.IsUniqueViolation(err) {
		return Decision{}, apperr.Conflict("node %q already has a decision in attempt %s", d.NodeKey, d.AttemptID)
	}
	if err != nil {
		return Decision{}, err
	}
	return d, nil
}

// ListDecisions returns decisions in the order they were recorded.
func (s *SQLStore) ListDecisions(ctx context.Context, attemptID string) ([]Decision, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, attempt_id, node_key, choice_id, score, kpi_json, feedback, created_at
		FROM decisions WHERE attempt_id=$1 ORDER BY seq`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Decision{}
	for rows.Next() {
		var d Decision
		var kpis string
		if err := rows.Scan(&d.ID, &d.AttemptID, &d.NodeKey, &d.ChoiceID, &d.Score, &kpis, &d.Feedback, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.KPIScores = decodeKPIs(kpis)
		out = append(out, d)
	}
	return out, rows.Err()
}

// Finish stamps the final result. Only the first call takes effect; a second
// call on a finished attempt fails with ErrConflict.
func (s *SQLStore) Finish(ctx context.Context, id string, total float64, kpis map[string]float64, passed bool) (Attempt, error) {
	if kpis == nil {
		kpis = map[string]float64{}
	}
	buf, err := json.Marshal(kpis)
	if err != nil {
		return Attempt{}, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE attempts SET total_score=$1, kpi_json=$2, passed=$3, finished_at=$4
		WHERE id=$5 AND finished_at IS NULL`, total, string(buf), db.BoolInt(passed), s.now().Unix(), id)
	if err != nil {
		return Attempt{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return Attempt{}, err
		}
		return Attempt{}, apperr.Conflict("attempt %s is already finished", id)
	}
	return s.Get(ctx, id)
}

func decodeKPIs(raw string) map[string]float64 {
	out := map[string]float64{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]float64{}
	}
	return out
}
