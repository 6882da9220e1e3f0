package scenario

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/db"
)

type Store interface {
	Get(ctx context.Context, id string) (Scenario, []Node, error)
	GetByModule(ctx context.Context, moduleID string) (Scenario, []Node, error)
	// Save upserts the scenario header and replaces its node set wholesale.
	Save(ctx context.Context, s Scenario, nodes []Node) (Scenario, error)
}

type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(dbh *sql.DB) *SQLStore {
	return &SQLStore{db: dbh, now: time.Now}
}

const selectScenario = `SELECT id, COALESCE(module_id,''), slug, title, estimated_minutes, difficulty, focus_tags_json, status, start_node_key, created_at, updated_at FROM scenarios`

func (s *SQLStore) Get(ctx context.Context, id string) (Scenario, []Node, error) {
	return s.load(ctx, selectScenario+` WHERE id=$1`, id)
}

func (s *SQLStore) GetByModule(ctx context.Context, moduleID string) (Scenario, []Node, error) {
	return s.load(ctx, selectScenario+` WHERE module_id=$1`, moduleID)
}

func (s *SQLStore) load(ctx context.Context, q string, arg string) (Scenario, []Node, error) {
	var sc Scenario
	var tags string
	err := s.db.QueryRowContext(ctx, q, arg).Scan(&sc.ID, &sc.ModuleID, &sc.Slug, &sc.Title, &sc.EstimatedMinutes,
		&sc.Difficulty, &tags, &sc.Status, &sc.StartNodeKey, &sc.CreatedAt, &sc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Scenario{}, nil, apperr.NotFound("scenario")
		}
		return Scenario{}, nil, err
	}
	if err := json.Unmarshal([]byte(tags), &sc.FocusTags); err != nil {
		sc.FocusTags = nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT node_key, node_type, body_json, position FROM scenario_nodes WHERE scenario_id=$1 ORDER BY position`, sc.ID)
	if err != nil {
		return Scenario{}, nil, err
	}
	defer rows.Close()
	nodes := []Node{}
	for rows.Next() {
		var n Node
		var body string
		if err := rows.Scan(&n.NodeKey, &n.NodeType, &body, &n.Position); err != nil {
			return Scenario{}, nil, err
		}
		n.Body = json.RawMessage(body)
		nodes = append(nodes, n)
	}
	return sc, nodes, rows.Err()
}

// Save writes the header and deletes then recreates every node in one
// transaction. When s.ModuleID is set and a scenario already belongs to that
// module, that row is updated in place.
func (s *SQLStore) Save(ctx context.Context, sc Scenario, nodes []Node) (Scenario, error) {
	if err := ValidateDraft(sc, nodes); err != nil {
		return Scenario{}, err
	}
	now := s.now().Unix()
	tags, err := json.Marshal(nonNil(sc.FocusTags))
	if err != nil {
		return Scenario{}, err
	}
	if sc.StartNodeKey == "" && len(nodes) > 0 {
		sc.StartNodeKey = NewGraph("", nodes).Start
	}

	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if sc.ID == "" && sc.ModuleID != "" {
			var existing string
			err := tx.QueryRowContext(ctx, `SELECT id FROM scenarios WHERE module_id=$1`, sc.ModuleID).Scan(&existing)
			switch {
			case err == nil:
				sc.ID = existing
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}
		}
		var moduleID any
		if sc.ModuleID != "" {
			moduleID = sc.ModuleID
		}
		if sc.ID == "" {
			sc.ID = uuid.NewString()
			sc.CreatedAt = now
			if _, err := tx.ExecContext(ctx, `INSERT INTO scenarios
				(id,module_id,slug,title,estimated_minutes,difficulty,focus_tags_json,status,start_node_key,created_at,updated_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
				sc.ID, moduleID, sc.Slug, sc.Title, sc.EstimatedMinutes, sc.Difficulty, string(tags), sc.Status, sc.StartNodeKey, now, now); err != nil {
				if db.IsUniqueViolation(err) {
					return apperr.Conflict("module %s already has a scenario", sc.ModuleID)
				}
				return err
			}
		} else {
			res, err := tx.ExecContext(ctx, `UPDATE scenarios SET module_id=$1, slug=$2, title=$3, estimated_minutes=$4,
				difficulty=$5, focus_tags_json=$6, status=$7, start_node_key=$8, updated_at=$9 WHERE id=$10`,
				moduleID, sc.Slug, sc.Title, sc.EstimatedMinutes, sc.Difficulty, string(tags), sc.Status, sc.StartNodeKey, now, sc.ID)
			if err != nil {
				if db.IsUniqueViolation(err) {
					return apperr.Conflict("module %s already has a scenario", sc.ModuleID)
				}
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return apperr.NotFound("scenario")
			}
		}
		sc.UpdatedAt = now

		if _, err := tx.ExecContext(ctx, `DELETE FROM scenario_nodes WHERE scenario_id=$1`, sc.ID); err != nil {
			return fmt.Errorf("delete nodes: %w", err)
		}
		for i, n := range nodes {
			if _, err := tx.ExecContext(ctx, `INSERT INTO scenario_nodes (id,scenario_id,node_key,node_type,body_json,position)
				VALUES ($1,$2,$3,$4,$5,$6)`, uuid.NewString(), sc.ID, n.NodeKey, n.NodeType, string(n.Body), i); err != nil {
				return fmt.Errorf("insert node %q: %w", n.NodeKey, err)
			}
		}
		return nil
	})
	if err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
