// Package audit appends administrative events to event_log and searches them.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

const (
	TypeCertificateIssued  = "certificate.issued"
	TypeCertificateRevoked = "certificate.revoked"
	TypeScenarioSaved      = "scenario.saved"
	TypeIncidentCreated    = "incident.created"
	TypeScenarioGenerated  = "incident.scenario_generated"
	TypeUsersImported      = "users.imported"
	TypeOrgSettings        = "org.settings_updated"
)

type Event struct {
	Seq       int64           `json:"seq"`
	OrgID     string          `json:"orgId"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"createdAt"`
}

// Recorder is what domain services need to leave an audit trail.
type Recorder interface {
	Record(ctx context.Context, orgID, typ, key string, data any) error
}

type EventRepo struct {
	db  *sql.DB
	now func() time.Time
}

var _ Recorder = (*EventRepo)(nil)

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db, now: time.Now} }

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if len(e.Data) == 0 {
		e.Data = json.RawMessage(`{}`)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (org_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.OrgID, e.Type, e.Key, string(e.Data), r.now().Unix())
	return err
}

// Record marshals data and appends it.
func (r *EventRepo) Record(ctx context.Context, orgID, typ, key string, data any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return r.Append(ctx, Event{OrgID: orgID, Type: typ, Key: key, Data: buf})
}

// Search returns the org's newest events whose type or key contains q.
func (r *EventRepo) Search(ctx context.Context, orgID, q string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, org_id, typ, key, data, created_at FROM event_log
		 WHERE org_id=$1 AND (typ LIKE '%'||$2||'%' OR key LIKE '%'||$2||'%')
		 ORDER BY seq DESC LIMIT $3`, orgID, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var e Event
		var data string
		if err := rows.Scan(&e.Seq, &e.OrgID, &e.Type, &e.Key, &data, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Data = json.RawMessage(data)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, string, string, string, any) error { return nil }
