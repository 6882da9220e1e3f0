package db

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS organizations (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  require_sequential INTEGER NOT NULL DEFAULT 0,
  cert_validity_months INTEGER,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sites (
  id TEXT PRIMARY KEY,
  org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
  site_id TEXT,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  role TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
  id TEXT PRIMARY KEY,
  org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
  title TEXT NOT NULL,
  slug TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS modules (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  title TEXT NOT NULL,
  kind TEXT NOT NULL,
  order_index INTEGER NOT NULL,
  pass_score REAL NOT NULL DEFAULT 70,
  content_json TEXT NOT NULL DEFAULT '{}',
  asset_key TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scenarios (
  id TEXT PRIMARY KEY,
  module_id TEXT UNIQUE REFERENCES modules(id) ON DELETE SET NULL,
  slug TEXT NOT NULL,
  title TEXT NOT NULL,
  estimated_minutes INTEGER NOT NULL DEFAULT 0,
  difficulty TEXT NOT NULL,
  focus_tags_json TEXT NOT NULL DEFAULT '[]',
  status TEXT NOT NULL,
  start_node_key TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scenario_nodes (
  id TEXT PRIMARY KEY,
  scenario_id TEXT NOT NULL REFERENCES scenarios(id) ON DELETE CASCADE,
  node_key TEXT NOT NULL,
  node_type TEXT NOT NULL,
  body_json TEXT NOT NULL,
  position INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS scenario_nodes_scenario_idx ON scenario_nodes (scenario_id, position);

CREATE TABLE IF NOT EXISTS enrollments (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  current_module_index INTEGER NOT NULL DEFAULT 0,
  progress REAL NOT NULL DEFAULT 0,
  enrolled_at INTEGER NOT NULL,
  completed_at INTEGER,
  UNIQUE (user_id, course_id)
);

CREATE TABLE IF NOT EXISTS attempts (
  id TEXT PRIMARY KEY,
  scenario_id TEXT NOT NULL REFERENCES scenarios(id) ON DELETE CASCADE,
  module_id TEXT NOT NULL DEFAULT '',
  user_id TEXT NOT NULL,
  total_score REAL NOT NULL DEFAULT 0,
  kpi_json TEXT NOT NULL DEFAULT '{}',
  passed INTEGER NOT NULL DEFAULT 0,
  started_at INTEGER NOT NULL,
  finished_at INTEGER
);

CREATE TABLE IF NOT EXISTS decisions (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
  seq INTEGER NOT NULL,
  node_key TEXT NOT NULL,
  choice_id TEXT NOT NULL,
  score REAL NOT NULL,
  kpi_json TEXT NOT NULL DEFAULT '{}',
  feedback TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS decisions_attempt_idx ON decisions (attempt_id, seq);
CREATE UNIQUE INDEX IF NOT EXISTS decisions_node_uniq ON decisions (attempt_id, node_key);

CREATE TABLE IF NOT EXISTS module_attempts (
  id TEXT PRIMARY KEY,
  enrollment_id TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
  module_id TEXT NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
  attempt_id TEXT,
  attempt_number INTEGER NOT NULL,
  passed INTEGER NOT NULL,
  score REAL NOT NULL,
  completed_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS certificates (
  id TEXT PRIMARY KEY,
  org_id TEXT NOT NULL,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  serial TEXT NOT NULL,
  verification_code TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL,
  issued_at INTEGER NOT NULL,
  expires_at INTEGER NOT NULL,
  revoked_at INTEGER,
  revoke_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS certificates_expiry_idx ON certificates (status, expires_at);
CREATE UNIQUE INDEX IF NOT EXISTS certificates_active_uq ON certificates (user_id, course_id) WHERE status = 'ACTIVE';

CREATE TABLE IF NOT EXISTS email_logs (
  id TEXT PRIMARY KEY,
  org_id TEXT NOT NULL DEFAULT '',
  type TEXT NOT NULL,
  user_id TEXT NOT NULL DEFAULT '',
  certificate_id TEXT NOT NULL DEFAULT '',
  recipient TEXT NOT NULL,
  subject TEXT NOT NULL,
  status TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  sent_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS email_logs_cert_idx ON email_logs (certificate_id, type, sent_at);
CREATE INDEX IF NOT EXISTS email_logs_org_idx ON email_logs (org_id, sent_at);

CREATE TABLE IF NOT EXISTS incidents (
  id TEXT PRIMARY KEY,
  org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
  site_id TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  severity TEXT NOT NULL,
  root_cause TEXT NOT NULL,
  corrective_actions_json TEXT NOT NULL DEFAULT '[]',
  occurred_at INTEGER NOT NULL,
  reported_by TEXT NOT NULL DEFAULT '',
  scenario_id TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  org_id TEXT NOT NULL DEFAULT '',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS event_log_org_idx ON event_log (org_id, seq);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS organizations (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  require_sequential INTEGER NOT NULL DEFAULT 0,
  cert_validity_months INTEGER,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS sites (
  id TEXT PRIMARY KEY,
  org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
  site_id TEXT,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  role TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS courses (
  id TEXT PRIMARY KEY,
  org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
  title TEXT NOT NULL,
  slug TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS modules (
  id TEXT PRIMARY KEY,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  title TEXT NOT NULL,
  kind TEXT NOT NULL,
  order_index INTEGER NOT NULL,
  pass_score DOUBLE PRECISION NOT NULL DEFAULT 70,
  content_json TEXT NOT NULL DEFAULT '{}',
  asset_key TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS scenarios (
  id TEXT PRIMARY KEY,
  module_id TEXT UNIQUE REFERENCES modules(id) ON DELETE SET NULL,
  slug TEXT NOT NULL,
  title TEXT NOT NULL,
  estimated_minutes INTEGER NOT NULL DEFAULT 0,
  difficulty TEXT NOT NULL,
  focus_tags_json TEXT NOT NULL DEFAULT '[]',
  status TEXT NOT NULL,
  start_node_key TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS scenario_nodes (
  id TEXT PRIMARY KEY,
  scenario_id TEXT NOT NULL REFERENCES scenarios(id) ON DELETE CASCADE,
  node_key TEXT NOT NULL,
  node_type TEXT NOT NULL,
  body_json TEXT NOT NULL,
  position INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS scenario_nodes_scenario_idx ON scenario_nodes (scenario_id, position);

CREATE TABLE IF NOT EXISTS enrollments (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  current_module_index INTEGER NOT NULL DEFAULT 0,
  progress DOUBLE PRECISION NOT NULL DEFAULT 0,
  enrolled_at BIGINT NOT NULL,
  completed_at BIGINT,
  UNIQUE (user_id, course_id)
);

CREATE TABLE IF NOT EXISTS attempts (
  id TEXT PRIMARY KEY,
  scenario_id TEXT NOT NULL REFERENCES scenarios(id) ON DELETE CASCADE,
  module_id TEXT NOT NULL DEFAULT '',
  user_id TEXT NOT NULL,
  total_score DOUBLE PRECISION NOT NULL DEFAULT 0,
  kpi_json TEXT NOT NULL DEFAULT '{}',
  passed INTEGER NOT NULL DEFAULT 0,
  started_at BIGINT NOT NULL,
  finished_at BIGINT
);

CREATE TABLE IF NOT EXISTS decisions (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
  seq INTEGER NOT NULL,
  node_key TEXT NOT NULL,
  choice_id TEXT NOT NULL,
  score DOUBLE PRECISION NOT NULL,
  kpi_json TEXT NOT NULL DEFAULT '{}',
  feedback TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS decisions_attempt_idx ON decisions (attempt_id, seq);
CREATE UNIQUE INDEX IF NOT EXISTS decisions_node_uniq ON decisions (attempt_id, node_key);

CREATE TABLE IF NOT EXISTS module_attempts (
  id TEXT PRIMARY KEY,
  enrollment_id TEXT NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
  module_id TEXT NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
  attempt_id TEXT,
  attempt_number INTEGER NOT NULL,
  passed INTEGER NOT NULL,
  score DOUBLE PRECISION NOT NULL,
  completed_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS certificates (
  id TEXT PRIMARY KEY,
  org_id TEXT NOT NULL,
  user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  course_id TEXT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
  serial TEXT NOT NULL,
  verification_code TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL,
  issued_at BIGINT NOT NULL,
  expires_at BIGINT NOT NULL,
  revoked_at BIGINT,
  revoke_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS certificates_expiry_idx ON certificates (status, expires_at);
CREATE UNIQUE INDEX IF NOT EXISTS certificates_active_uq ON certificates (user_id, course_id) WHERE status = 'ACTIVE';

CREATE TABLE IF NOT EXISTS email_logs (
  id TEXT PRIMARY KEY,
  org_id TEXT NOT NULL DEFAULT '',
  type TEXT NOT NULL,
  user_id TEXT NOT NULL DEFAULT '',
  certificate_id TEXT NOT NULL DEFAULT '',
  recipient TEXT NOT NULL,
  subject TEXT NOT NULL,
  status TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  sent_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS email_logs_cert_idx ON email_logs (certificate_id, type, sent_at);
CREATE INDEX IF NOT EXISTS email_logs_org_idx ON email_logs (org_id, sent_at);

CREATE TABLE IF NOT EXISTS incidents (
  id TEXT PRIMARY KEY,
  org_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
  site_id TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL,
  description TEXT NOT NULL,
  location TEXT NOT NULL DEFAULT '',
  severity TEXT NOT NULL,
  root_cause TEXT NOT NULL,
  corrective_actions_json TEXT NOT NULL DEFAULT '[]',
  occurred_at BIGINT NOT NULL,
  reported_by TEXT NOT NULL DEFAULT '',
  scenario_id TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  org_id TEXT NOT NULL DEFAULT '',
  typ TEXT NOT NULL,
  key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS event_log_org_idx ON event_log (org_id, seq);
`
