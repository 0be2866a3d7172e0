package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// migration holds a single schema migration with its target version and SQL per dialect.
type migration struct {
	version  int
	postgres string
	sqlite   string
}

// migrations is the ordered list of schema migrations.
// Versions must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		postgres: `
CREATE TABLE IF NOT EXISTS users (
	id        BIGSERIAL PRIMARY KEY,
	username  TEXT NOT NULL UNIQUE,
	email     TEXT NOT NULL,
	full_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS organizations (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	slug       TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS organization_members (
	organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	user_id         BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	joined_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (organization_id, user_id)
);

CREATE TABLE IF NOT EXISTS projects (
	id              BIGSERIAL PRIMARY KEY,
	organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	name            TEXT NOT NULL,
	slug            TEXT NOT NULL UNIQUE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tasks (
	id         BIGSERIAL PRIMARY KEY,
	project_id BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	title      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'TODO' CHECK (status IN ('TODO', 'IN_PROGRESS', 'DONE')),
	due_date   TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS task_assignees (
	task_id     BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	assigned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (task_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_tasks_due_date ON tasks(due_date) WHERE status <> 'DONE';
`,
		sqlite: `
CREATE TABLE IF NOT EXISTS users (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	username  TEXT NOT NULL UNIQUE,
	email     TEXT NOT NULL,
	full_name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS organizations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	slug       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS organization_members (
	organization_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	user_id         INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	joined_at       DATETIME NOT NULL,
	PRIMARY KEY (organization_id, user_id)
);

CREATE TABLE IF NOT EXISTS projects (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	organization_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	name            TEXT NOT NULL,
	slug            TEXT NOT NULL UNIQUE,
	created_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	title      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'TODO' CHECK (status IN ('TODO', 'IN_PROGRESS', 'DONE')),
	due_date   DATETIME,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS task_assignees (
	task_id     INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	user_id     INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	assigned_at DATETIME NOT NULL,
	PRIMARY KEY (task_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_tasks_due_date ON tasks(due_date);
`,
	},
	{
		version: 2,
		postgres: `
CREATE TABLE IF NOT EXISTS notification_preferences (
	id                BIGSERIAL PRIMARY KEY,
	user_id           BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	email_enabled     BOOLEAN NOT NULL DEFAULT TRUE,
	websocket_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	overdue_reminders BOOLEAN NOT NULL DEFAULT TRUE,
	issue_updates     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT notification_preferences_user_id_key UNIQUE (user_id)
);

CREATE TABLE IF NOT EXISTS notifications (
	id                UUID PRIMARY KEY,
	recipient_id      BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	sender_id         BIGINT REFERENCES users(id) ON DELETE SET NULL,
	organization_id   BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	project_id        BIGINT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	task_id           BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	notification_type TEXT NOT NULL,
	title             TEXT NOT NULL,
	message           TEXT NOT NULL,
	is_read           BOOLEAN NOT NULL DEFAULT FALSE,
	read_at           TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT notifications_read_state_check CHECK (is_read = (read_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient_created ON notifications(recipient_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_task_type_created ON notifications(task_id, notification_type, created_at);

CREATE TABLE IF NOT EXISTS websocket_connections (
	id              BIGSERIAL PRIMARY KEY,
	user_id         BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	connection_id   TEXT NOT NULL,
	organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	project_id      BIGINT REFERENCES projects(id) ON DELETE SET NULL,
	connected_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen       TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT websocket_connections_identity_key UNIQUE (user_id, connection_id, organization_id)
);

CREATE INDEX IF NOT EXISTS idx_websocket_connections_last_seen ON websocket_connections(last_seen);
`,
		sqlite: `
CREATE TABLE IF NOT EXISTS notification_preferences (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id           INTEGER NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
	email_enabled     BOOLEAN NOT NULL DEFAULT 1,
	websocket_enabled BOOLEAN NOT NULL DEFAULT 1,
	overdue_reminders BOOLEAN NOT NULL DEFAULT 1,
	issue_updates     BOOLEAN NOT NULL DEFAULT 1,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id                TEXT PRIMARY KEY,
	recipient_id      INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	sender_id         INTEGER REFERENCES users(id) ON DELETE SET NULL,
	organization_id   INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	project_id        INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	task_id           INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	notification_type TEXT NOT NULL,
	title             TEXT NOT NULL,
	message           TEXT NOT NULL,
	is_read           BOOLEAN NOT NULL DEFAULT 0,
	read_at           DATETIME,
	created_at        DATETIME NOT NULL,
	CHECK (is_read = (read_at IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient_created ON notifications(recipient_id, created_at);
CREATE INDEX IF NOT EXISTS idx_notifications_task_type_created ON notifications(task_id, notification_type, created_at);

CREATE TABLE IF NOT EXISTS websocket_connections (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id         INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	connection_id   TEXT NOT NULL,
	organization_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	project_id      INTEGER REFERENCES projects(id) ON DELETE SET NULL,
	connected_at    DATETIME NOT NULL,
	last_seen       DATETIME NOT NULL,
	UNIQUE (user_id, connection_id, organization_id)
);

CREATE INDEX IF NOT EXISTS idx_websocket_connections_last_seen ON websocket_connections(last_seen);
`,
	},
}

// migrate checks the current schema version and applies any outstanding migrations in order.
func migrate(ctx context.Context, conn *sqlx.DB, d dialect) error {
	if _, err := conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var currentVersion int
	if err := conn.GetContext(ctx, &currentVersion, `SELECT COALESCE(MAX(version), 0) FROM schema_version`); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		stmt := m.postgres
		if d == dialectSQLite {
			stmt = m.sqlite
		}

		tx, err := conn.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", m.version, err)
		}
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", m.version, err)
		}
		if _, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO schema_version (version) VALUES (?)`), m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
		if err = tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}

	return nil
}
