package db

import (
	"context"
	"time"
)

const websocketConnectionColumns = `
id, user_id, connection_id, organization_id, project_id, connected_at, last_seen
`

const upsertWebsocketConnection = `
INSERT INTO websocket_connections (user_id, connection_id, organization_id, project_id, connected_at, last_seen)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, connection_id, organization_id)
DO UPDATE SET project_id = excluded.project_id, last_seen = excluded.last_seen
RETURNING` + websocketConnectionColumns

type UpsertWebsocketConnectionParams struct {
	UserID         int64  `json:"user_id"`
	ConnectionID   string `json:"connection_id"`
	OrganizationID int64  `json:"organization_id"`
	ProjectID      *int64 `json:"project_id"`
}

// UpsertWebsocketConnection creates the liveness row or refreshes an existing one.
func (q *Queries) UpsertWebsocketConnection(ctx context.Context, arg UpsertWebsocketConnectionParams) (WebsocketConnection, error) {
	now := Now()

	var i WebsocketConnection
	err := q.db.GetContext(ctx, &i, q.db.Rebind(upsertWebsocketConnection),
		arg.UserID, arg.ConnectionID, arg.OrganizationID, arg.ProjectID, now, now)
	return i, err
}

const touchWebsocketConnection = `
UPDATE websocket_connections SET last_seen = ?
WHERE connection_id = ?
`

func (q *Queries) TouchWebsocketConnection(ctx context.Context, connectionID string, seenAt time.Time) error {
	_, err := q.db.ExecContext(ctx, q.db.Rebind(touchWebsocketConnection), utc(seenAt), connectionID)
	return err
}

const deleteWebsocketConnection = `
DELETE FROM websocket_connections
WHERE connection_id = ?
`

func (q *Queries) DeleteWebsocketConnection(ctx context.Context, connectionID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, q.db.Rebind(deleteWebsocketConnection), connectionID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteIdleWebsocketConnections = `
DELETE FROM websocket_connections
WHERE last_seen < ?
`

func (q *Queries) DeleteIdleWebsocketConnections(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, q.db.Rebind(deleteIdleWebsocketConnections), utc(cutoff))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getWebsocketConnection = `
SELECT` + websocketConnectionColumns + `FROM websocket_connections
WHERE connection_id = ?
`

func (q *Queries) GetWebsocketConnection(ctx context.Context, connectionID string) (WebsocketConnection, error) {
	var i WebsocketConnection
	err := q.db.GetContext(ctx, &i, q.db.Rebind(getWebsocketConnection), connectionID)
	return i, err
}

const listWebsocketConnectionsByUser = `
SELECT` + websocketConnectionColumns + `FROM websocket_connections
WHERE user_id = ?
ORDER BY connected_at
`

func (q *Queries) ListWebsocketConnectionsByUser(ctx context.Context, userID int64) ([]WebsocketConnection, error) {
	items := []WebsocketConnection{}
	err := q.db.SelectContext(ctx, &items, q.db.Rebind(listWebsocketConnectionsByUser), userID)
	return items, err
}
