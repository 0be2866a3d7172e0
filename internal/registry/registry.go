// Package registry tracks live connections and the broadcast groups they joined.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	db "github.com/katatrina/taskhub-BE/internal/db"
	"github.com/katatrina/taskhub-BE/internal/event"
	"github.com/rs/zerolog/log"
)

var (
	ErrAccessDenied = errors.New("access denied")
	ErrNotJoined    = errors.New("connection has not joined the organization group")
)

func OrganizationGroup(organizationID int64) string {
	return fmt.Sprintf("org_%d", organizationID)
}

func ProjectGroup(projectID int64) string {
	return fmt.Sprintf("project_%d", projectID)
}

// Conn is a live connection owned by one user.
type Conn interface {
	event.Subscriber
	UserID() int64
	// Close terminates the connection. It must be safe to call more than once.
	Close()
}

// Store is the slice of the database the registry needs: access checks and liveness rows.
type Store interface {
	IsOrganizationMember(ctx context.Context, organizationID, userID int64) (bool, error)
	CanAccessProject(ctx context.Context, projectID, userID int64) (bool, error)
	UpsertWebsocketConnection(ctx context.Context, arg db.UpsertWebsocketConnectionParams) (db.WebsocketConnection, error)
	TouchWebsocketConnection(ctx context.Context, connectionID string, seenAt time.Time) error
	DeleteWebsocketConnection(ctx context.Context, connectionID string) (int64, error)
}

type entry struct {
	conn   Conn
	groups map[string]struct{}
}

// Registry owns group membership for every connection of this process. All membership
// changes happen under one lock, so a reader sees a group either before or after a
// join or leave, never in between.
type Registry struct {
	store Store

	mu     sync.RWMutex
	groups map[string]map[string]Conn
	conns  map[string]*entry
}

func New(store Store) *Registry {
	return &Registry{
		store:  store,
		groups: make(map[string]map[string]Conn),
		conns:  make(map[string]*entry),
	}
}

// JoinOrganization adds conn to the organization group if its user is a member.
func (r *Registry) JoinOrganization(ctx context.Context, conn Conn, organizationID int64) error {
	ok, err := r.store.IsOrganizationMember(ctx, organizationID, conn.UserID())
	if err != nil {
		return fmt.Errorf("failed to check organization access: %w", err)
	}
	if !ok {
		return ErrAccessDenied
	}

	r.join(conn, OrganizationGroup(organizationID))
	return nil
}

// JoinProject adds conn to the project group if the project belongs to an organization
// its user is a member of.
func (r *Registry) JoinProject(ctx context.Context, conn Conn, projectID int64) error {
	ok, err := r.store.CanAccessProject(ctx, projectID, conn.UserID())
	if err != nil {
		return fmt.Errorf("failed to check project access: %w", err)
	}
	if !ok {
		return ErrAccessDenied
	}

	r.join(conn, ProjectGroup(projectID))
	return nil
}

// join is idempotent.
func (r *Registry) join(conn Conn, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[conn.ID()]
	if !ok {
		e = &entry{conn: conn, groups: make(map[string]struct{})}
		r.conns[conn.ID()] = e
	}
	e.groups[group] = struct{}{}

	members, ok := r.groups[group]
	if !ok {
		members = make(map[string]Conn)
		r.groups[group] = members
	}
	members[conn.ID()] = conn
}

// Leave removes the connection from group. Leaving a group it is not in is a no-op.
func (r *Registry) Leave(connectionID, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(connectionID, group)
}

func (r *Registry) leaveLocked(connectionID, group string) {
	if e, ok := r.conns[connectionID]; ok {
		delete(e.groups, group)
	}
	if members, ok := r.groups[group]; ok {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(r.groups, group)
		}
	}
}

// Register persists or refreshes the liveness row. The connection must already be in the
// organization group.
func (r *Registry) Register(ctx context.Context, conn Conn, organizationID int64, projectID *int64) error {
	if !r.IsMember(conn.ID(), OrganizationGroup(organizationID)) {
		return ErrNotJoined
	}

	_, err := r.store.UpsertWebsocketConnection(ctx, db.UpsertWebsocketConnectionParams{
		UserID:         conn.UserID(),
		ConnectionID:   conn.ID(),
		OrganizationID: organizationID,
		ProjectID:      projectID,
	})
	if err != nil {
		return fmt.Errorf("failed to store connection: %w", err)
	}

	// A Deregister that ran during the upsert has already deleted the row; drop the one we wrote.
	if !r.IsMember(conn.ID(), OrganizationGroup(organizationID)) {
		if _, err = r.store.DeleteWebsocketConnection(ctx, conn.ID()); err != nil {
			return fmt.Errorf("failed to delete connection: %w", err)
		}
		return ErrNotJoined
	}
	return nil
}

// Touch refreshes last_seen of the liveness row.
func (r *Registry) Touch(ctx context.Context, connectionID string) error {
	return r.store.TouchWebsocketConnection(ctx, connectionID, db.Now())
}

// Deregister removes the connection from every group, closes it and deletes its liveness
// row. It is safe to call more than once.
func (r *Registry) Deregister(ctx context.Context, connectionID string) error {
	r.mu.Lock()
	e, ok := r.conns[connectionID]
	if ok {
		for group := range e.groups {
			r.leaveLocked(connectionID, group)
		}
		delete(r.conns, connectionID)
	}
	r.mu.Unlock()

	if ok {
		e.conn.Close()
	}

	if _, err := r.store.DeleteWebsocketConnection(ctx, connectionID); err != nil {
		return fmt.Errorf("failed to remove connection record: %w", err)
	}
	return nil
}

// CloseAll deregisters every tracked connection. It is called on shutdown.
func (r *Registry) CloseAll(ctx context.Context) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if err := r.Deregister(ctx, id); err != nil {
			log.Error().Err(err).Str("connection_id", id).Msg("failed to deregister connection on shutdown")
		}
	}
}

// MembersOf returns a snapshot of the connections currently in group.
func (r *Registry) MembersOf(group string) []event.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.groups[group]
	subs := make([]event.Subscriber, 0, len(members))
	for _, conn := range members {
		subs = append(subs, conn)
	}
	return subs
}

// Evict drops a connection the bus could not deliver to.
func (r *Registry) Evict(ctx context.Context, connectionID string) {
	if err := r.Deregister(ctx, connectionID); err != nil {
		log.Error().Err(err).Str("connection_id", connectionID).Msg("failed to evict connection")
	}
}

func (r *Registry) IsMember(connectionID, group string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.groups[group][connectionID]
	return ok
}

// GroupsOf returns the groups the connection is currently in.
func (r *Registry) GroupsOf(connectionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connectionID]
	if !ok {
		return nil
	}
	groups := make([]string, 0, len(e.groups))
	for group := range e.groups {
		groups = append(groups, group)
	}
	return groups
}

// Len returns the number of tracked connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}
