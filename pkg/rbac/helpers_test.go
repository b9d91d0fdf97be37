package rbac

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/platinummonkey/taskboard/pkg/audit"
	"github.com/platinummonkey/taskboard/pkg/storage"
	"github.com/platinummonkey/taskboard/pkg/storage/sqlitetest"
)

type recordedDecision struct {
	gate    string
	outcome string
}

type fakeRecorder struct {
	mu         sync.Mutex
	decisions  []recordedDecision
	operations map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{operations: make(map[string]int)}
}

func (r *fakeRecorder) RecordAuthzDecision(gate, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, recordedDecision{gate: gate, outcome: outcome})
}

func (r *fakeRecorder) RecordMembershipOperation(operation, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations[operation+"/"+status]++
}

func (r *fakeRecorder) last() recordedDecision {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.decisions) == 0 {
		return recordedDecision{}
	}
	return r.decisions[len(r.decisions)-1]
}

type captureLogger struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
}

func (l *captureLogger) Log(ctx context.Context, event *audit.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *captureLogger) Close() error { return nil }

func (l *captureLogger) ofType(eventType audit.EventType) []*audit.AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*audit.AuditEvent
	for _, e := range l.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type testEngine struct {
	db       *sql.DB
	store    *SQLStore
	resolver *Resolver
	gate     *Gate
	members  *MembershipManager
	recorder *fakeRecorder
	audit    *captureLogger
}

func newTestEngine(t *testing.T, opts ...ResolverOption) *testEngine {
	t.Helper()

	db := sqlitetest.NewDB(t)
	store := NewStore(db)
	resolver := NewResolver(store, store, opts...)
	recorder := newFakeRecorder()
	logger := &captureLogger{}
	gate := NewGate(resolver, WithRecorder(recorder), WithAuditLogger(logger))

	return &testEngine{
		db:       db,
		store:    store,
		resolver: resolver,
		gate:     gate,
		members:  NewMembershipManager(gate, store, storage.NewTxManager(db)),
		recorder: recorder,
		audit:    logger,
	}
}

// user inserts an active user and returns its subject
func (e *testEngine) user(t *testing.T, name string, role SystemRole) Subject {
	t.Helper()
	id := sqlitetest.InsertUser(t, e.db, name, string(role))
	return Subject{UserID: id, SystemRole: role, Active: true}
}

// project inserts a project owned and created by owner, with its OWNER row
func (e *testEngine) project(t *testing.T, name string, owner Subject) int64 {
	t.Helper()
	id := sqlitetest.InsertProject(t, e.db, name, owner.UserID, owner.UserID)
	sqlitetest.InsertMembership(t, e.db, id, owner.UserID, string(RoleOwner))
	return id
}

func (e *testEngine) archive(t *testing.T, projectID int64) {
	t.Helper()
	if _, err := e.db.Exec(`UPDATE projects SET active = FALSE WHERE id = $1`, projectID); err != nil {
		t.Fatalf("Failed to archive project: %v", err)
	}
}
