package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"
	"time"

	"github.com/goliatone/go-payments/core"
	paymentmigrations "github.com/goliatone/go-payments/migrations"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

func newMigratedSQLiteDB(t *testing.T) *bun.DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite3", fmt.Sprintf("file:payment-events-%d?mode=memory&cache=shared", time.Now().UnixNano()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	filesystems, err := paymentmigrations.Filesystems()
	if err != nil {
		t.Fatalf("migration filesystems: %v", err)
	}
	for _, fsys := range filesystems {
		if fsys.Dialect != paymentmigrations.DialectSQLite {
			continue
		}
		files, err := fs.Glob(fsys.FS, "*.up.sql")
		if err != nil {
			t.Fatalf("glob migrations: %v", err)
		}
		for _, name := range files {
			content, err := fs.ReadFile(fsys.FS, name)
			if err != nil {
				t.Fatalf("read %s: %v", name, err)
			}
			if _, err := db.ExecContext(context.Background(), string(content)); err != nil {
				t.Fatalf("apply %s: %v", name, err)
			}
		}
	}
	return db
}

// staleLookup reports the row as missing for the first misses calls, as a
// racing caller would see it before the other insert committed.
func staleLookup(store *PaymentEventStore, misses int) *int {
	calls := 0
	store.lookup = func(ctx context.Context, tx bun.Tx, eventID string) (*paymentEventRecord, error) {
		calls++
		if calls <= misses {
			return nil, nil
		}
		return store.findByEventIDTx(ctx, tx, eventID)
	}
	return &calls
}

func TestPaymentEventStore_UpsertRetriesLosingInsertAsPatch(t *testing.T) {
	ctx := context.Background()
	db := newMigratedSQLiteDB(t)
	store, err := NewPaymentEventStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	in := core.RecordPaymentEventInput{
		EventID:   "evt_race",
		Type:      core.EventTypeCheckoutSessionCompleted,
		SessionID: "cs_race",
	}

	winner, winnerCreated, err := store.Upsert(ctx, in)
	if err != nil {
		t.Fatalf("winning upsert: %v", err)
	}

	// the second caller read before the winner committed
	lookups := staleLookup(store, 1)
	loser, loserCreated, err := store.Upsert(ctx, in)
	if err != nil {
		t.Fatalf("losing upsert: %v", err)
	}
	if *lookups != 2 {
		t.Fatalf("expected the unique violation to trigger one retry, got %d lookups", *lookups)
	}

	if winnerCreated == loserCreated {
		t.Fatalf("expected exactly one caller to create, got winner=%v loser=%v", winnerCreated, loserCreated)
	}
	if loser.ID != winner.ID {
		t.Fatalf("expected the retry to patch row %q, got %q", winner.ID, loser.ID)
	}
	if loser.Deliveries != 2 {
		t.Fatalf("expected deliveries=2 after the retry, got %d", loser.Deliveries)
	}

	var rows int
	if err := db.NewRaw("SELECT COUNT(*) FROM payment_events WHERE event_id = ?", "evt_race").Scan(ctx, &rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one row for the event id, got %d", rows)
	}
	stored, err := store.GetByEventID(ctx, "evt_race")
	if err != nil {
		t.Fatalf("get stored event: %v", err)
	}
	if stored.Deliveries != 2 {
		t.Fatalf("expected persisted deliveries=2, got %d", stored.Deliveries)
	}
}

func TestPaymentEventStore_UpsertRetriesOnlyOnce(t *testing.T) {
	ctx := context.Background()
	db := newMigratedSQLiteDB(t)
	store, err := NewPaymentEventStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	in := core.RecordPaymentEventInput{EventID: "evt_stuck", Type: core.EventTypeCheckoutSessionCompleted}
	if _, _, err := store.Upsert(ctx, in); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}

	lookups := staleLookup(store, 2)
	if _, _, err := store.Upsert(ctx, in); err == nil || !isUniqueViolation(err) {
		t.Fatalf("expected the second unique violation to surface, got %v", err)
	}
	if *lookups != 2 {
		t.Fatalf("expected two attempts, got %d", *lookups)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	cases := map[string]bool{
		"UNIQUE constraint failed: payment_events.event_id":                         true,
		`pq: duplicate key value violates unique constraint "uq_payment_events_id"`: true,
		"database is locked": false,
	}
	for message, want := range cases {
		if got := isUniqueViolation(fmt.Errorf("%s", message)); got != want {
			t.Fatalf("isUniqueViolation(%q) = %v, want %v", message, got, want)
		}
	}
	if isUniqueViolation(nil) {
		t.Fatalf("expected nil error not to be a unique violation")
	}
}
