package postgres

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"roombooker/backend/internal/domain"
	"roombooker/backend/internal/store"
)

func TestPostgresIntegration_BookingUpsertAndRoomListing(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("ROOMBOOKER_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("ROOMBOOKER_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "roombooker_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewRaw("SET LOCAL search_path TO " + schema).Exec(ctx); err != nil {
			return err
		}
		if err := applyMigrations(ctx, tx); err != nil {
			return err
		}
		if err := lockOrg(ctx, tx, "org1"); err != nil {
			return err
		}

		b := bookingTx{tx: tx}
		start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

		a, err := b.UpsertBooking(ctx, domain.Booking{
			OrgID:          "org1",
			ID:             "a",
			RoomID:         "room1",
			RoomName:       "Room A",
			EventName:      "Standup",
			Status:         domain.BookingStatusConfirmed,
			EventStartTime: start,
			EventEndTime:   start.Add(time.Hour),
			RecurrencePattern: &domain.RecurrencePattern{
				Frequency: domain.FrequencyWeekly,
				Weekdays:  []domain.Weekday{domain.Monday},
			},
			RecurrenceOverrides: domain.Overrides{
				{Year: 2026, Month: time.January, Day: 12}: nil,
			},
		})
		if err != nil {
			return err
		}
		if a.CreatedAt.IsZero() || a.UpdatedAt.IsZero() {
			return fmt.Errorf("timestamps not set: %+v", a)
		}

		got, err := b.GetBooking(ctx, "org1", "a")
		if err != nil {
			return err
		}
		if got.RecurrencePattern == nil || len(got.RecurrencePattern.Weekdays) != 1 {
			return fmt.Errorf("pattern round trip = %+v", got.RecurrencePattern)
		}
		if res := got.RecurrenceOverrides.Resolve(domain.DateKey{Year: 2026, Month: time.January, Day: 12}); res.State != domain.OccurrenceCancelled {
			return fmt.Errorf("cancellation lost: %+v", got.RecurrenceOverrides)
		}

		for _, bk := range []domain.Booking{
			{OrgID: "org1", ID: "b", RoomID: "room1", Status: domain.BookingStatusPending, EventStartTime: start, EventEndTime: start.Add(30 * time.Minute)},
			{OrgID: "org1", ID: "c", RoomID: "room1", Status: domain.BookingStatusDenied, EventStartTime: start, EventEndTime: start.Add(30 * time.Minute)},
			{OrgID: "org1", ID: "d", RoomID: "room2", Status: domain.BookingStatusPending, EventStartTime: start, EventEndTime: start.Add(30 * time.Minute)},
		} {
			if _, err := b.UpsertBooking(ctx, bk); err != nil {
				return err
			}
		}

		room, err := b.ListRoomBookings(ctx, "org1", "room1")
		if err != nil {
			return err
		}
		if len(room) != 2 {
			return fmt.Errorf("len(room bookings) = %d, want 2", len(room))
		}

		if _, err := tx.NewRaw("SAVEPOINT bad_booking").Exec(ctx); err != nil {
			return err
		}
		_, err = b.UpsertBooking(ctx, domain.Booking{OrgID: "org1", ID: "bad", RoomID: "room1", Status: domain.BookingStatusPending, EventStartTime: start, EventEndTime: start})
		if !errors.Is(err, domain.ErrInvalidInstant) {
			return fmt.Errorf("time order err = %v, want %v", err, domain.ErrInvalidInstant)
		}
		_, err = tx.NewRaw("ROLLBACK TO SAVEPOINT bad_booking").Exec(ctx)
		return err
	})
	if err != nil {
		t.Fatalf("tx error: %v", err)
	}
}

func TestPostgresIntegration_OverlapRecordsAreMirrored(t *testing.T) {
	databaseURL := strings.TrimSpace(os.Getenv("ROOMBOOKER_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("ROOMBOOKER_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(ctx, databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})

	schema := "roombooker_test_" + randomHex(t, 8)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = db.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
	})

	if _, err := db.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	if _, err := db.NewRaw("SET search_path TO " + schema).Exec(ctx); err != nil {
		t.Fatalf("set search_path: %v", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		t.Fatalf("applyMigrations: %v", err)
	}

	repo := NewBookingRepo(db)
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	forward := domain.OverlapRecord{
		BookingID1: "a",
		BookingID2: "b",
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		StartTime2: start.Add(30 * time.Minute),
		EndTime2:   start.Add(90 * time.Minute),
		RoomID:     "room1",
	}

	err = repo.InOrgTransaction(ctx, "org1", func(ctx context.Context, tx store.BookingTx) error {
		if err := tx.ReplaceOverlaps(ctx, "org1", "a", []domain.OverlapRecord{forward}); err != nil {
			return err
		}
		return tx.EnqueueMail(ctx, []domain.MailMessage{{OrgID: "org1", BookingID: "a", To: "x@example.com", Subject: "s", Text: "t"}})
	})
	if err != nil {
		t.Fatalf("InOrgTransaction error: %v", err)
	}

	fromB, err := repo.ListOverlaps(ctx, "org1", "b")
	if err != nil {
		t.Fatalf("ListOverlaps error: %v", err)
	}
	if len(fromB) != 1 || !sameRecord(fromB[0], forward.Mirror()) {
		t.Fatalf("overlaps for b = %+v, want mirror of %+v", fromB, forward)
	}

	err = repo.InOrgTransaction(ctx, "org1", func(ctx context.Context, tx store.BookingTx) error {
		return tx.DeleteOverlaps(ctx, "org1", "b")
	})
	if err != nil {
		t.Fatalf("DeleteOverlaps error: %v", err)
	}
	fromA, err := repo.ListOverlaps(ctx, "org1", "a")
	if err != nil {
		t.Fatalf("ListOverlaps error: %v", err)
	}
	if len(fromA) != 0 {
		t.Fatalf("len(overlaps for a) = %d, want 0", len(fromA))
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}

type rawExecutor interface {
	NewRaw(query string, args ...any) *bun.RawQuery
}

func applyMigrations(ctx context.Context, exec rawExecutor) error {
	dir, err := migrationsDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type mig struct {
		name string
		path string
	}
	migs := make([]mig, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		migs = append(migs, mig{name: e.Name(), path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].name < migs[j].name })

	for _, m := range migs {
		b, err := os.ReadFile(m.path)
		if err != nil {
			return err
		}
		upSQL, err := extractGooseUp(string(b))
		if err != nil {
			return err
		}
		stmts := splitSQLStatements(upSQL)
		for _, stmt := range stmts {
			if _, err := exec.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

func migrationsDir() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("runtime.Caller failed")
	}
	base := filepath.Dir(file)
	return filepath.Clean(filepath.Join(base, "..", "..", "..", "migrations")), nil
}

func extractGooseUp(sql string) (string, error) {
	upMarker := "-- +goose Up"
	downMarker := "-- +goose Down"

	upIdx := strings.Index(sql, upMarker)
	if upIdx < 0 {
		return "", fmt.Errorf("missing goose up marker")
	}
	afterUp := sql[upIdx+len(upMarker):]
	afterUp = strings.TrimLeft(afterUp, "\r\n")

	downIdx := strings.Index(afterUp, downMarker)
	if downIdx < 0 {
		return strings.TrimSpace(afterUp), nil
	}
	return strings.TrimSpace(afterUp[:downIdx]), nil
}

func splitSQLStatements(sql string) []string {
	parts := strings.Split(sql, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
