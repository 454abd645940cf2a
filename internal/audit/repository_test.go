package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/museum-robotics/tourguide-core/internal/infrastructure/database"
	"github.com/museum-robotics/tourguide-core/migrations"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.OpenMigrated(context.Background(),
		database.Config{Path: filepath.Join(t.TempDir(), "audit.db"), BusyTimeout: 5},
		migrations.FS)
	if err != nil {
		t.Fatalf("OpenMigrated() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	repo := NewSQLiteRepository(db.DB)
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	n := 0
	repo.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
	return repo
}

func TestCreateAndList(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	entries := []*Entry{
		{Action: ActionConnect, UserID: "op-1", Source: SourceAPI},
		{Action: ActionStartTour, TourID: "tour-1", UserID: "op-1", Source: SourceAPI,
			Outcome: OutcomeOf(errors.New("timed out")), Details: map[string]any{"phase": "signal_sent"}},
		{Action: ActionMove, UserID: "op-2", Source: SourceDashboard, Details: map[string]any{"x": 1.5}},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create(%s) error = %v", e.Action, err)
		}
		if e.ID == "" || e.CreatedAt.IsZero() {
			t.Errorf("Create(%s) did not fill ID and CreatedAt", e.Action)
		}
	}

	got, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got.Total != 3 || len(got.Entries) != 3 || got.Limit != defaultLimit {
		t.Fatalf("List() = total %d, %d entries, limit %d", got.Total, len(got.Entries), got.Limit)
	}
	if got.Entries[0].Action != ActionMove || got.Entries[2].Action != ActionConnect {
		t.Errorf("List() order = %s..%s, want most recent first", got.Entries[0].Action, got.Entries[2].Action)
	}

	start := got.Entries[1]
	if start.Outcome != OutcomeFailed || start.TourID != "tour-1" || start.Details["phase"] != "signal_sent" {
		t.Errorf("tour start entry = %+v", start)
	}
	if got.Entries[2].Outcome != OutcomeOK || got.Entries[2].TourID != "" {
		t.Errorf("connect entry = %+v", got.Entries[2])
	}
}

func TestList_Filter(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	for _, e := range []*Entry{
		{Action: ActionSendAudio, TourID: "a", UserID: "op-1", Source: SourceAPI},
		{Action: ActionStartTour, TourID: "a", UserID: "op-1", Source: SourceCLI},
		{Action: ActionStartTour, TourID: "b", UserID: "op-2", Source: SourceAPI},
	} {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by action", Filter{Action: ActionStartTour}, 2},
		{"by tour", Filter{TourID: "a"}, 2},
		{"by user and action", Filter{UserID: "op-1", Action: ActionStartTour}, 1},
		{"no match", Filter{UserID: "nobody"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if got.Total != tt.want || len(got.Entries) != tt.want {
				t.Errorf("List() total = %d, entries = %d, want %d", got.Total, len(got.Entries), tt.want)
			}
		})
	}
}

func TestList_Paging(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	for range 5 {
		if err := repo.Create(ctx, &Entry{Action: ActionStream, Source: SourceCLI}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got.Total != 5 || len(got.Entries) != 1 {
		t.Errorf("List() total = %d, entries = %d, want 5 and 1", got.Total, len(got.Entries))
	}

	got, err = repo.List(ctx, Filter{Limit: 1000, Offset: -3})
	if err != nil {
		t.Fatal(err)
	}
	if got.Limit != maxLimit || got.Offset != 0 {
		t.Errorf("List() limit = %d offset = %d, want clamped", got.Limit, got.Offset)
	}
}

func TestCreate_RequiresActionAndSource(t *testing.T) {
	repo := setupRepo(t)
	if err := repo.Create(context.Background(), &Entry{Action: ActionMove}); err == nil {
		t.Error("Create() without source succeeded")
	}
	if err := repo.Create(context.Background(), &Entry{Source: SourceAPI}); err == nil {
		t.Error("Create() without action succeeded")
	}
}
