package tour

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository defines tour persistence operations.
type Repository interface {
	Create(ctx context.Context, t *Tour) error
	Get(ctx context.Context, id string) (*Tour, error)
	List(ctx context.Context) ([]Tour, error)
	SetPOIAudio(ctx context.Context, tourID, poiKey, audioFile string) error
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a SQLite-backed tour repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Create normalises, validates and stores a tour with its POIs. An empty ID
// is assigned a UUID.
func (r *SQLiteRepository) Create(ctx context.Context, t *Tour) error {
	Normalise(t)
	if err := Validate(t); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := r.now().UTC().Truncate(time.Second)
	t.CreatedAt, t.UpdatedAt = now, now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	const insertTour = `INSERT INTO tours (id, title, description, language,
		group_avg_age, max_group_size, start_at, end_at, duration_min, all_day,
		audio_generated, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insertTour,
		t.ID, t.Title, t.Description, t.Language,
		t.GroupAvgAge, t.MaxGroupSize, formatTime(t.Start), formatTime(t.End),
		t.DurationMinutes, t.AllDay, t.AudioGenerated, t.CreatedBy,
		formatTime(now), formatTime(now),
	); err != nil {
		return fmt.Errorf("inserting tour %s: %w", t.ID, err)
	}

	const insertPOI = `INSERT INTO tour_pois (tour_id, seq, poi_key, name, description,
		x, y, orientation_z, orientation_w, audio_file)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for i, p := range t.POIs {
		if _, err := tx.ExecContext(ctx, insertPOI,
			t.ID, i+1, p.Key, p.Name, p.Description,
			p.Pose.X, p.Pose.Y, p.Pose.OrientationZ, p.Pose.OrientationW,
			nullStr(p.AudioFile),
		); err != nil {
			return fmt.Errorf("inserting poi %s of tour %s: %w", p.Key, t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing tour %s: %w", t.ID, err)
	}
	return nil
}

const selectTour = `SELECT id, title, description, language, group_avg_age,
	max_group_size, start_at, end_at, duration_min, all_day, audio_generated,
	created_by, created_at, updated_at FROM tours`

// Get returns a tour with its POIs in order.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Tour, error) {
	t, err := scanTour(r.db.QueryRowContext(ctx, selectTour+" WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	pois, err := r.pois(ctx, id)
	if err != nil {
		return nil, err
	}
	t.POIs = pois
	return t, nil
}

// List returns all tours ordered by start time, each with its POIs.
func (r *SQLiteRepository) List(ctx context.Context) ([]Tour, error) {
	rows, err := r.db.QueryContext(ctx, selectTour+" ORDER BY start_at, title")
	if err != nil {
		return nil, fmt.Errorf("querying tours: %w", err)
	}
	defer rows.Close()

	var tours []Tour
	for rows.Next() {
		t, err := scanTour(rows)
		if err != nil {
			return nil, err
		}
		tours = append(tours, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tour rows: %w", err)
	}
	rows.Close()

	for i := range tours {
		pois, err := r.pois(ctx, tours[i].ID)
		if err != nil {
			return nil, err
		}
		tours[i].POIs = pois
	}
	return tours, nil
}

// SetPOIAudio assigns narration to one POI and refreshes the tour's
// audio-generated flag. An empty audioFile clears the assignment.
func (r *SQLiteRepository) SetPOIAudio(ctx context.Context, tourID, poiKey, audioFile string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	res, err := tx.ExecContext(ctx,
		`UPDATE tour_pois SET audio_file = ? WHERE tour_id = ? AND poi_key = ?`,
		nullStr(audioFile), tourID, poiKey)
	if err != nil {
		return fmt.Errorf("updating poi %s audio: %w", poiKey, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows affected
		if _, err := scanTour(tx.QueryRowContext(ctx, selectTour+" WHERE id = ?", tourID)); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrPOINotFound, poiKey)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE tours SET
		audio_generated = NOT EXISTS (SELECT 1 FROM tour_pois WHERE tour_id = ? AND audio_file IS NULL),
		updated_at = ? WHERE id = ?`,
		tourID, formatTime(r.now().UTC()), tourID); err != nil {
		return fmt.Errorf("updating tour %s: %w", tourID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing poi audio: %w", err)
	}
	return nil
}

// Delete removes a tour and its POIs.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tours WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting tour %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows affected
		return ErrTourNotFound
	}
	return nil
}

func (r *SQLiteRepository) pois(ctx context.Context, tourID string) ([]POI, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT poi_key, name, description, x, y,
		orientation_z, orientation_w, audio_file
		FROM tour_pois WHERE tour_id = ? ORDER BY seq`, tourID)
	if err != nil {
		return nil, fmt.Errorf("querying pois of tour %s: %w", tourID, err)
	}
	defer rows.Close()

	pois := []POI{}
	for rows.Next() {
		var p POI
		var audio sql.NullString
		if err := rows.Scan(&p.Key, &p.Name, &p.Description, &p.Pose.X, &p.Pose.Y,
			&p.Pose.OrientationZ, &p.Pose.OrientationW, &audio); err != nil {
			return nil, fmt.Errorf("scanning poi row: %w", err)
		}
		p.AudioFile = audio.String
		pois = append(pois, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating poi rows: %w", err)
	}
	return pois, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTour(row rowScanner) (*Tour, error) {
	var t Tour
	var start, end, createdAt, updatedAt string

	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Language, &t.GroupAvgAge,
		&t.MaxGroupSize, &start, &end, &t.DurationMinutes, &t.AllDay, &t.AudioGenerated,
		&t.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTourNotFound
		}
		return nil, fmt.Errorf("scanning tour: %w", err)
	}
	t.Start = parseTime(start)
	t.End = parseTime(end)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a stored RFC3339 timestamp; malformed values become zero.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
