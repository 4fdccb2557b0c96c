package store

import (
	"database/sql"
	"errors"
	"time"
)

// CheckIn is a journaled session outcome.
type CheckIn struct {
	ID             string
	Identity       string
	Matched        bool
	Reason         string
	Detail         string
	Distance       float64
	Latitude       *float64
	Longitude      *float64
	LocationReason string
	Submitted      bool
	SubmitError    string
	StartedAt      time.Time
	EndedAt        time.Time
}

// CheckInRepository provides CRUD operations for check-ins.
type CheckInRepository struct {
	db *sql.DB
}

// CheckIns returns the check-in repository for this store.
func (s *Store) CheckIns() *CheckInRepository {
	return &CheckInRepository{db: s.db}
}

const checkInColumns = `id, identity, matched, reason, detail, distance, latitude, longitude,
	location_reason, submitted, submit_error, started_at, ended_at`

// Create inserts a new check-in.
func (r *CheckInRepository) Create(c *CheckIn) error {
	_, err := r.db.Exec(
		`INSERT INTO checkins (`+checkInColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Identity, c.Matched, c.Reason, c.Detail, c.Distance,
		nullFloat(c.Latitude), nullFloat(c.Longitude),
		c.LocationReason, c.Submitted, c.SubmitError, c.StartedAt.UTC(), c.EndedAt.UTC(),
	)
	return err
}

// GetByID retrieves a check-in by its ID.
func (r *CheckInRepository) GetByID(id string) (*CheckIn, error) {
	row := r.db.QueryRow(`SELECT `+checkInColumns+` FROM checkins WHERE id = ?`, id)
	c, err := scanCheckIn(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// List returns the most recent check-ins, newest first. A non-positive
// limit returns all of them.
func (r *CheckInRepository) List(limit int) ([]*CheckIn, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.Query(
		`SELECT `+checkInColumns+` FROM checkins ORDER BY ended_at DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var checkIns []*CheckIn
	for rows.Next() {
		c, err := scanCheckIn(rows)
		if err != nil {
			return nil, err
		}
		checkIns = append(checkIns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return checkIns, nil
}

// MarkSubmitted records the outcome of the attendance submission. A nil
// submitErr marks the check-in as submitted.
func (r *CheckInRepository) MarkSubmitted(id string, submitErr error) error {
	submitted, msg := true, ""
	if submitErr != nil {
		submitted, msg = false, submitErr.Error()
	}

	result, err := r.db.Exec(
		`UPDATE checkins SET submitted = ?, submit_error = ? WHERE id = ?`,
		submitted, msg, id,
	)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

// Delete removes a check-in by its ID.
func (r *CheckInRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM checkins WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckIn(row rowScanner) (*CheckIn, error) {
	c := &CheckIn{}
	var lat, lon sql.NullFloat64
	var matched, submitted int

	err := row.Scan(&c.ID, &c.Identity, &matched, &c.Reason, &c.Detail, &c.Distance,
		&lat, &lon, &c.LocationReason, &submitted, &c.SubmitError, &c.StartedAt, &c.EndedAt)
	if err != nil {
		return nil, err
	}

	c.Matched = matched != 0
	c.Submitted = submitted != 0
	if lat.Valid {
		c.Latitude = &lat.Float64
	}
	if lon.Valid {
		c.Longitude = &lon.Float64
	}
	return c, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func expectOneRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
