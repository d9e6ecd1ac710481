package vitals

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsecare/platform/internal/shared/errors"
	"github.com/pulsecare/platform/internal/shared/types"
)

// Repository provides database operations for vital records
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new vitals repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save persists a new vital record. Records are append-only; there is no
// update path.
func (r *Repository) Save(ctx context.Context, v *VitalRecord) error {
	query := `
		INSERT INTO vital_records (
			id, subject_id, heart_rate, bp_systolic, bp_diastolic,
			oxygen_saturation, body_temperature, steps, sleep_hours,
			recorded_at, source, quality_confidence, supersedes_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, query,
		v.ID, v.SubjectID, v.HeartRate, v.BPSystolic, v.BPDiastolic,
		v.OxygenSaturation, v.BodyTemperature, v.Steps, v.SleepHours,
		v.RecordedAt, v.Source, v.QualityConfidence, v.SupersedesID, v.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save vital record")
	}

	return nil
}

// ListBySubject returns a subject's records within a time range, ordered
// by ascending recorded time.
func (r *Repository) ListBySubject(ctx context.Context, subjectID types.ID, from, to time.Time) ([]VitalRecord, error) {
	query := `
		SELECT id, subject_id, heart_rate, bp_systolic, bp_diastolic,
			oxygen_saturation, body_temperature, steps, sleep_hours,
			recorded_at, source, quality_confidence, supersedes_id, created_at
		FROM vital_records
		WHERE subject_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at ASC`

	rows, err := r.pool.Query(ctx, query, subjectID, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list vital records")
	}
	defer rows.Close()

	var records []VitalRecord
	for rows.Next() {
		v, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, v)
	}

	return records, rows.Err()
}

// LatestBySubject returns the most recent record for a subject
func (r *Repository) LatestBySubject(ctx context.Context, subjectID types.ID) (*VitalRecord, error) {
	query := `
		SELECT id, subject_id, heart_rate, bp_systolic, bp_diastolic,
			oxygen_saturation, body_temperature, steps, sleep_hours,
			recorded_at, source, quality_confidence, supersedes_id, created_at
		FROM vital_records
		WHERE subject_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1`

	rows, err := r.pool.Query(ctx, query, subjectID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query latest vital record")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, errors.NotFound("vital record", subjectID.String())
	}

	v, err := scanRecord(rows)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func scanRecord(rows pgx.Rows) (VitalRecord, error) {
	var v VitalRecord
	err := rows.Scan(
		&v.ID, &v.SubjectID, &v.HeartRate, &v.BPSystolic, &v.BPDiastolic,
		&v.OxygenSaturation, &v.BodyTemperature, &v.Steps, &v.SleepHours,
		&v.RecordedAt, &v.Source, &v.QualityConfidence, &v.SupersedesID, &v.CreatedAt,
	)
	if err != nil {
		return VitalRecord{}, errors.Wrap(err, "failed to scan vital record")
	}
	return v, nil
}
