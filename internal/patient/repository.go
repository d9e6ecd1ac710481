package patient

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pulsecare/platform/internal/shared/errors"
	"github.com/pulsecare/platform/internal/shared/types"
)

// Repository provides database operations for patients
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new patient repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create persists a new patient
func (r *Repository) Create(ctx context.Context, p *Patient) error {
	if p.ID.IsZero() {
		p.ID = types.NewID()
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO patients (
			id, first_name, last_name, date_of_birth, phone, email,
			emergency_contact_name, emergency_contact_phone,
			device_id, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Phone, p.Email,
		p.EmergencyContactName, p.EmergencyContactPhone,
		p.DeviceID, p.Status, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create patient")
	}

	return nil
}

// Update persists changes to an existing patient
func (r *Repository) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE patients SET
			first_name = $2, last_name = $3, date_of_birth = $4,
			phone = $5, email = $6,
			emergency_contact_name = $7, emergency_contact_phone = $8,
			device_id = $9, status = $10, updated_at = $11
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth,
		p.Phone, p.Email,
		p.EmergencyContactName, p.EmergencyContactPhone,
		p.DeviceID, p.Status, p.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update patient")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("patient", p.ID.String())
	}

	return nil
}

// GetByID returns one patient
func (r *Repository) GetByID(ctx context.Context, id types.ID) (*Patient, error) {
	query := selectPatient + ` WHERE id = $1`

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query patient")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, errors.NotFound("patient", id.String())
	}

	p, err := scanPatient(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByDevice returns the patient paired with a device
func (r *Repository) GetByDevice(ctx context.Context, deviceID string) (*Patient, error) {
	query := selectPatient + ` WHERE device_id = $1 AND status = 'active'`

	rows, err := r.pool.Query(ctx, query, deviceID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query patient by device")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, errors.NotFound("patient", deviceID)
	}

	p, err := scanPatient(rows)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActive returns every active patient, ordered by name
func (r *Repository) ListActive(ctx context.Context) ([]Patient, error) {
	query := selectPatient + ` WHERE status = 'active' ORDER BY last_name, first_name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list patients")
	}
	defer rows.Close()

	var patients []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}

	return patients, rows.Err()
}

const selectPatient = `
	SELECT id, first_name, last_name, date_of_birth,
		COALESCE(phone, ''), COALESCE(email, ''),
		COALESCE(emergency_contact_name, ''), COALESCE(emergency_contact_phone, ''),
		COALESCE(device_id, ''), status, created_at, updated_at
	FROM patients`

func scanPatient(rows pgx.Rows) (Patient, error) {
	var p Patient
	err := rows.Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Phone, &p.Email,
		&p.EmergencyContactName, &p.EmergencyContactPhone,
		&p.DeviceID, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return Patient{}, errors.Wrap(err, "failed to scan patient")
	}
	return p, nil
}
