package his

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/pulsecare/platform/internal/patient"
	"github.com/pulsecare/platform/internal/shared/config"
	"github.com/pulsecare/platform/internal/shared/errors"
	"github.com/pulsecare/platform/internal/shared/types"
	"go.uber.org/zap"
)

// profileCacheTTL bounds how stale a cached profile may be. Profiles
// change on the order of days; minutes of staleness is fine.
const profileCacheTTL = 10 * time.Minute

// Adapter reads patient clinical profiles from the legacy hospital
// information system (SQL Server). The portal treats the HIS as
// read-only and optional: a lookup failure degrades classification to
// profile-free, it never blocks ingestion.
type Adapter struct {
	db     *sql.DB
	cfg    config.HISConfig
	logger *zap.Logger

	mu    sync.Mutex
	cache map[types.ID]cachedProfile
}

type cachedProfile struct {
	profile *patient.Profile
	expires time.Time
}

// New connects to the HIS and verifies connectivity
func New(ctx context.Context, cfg config.HISConfig, logger *zap.Logger) (*Adapter, error) {
	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password)
	if cfg.SSLMode != "disable" {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open HIS connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping HIS: %w", err)
	}

	return &Adapter{
		db:     db,
		cfg:    cfg,
		logger: logger,
		cache:  make(map[types.ID]cachedProfile),
	}, nil
}

// Close closes the HIS connection
func (a *Adapter) Close() error {
	return a.db.Close()
}

// Health checks HIS connectivity
func (a *Adapter) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// ProfileByPatient returns the clinical profile for one patient, built
// from the HIS demographics row plus any active diagnoses.
func (a *Adapter) ProfileByPatient(ctx context.Context, patientID types.ID) (*patient.Profile, error) {
	if cached := a.lookup(patientID); cached != nil {
		return cached, nil
	}

	profile := &patient.Profile{PatientID: patientID}

	var dob sql.NullTime
	var sex sql.NullString
	var baselineHR, baselineSys sql.NullInt32

	err := a.db.QueryRowContext(ctx, `
		SELECT DateOfBirth, Sex, BaselineHeartRate, BaselineSystolic
		FROM dbo.PortalPatients
		WHERE PortalPatientID = @id`,
		sql.Named("id", patientID.String()),
	).Scan(&dob, &sex, &baselineHR, &baselineSys)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("patient profile", patientID.String())
		}
		return nil, errors.DependencyUnavailable("hospital information system", err)
	}

	if dob.Valid {
		profile.Age = yearsSince(dob.Time)
	}
	if sex.Valid {
		profile.Sex = sex.String
	}
	if baselineHR.Valid {
		hr := int(baselineHR.Int32)
		profile.BaselineHeartRate = &hr
	}
	if baselineSys.Valid {
		sys := int(baselineSys.Int32)
		profile.BaselineBPSystolic = &sys
	}

	conditions, err := a.activeConditions(ctx, patientID)
	if err != nil {
		// Demographics alone are still useful.
		a.logger.Warn("failed to load HIS conditions",
			zap.String("patient_id", patientID.String()), zap.Error(err))
	} else {
		profile.Conditions = conditions
	}

	a.store(patientID, profile)
	return profile, nil
}

func (a *Adapter) activeConditions(ctx context.Context, patientID types.ID) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT d.ICD10Code, d.Description
		FROM dbo.Diagnoses d
		INNER JOIN dbo.PortalPatients p ON d.PatientID = p.PatientID
		WHERE p.PortalPatientID = @id AND d.ResolvedAt IS NULL
		ORDER BY d.DiagnosedAt DESC`,
		sql.Named("id", patientID.String()),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conditions []string
	for rows.Next() {
		var code string
		var description sql.NullString
		if err := rows.Scan(&code, &description); err != nil {
			return nil, err
		}
		if description.Valid && description.String != "" {
			conditions = append(conditions, fmt.Sprintf("%s (%s)", description.String, code))
		} else {
			conditions = append(conditions, code)
		}
	}

	return conditions, rows.Err()
}

func (a *Adapter) lookup(patientID types.ID) *patient.Profile {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.cache[patientID]
	if !ok || time.Now().After(entry.expires) {
		delete(a.cache, patientID)
		return nil
	}
	return entry.profile
}

func (a *Adapter) store(patientID types.ID, profile *patient.Profile) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache[patientID] = cachedProfile{profile: profile, expires: time.Now().Add(profileCacheTTL)}
}

func yearsSince(dob time.Time) int {
	now := time.Now()
	years := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
