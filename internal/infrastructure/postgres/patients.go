package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/drfirst/go-dispense/internal/domain/patient"
)

const patientColumns = `id, name, ward_number, bed_number, rfid_card_number,
		       prescriptions, distribution_status, created_at`

// PatientRepository stores patients in the patients table. Prescriptions and
// distribution status are jsonb documents so each mutation is one UPDATE.
type PatientRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ patient.Repository = (*PatientRepository)(nil)

// NewPatientRepository creates a new repository
func NewPatientRepository(pool *pgxpool.Pool, logger *zap.Logger) *PatientRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientRepository{pool: pool, logger: logger}
}

// Create inserts a newly registered patient
func (r *PatientRepository) Create(ctx context.Context, p *patient.Patient) error {
	query := `
		INSERT INTO patients (id, name, ward_number, bed_number, rfid_card_number,
		                      prescriptions, distribution_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		p.ID, p.Name, p.WardNumber, p.BedNumber, p.RFIDCardNumber,
		patient.CopyPrescriptions(p.Prescriptions), p.DistributionStatus, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

// Get returns a patient by id
func (r *PatientRepository) Get(ctx context.Context, id string) (*patient.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id), id)
}

// List returns every patient in registration order
func (r *PatientRepository) List(ctx context.Context) ([]*patient.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients ORDER BY seq ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()

	patients := []*patient.Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

// ReplacePrescriptions swaps the prescription document in one statement
func (r *PatientRepository) ReplacePrescriptions(ctx context.Context, id string, prescriptions []patient.Prescription) (*patient.Patient, error) {
	query := `
		UPDATE patients
		SET prescriptions = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + patientColumns

	return r.scanOne(r.pool.QueryRow(ctx, query, id, patient.CopyPrescriptions(prescriptions)), id)
}

// MarkCompleted sets one round's flag to Yes without touching the others
func (r *PatientRepository) MarkCompleted(ctx context.Context, id string, t patient.TimeOfDay) (*patient.Patient, error) {
	query := `
		UPDATE patients
		SET distribution_status = jsonb_set(distribution_status, ARRAY[$2::text], to_jsonb($3::text)),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + patientColumns

	p, err := r.scanOne(r.pool.QueryRow(ctx, query, id, string(t), string(patient.FlagYes)), id)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("distribution completed",
		zap.String("patient_id", id),
		zap.String("time", string(t)))
	return p, nil
}

func (r *PatientRepository) scanOne(row pgx.Row, id string) (*patient.Patient, error) {
	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &patient.NotFoundError{ID: id}
		}
		return nil, fmt.Errorf("scan patient %s: %w", id, err)
	}
	return p, nil
}

func scanPatient(row pgx.Row) (*patient.Patient, error) {
	p := &patient.Patient{}
	err := row.Scan(
		&p.ID, &p.Name, &p.WardNumber, &p.BedNumber, &p.RFIDCardNumber,
		&p.Prescriptions, &p.DistributionStatus, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Prescriptions = patient.CopyPrescriptions(p.Prescriptions)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}
