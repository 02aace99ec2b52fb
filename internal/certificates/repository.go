package certificates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ledger is the append-only record of issued certificates.
type Ledger interface {
	// Find returns nil without error when the enrollment has no certificate.
	Find(ctx context.Context, enrollmentID uuid.UUID) (*Certificate, error)
	// Create numbers and stores a certificate. It fails with ErrAlreadyExists
	// when another writer stored one for the same enrollment first.
	Create(ctx context.Context, draft Draft) (*Certificate, error)
	FindBySerial(ctx context.Context, serial string) (*Certificate, error)
	List(ctx context.Context, filter ListFilter) ([]Certificate, error)
}

type postgresLedger struct {
	db        *gorm.DB
	numbering *NumberingAuthority
	now       func() time.Time
}

// NewLedger returns a ledger on any gorm dialect that supports
// UPDATE ... RETURNING (Postgres, SQLite 3.35+).
func NewLedger(db *gorm.DB, numbering *NumberingAuthority) Ledger {
	return &postgresLedger{db: db, numbering: numbering, now: time.Now}
}

func (r *postgresLedger) Find(ctx context.Context, enrollmentID uuid.UUID) (*Certificate, error) {
	var cert Certificate
	err := r.db.WithContext(ctx).Where("enrollment_id = ?", enrollmentID).Take(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapStorageError(fmt.Errorf("failed to find certificate: %w", err))
	}
	return &cert, nil
}

func (r *postgresLedger) Create(ctx context.Context, draft Draft) (*Certificate, error) {
	cert := &Certificate{
		ID:                  uuid.New(),
		EnrollmentID:        draft.EnrollmentID,
		LearnerID:           draft.LearnerID,
		CourseID:            draft.CourseID,
		LearnerNameSnapshot: draft.LearnerName,
		IssuedAt:            r.now().UTC().Truncate(time.Microsecond),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		serial, err := r.numbering.Next(ctx, tx, draft, cert.IssuedAt)
		if err != nil {
			return err
		}
		cert.SerialNumber = serial
		return tx.Create(cert).Error
	})
	if err != nil {
		return nil, mapStorageError(err)
	}
	return cert, nil
}

func (r *postgresLedger) FindBySerial(ctx context.Context, serial string) (*Certificate, error) {
	var cert Certificate
	err := r.db.WithContext(ctx).Where("serial_number = ?", serial).Take(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapStorageError(fmt.Errorf("failed to find certificate by serial: %w", err))
	}
	return &cert, nil
}

func (r *postgresLedger) List(ctx context.Context, filter ListFilter) ([]Certificate, error) {
	query := r.db.WithContext(ctx).Model(&Certificate{})
	if filter.CourseID != nil {
		query = query.Where("course_id = ?", *filter.CourseID)
	}
	if filter.From != nil {
		query = query.Where("issued_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("issued_at < ?", *filter.To)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var certs []Certificate
	if err := query.Order("issued_at ASC, serial_number ASC").Find(&certs).Error; err != nil {
		return nil, mapStorageError(fmt.Errorf("failed to list certificates: %w", err))
	}
	return certs, nil
}
