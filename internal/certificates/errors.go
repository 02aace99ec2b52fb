package certificates

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrAuth             = errors.New("unauthorized")
	ErrNotEnrolled      = errors.New("not enrolled in this course")
	ErrIncompleteCourse = errors.New("course not completed")
	ErrStorage          = errors.New("storage failure")

	// Handled inside the service and never returned to callers.
	ErrNumberingConflict = errors.New("serial number already claimed")
	ErrAlreadyExists     = errors.New("certificate already exists for enrollment")
	ErrRenderAsset       = errors.New("background asset unavailable")

	ErrCertificateNotFound = errors.New("certificate not found")
	ErrInvalidRequest      = errors.New("invalid request")
)

// mapStorageError turns driver errors into ledger sentinels. Unique
// violations on the serial number mean another writer claimed the number;
// any other unique violation means the enrollment already has a certificate.
func mapStorageError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		if strings.Contains(pgErr.ConstraintName, "serial_number") {
			return fmt.Errorf("%w: %w", ErrNumberingConflict, err)
		}
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	}
	if errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrNumberingConflict) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}

// ClientMessage is the message returned to HTTP callers for err.
func ClientMessage(err error) string {
	switch {
	case errors.Is(err, ErrAuth):
		return "Unauthorized"
	case errors.Is(err, ErrNotEnrolled):
		return "Anda tidak terdaftar di kursus ini"
	case errors.Is(err, ErrIncompleteCourse):
		return "Kursus belum selesai"
	case errors.Is(err, ErrInvalidRequest):
		return "Permintaan tidak valid"
	case errors.Is(err, ErrCertificateNotFound):
		return "Sertifikat tidak ditemukan"
	default:
		return "Gagal membuat sertifikat"
	}
}
