package certificates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FormatSerial builds PREFIX-YYYY-CCCCCCLLLLLL-NNNNNN from the first six hex
// digits of the course and learner IDs and the sequence value.
func FormatSerial(prefix string, year int, courseID, learnerID uuid.UUID, seq int64) string {
	return fmt.Sprintf("%s-%d-%s%s-%06d", prefix, year, shortID(courseID), shortID(learnerID), seq)
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:6])
}

// sequenceName scopes the counter to a prefix and issuance year.
func sequenceName(prefix string, year int) string {
	return fmt.Sprintf("%s-%d", prefix, year)
}

// NumberingAuthority assigns serial numbers from a counter row that is bumped
// inside the caller's insert transaction, so a rolled back insert also
// returns its number.
type NumberingAuthority struct {
	prefix string
}

func NewNumberingAuthority(prefix string) *NumberingAuthority {
	return &NumberingAuthority{prefix: prefix}
}

// Next must be called with the transaction that will insert the certificate.
func (n *NumberingAuthority) Next(ctx context.Context, tx *gorm.DB, draft Draft, issuedAt time.Time) (string, error) {
	year := issuedAt.UTC().Year()
	name := sequenceName(n.prefix, year)
	tx = tx.WithContext(ctx)

	err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&CertificateSequence{Name: name}).Error
	if err != nil {
		return "", fmt.Errorf("failed to initialise sequence %s: %w", name, err)
	}

	var value int64
	err = tx.Raw("UPDATE certificate_sequences SET value = value + 1 WHERE name = ? RETURNING value", name).
		Scan(&value).Error
	if err != nil {
		return "", fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}
	if value == 0 {
		return "", fmt.Errorf("sequence %s did not advance", name)
	}

	return FormatSerial(n.prefix, year, draft.CourseID, draft.LearnerID, value), nil
}
