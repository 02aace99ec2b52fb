package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/internal/certificates"
)

// Columns is the fixed column order of a ledger export.
var Columns = []string{"serial_number", "learner_name", "course_title", "course_id", "learner_id", "enrollment_id", "issued_at"}

// Row is one issued certificate in an audit export.
type Row struct {
	SerialNumber string
	LearnerName  string
	CourseTitle  string
	CourseID     uuid.UUID
	LearnerID    uuid.UUID
	EnrollmentID uuid.UUID
	IssuedAt     time.Time
}

func (r Row) values() []interface{} {
	return []interface{}{
		r.SerialNumber,
		r.LearnerName,
		r.CourseTitle,
		r.CourseID.String(),
		r.LearnerID.String(),
		r.EnrollmentID.String(),
		r.IssuedAt,
	}
}

// Format selects the output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts csv, xlsx and excel in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// Writer encodes rows to w.
type Writer interface {
	Write(w io.Writer, rows []Row) error
}

// NewWriter returns the default writer for format.
func NewWriter(format Format) (Writer, error) {
	switch format {
	case FormatCSV:
		return csvWriter{options: DefaultCSVOptions()}, nil
	case FormatXLSX:
		return excelWriter{options: DefaultExcelOptions()}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// Source is the read side of the ledger needed for an export.
type Source struct {
	Ledger      certificates.Ledger
	Enrollments certificates.EnrollmentDirectory
}

// Collect lists certificates matching filter and resolves each course title once.
func (s Source) Collect(ctx context.Context, filter certificates.ListFilter) ([]Row, error) {
	certs, err := s.Ledger.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}

	titles := make(map[uuid.UUID]string)
	rows := make([]Row, 0, len(certs))
	for _, c := range certs {
		title, ok := titles[c.CourseID]
		if !ok {
			title, err = s.Enrollments.CourseTitle(ctx, c.CourseID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve course %s: %w", c.CourseID, err)
			}
			titles[c.CourseID] = title
		}
		rows = append(rows, Row{
			SerialNumber: c.SerialNumber,
			LearnerName:  c.LearnerNameSnapshot,
			CourseTitle:  title,
			CourseID:     c.CourseID,
			LearnerID:    c.LearnerID,
			EnrollmentID: c.EnrollmentID,
			IssuedAt:     c.IssuedAt,
		})
	}
	return rows, nil
}
