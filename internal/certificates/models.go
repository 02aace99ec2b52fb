package certificates

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Certificate is an issued completion certificate. Rows are append-only:
// at most one per enrollment, and the serial number and name snapshot never change.
type Certificate struct {
	ID                  uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	EnrollmentID        uuid.UUID `json:"enrollment_id" gorm:"type:uuid;not null;uniqueIndex:certificates_enrollment_id_key"`
	LearnerID           uuid.UUID `json:"learner_id" gorm:"type:uuid;not null"`
	CourseID            uuid.UUID `json:"course_id" gorm:"type:uuid;not null;index:idx_certificates_course_id"`
	SerialNumber        string    `json:"serial_number" gorm:"not null;uniqueIndex:certificates_serial_number_key"`
	LearnerNameSnapshot string    `json:"learner_name_snapshot" gorm:"not null"`
	IssuedAt            time.Time `json:"issued_at" gorm:"not null;index:idx_certificates_issued_at"`
}

func (Certificate) TableName() string { return "certificates" }

func (c *Certificate) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.IssuedAt.IsZero() {
		c.IssuedAt = time.Now().UTC()
	}
	return nil
}

// CertificateSequence is the per-prefix counter that numbers certificates.
type CertificateSequence struct {
	Name  string `gorm:"primaryKey"`
	Value int64  `gorm:"not null"`
}

func (CertificateSequence) TableName() string { return "certificate_sequences" }

// User, Course and Enrollment are owned by the LMS and only read here.

type User struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	FullName string    `json:"full_name"`
	Email    string    `json:"email"`
}

func (User) TableName() string { return "users" }

type Course struct {
	ID       uuid.UUID                          `json:"id" gorm:"type:uuid;primaryKey"`
	Title    string                             `json:"title"`
	Metadata datatypes.JSONType[CourseMetadata] `json:"metadata"`
}

func (Course) TableName() string { return "courses" }

type Enrollment struct {
	ID       uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID   uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	CourseID uuid.UUID `json:"course_id" gorm:"type:uuid;not null;index"`
	// Progress is the completion percentage, 0-100.
	Progress float64 `json:"progress"`

	User   User   `json:"-" gorm:"foreignKey:UserID"`
	Course Course `json:"-" gorm:"foreignKey:CourseID"`
}

func (Enrollment) TableName() string { return "enrollments" }

// CourseMetadata is the JSON metadata column on courses.
type CourseMetadata struct {
	CertificateConfig *CertificateConfig `json:"certificate_config,omitempty"`
}

// CertificateConfig customises a course's certificate. Every field is optional.
type CertificateConfig struct {
	BackgroundURL string         `json:"background_url,omitempty"`
	Name          *TextPlacement `json:"name,omitempty"`
	CourseTitle   *TextPlacement `json:"course_title,omitempty"`
}

// TextPlacement overrides the default placement of one text field.
// Coordinates are in points from the bottom-left page corner.
type TextPlacement struct {
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
	Size  *float64 `json:"size,omitempty"`
	Color *string  `json:"color,omitempty"`
}

// EnrollmentRecord is the validated context for one issuance request.
type EnrollmentRecord struct {
	EnrollmentID uuid.UUID
	LearnerID    uuid.UUID
	LearnerName  string
	CourseID     uuid.UUID
	CourseTitle  string
	Progress     float64
	Config       *CertificateConfig
}

// Draft is a certificate about to be written to the ledger.
type Draft struct {
	EnrollmentID uuid.UUID
	LearnerID    uuid.UUID
	CourseID     uuid.UUID
	LearnerName  string
}

// ListFilter narrows ledger listings. Zero values match everything.
type ListFilter struct {
	CourseID *uuid.UUID
	From     *time.Time
	To       *time.Time
	Limit    int
}

// Verification is the public view of an issued certificate.
type Verification struct {
	SerialNumber string    `json:"serial_number"`
	LearnerName  string    `json:"learner_name"`
	CourseTitle  string    `json:"course_title"`
	IssuedAt     time.Time `json:"issued_at"`
}
