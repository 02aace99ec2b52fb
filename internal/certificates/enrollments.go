package certificates

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EnrollmentDirectory reads enrollment, learner and course data owned by the LMS.
type EnrollmentDirectory interface {
	// Lookup fails with ErrNotEnrolled when the learner has no enrollment in the course.
	Lookup(ctx context.Context, learnerID, courseID uuid.UUID) (*EnrollmentRecord, error)
	CourseTitle(ctx context.Context, courseID uuid.UUID) (string, error)
}

type enrollmentRepository struct {
	db *gorm.DB
}

func NewEnrollmentDirectory(db *gorm.DB) EnrollmentDirectory {
	return &enrollmentRepository{db: db}
}

func (r *enrollmentRepository) Lookup(ctx context.Context, learnerID, courseID uuid.UUID) (*EnrollmentRecord, error) {
	var enrollment Enrollment
	err := r.db.WithContext(ctx).
		Preload("User").
		Preload("Course").
		Where("user_id = ? AND course_id = ?", learnerID, courseID).
		Take(&enrollment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotEnrolled
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to look up enrollment: %w", ErrStorage, err)
	}

	return &EnrollmentRecord{
		EnrollmentID: enrollment.ID,
		LearnerID:    enrollment.UserID,
		LearnerName:  enrollment.User.FullName,
		CourseID:     enrollment.CourseID,
		CourseTitle:  enrollment.Course.Title,
		Progress:     enrollment.Progress,
		Config:       enrollment.Course.Metadata.Data().CertificateConfig,
	}, nil
}

func (r *enrollmentRepository) CourseTitle(ctx context.Context, courseID uuid.UUID) (string, error) {
	var course Course
	err := r.db.WithContext(ctx).Select("id", "title").Where("id = ?", courseID).Take(&course).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to look up course: %w", ErrStorage, err)
	}
	return course.Title, nil
}
