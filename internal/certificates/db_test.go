package certificates

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory database. A single connection keeps
// every goroutine on the same database and serialises transactions.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&User{}, &Course{}, &Enrollment{}, &CertificateSequence{}, &Certificate{}))
	return db
}

type fixture struct {
	User       User
	Course     Course
	Enrollment Enrollment
}

func seedEnrollment(t *testing.T, db *gorm.DB, name, title string, progress float64, cfg *CertificateConfig) fixture {
	t.Helper()

	f := fixture{
		User:   User{ID: uuid.New(), FullName: name, Email: uuid.NewString() + "@example.com"},
		Course: Course{ID: uuid.New(), Title: title, Metadata: datatypes.NewJSONType(CourseMetadata{CertificateConfig: cfg})},
	}
	f.Enrollment = Enrollment{ID: uuid.New(), UserID: f.User.ID, CourseID: f.Course.ID, Progress: progress}

	require.NoError(t, db.Create(&f.User).Error)
	require.NoError(t, db.Create(&f.Course).Error)
	require.NoError(t, db.Omit("User", "Course").Create(&f.Enrollment).Error)
	return f
}

func draftFor(f fixture) Draft {
	return Draft{
		EnrollmentID: f.Enrollment.ID,
		LearnerID:    f.User.ID,
		CourseID:     f.Course.ID,
		LearnerName:  f.User.FullName,
	}
}
