package certificates

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/pkg/pdf"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/pkg/security"
)

type serviceMocks struct {
	identity    *MockIdentity
	enrollments *MockEnrollments
	ledger      *MockLedger
	assets      *MockAssets
	renderer    *MockRenderer
	notifier    *MockNotifier
}

func newMockedService() (Service, *serviceMocks) {
	m := &serviceMocks{
		identity:    new(MockIdentity),
		enrollments: new(MockEnrollments),
		ledger:      new(MockLedger),
		assets:      new(MockAssets),
		renderer:    new(MockRenderer),
		notifier:    new(MockNotifier),
	}
	svc := NewService(m.identity, m.enrollments, m.ledger, m.assets, m.renderer, m.notifier, zap.NewNop())
	return svc, m
}

func (m *serviceMocks) assertExpectations(t *testing.T) {
	m.identity.AssertExpectations(t)
	m.enrollments.AssertExpectations(t)
	m.ledger.AssertExpectations(t)
	m.assets.AssertExpectations(t)
	m.renderer.AssertExpectations(t)
	m.notifier.AssertExpectations(t)
}

func completedRecord(progress float64) *EnrollmentRecord {
	return &EnrollmentRecord{
		EnrollmentID: uuid.New(),
		LearnerID:    uuid.New(),
		LearnerName:  "  Ayu Lestari ",
		CourseID:     uuid.New(),
		CourseTitle:  "Dasar Pemrograman",
		Progress:     progress,
		Config:       &CertificateConfig{BackgroundURL: "https://cdn.example.com/bg.png"},
	}
}

func certificateFor(rec *EnrollmentRecord, serial, name string) *Certificate {
	return &Certificate{
		ID:                  uuid.New(),
		EnrollmentID:        rec.EnrollmentID,
		LearnerID:           rec.LearnerID,
		CourseID:            rec.CourseID,
		SerialNumber:        serial,
		LearnerNameSnapshot: name,
		IssuedAt:            time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC),
	}
}

func TestIsComplete(t *testing.T) {
	tests := []struct {
		progress float64
		want     bool
	}{
		{100, true},
		{99.6, true},
		{99.5, true},
		{99.4, false},
		{0, false},
		{120, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsComplete(tt.progress), "progress %v", tt.progress)
	}
}

func TestIssueCreatesCertificate(t *testing.T) {
	svc, m := newMockedService()
	ctx := context.Background()
	rec := completedRecord(100)
	cert := certificateFor(rec, "KB-2026-AAAAAABBBBBB-000001", "Ayu Lestari")
	bg := &pdf.Background{Data: []byte("png"), Format: pdf.FormatPNG}

	m.identity.On("Resolve", ctx, "tok").Return(rec.LearnerID, nil)
	m.enrollments.On("Lookup", ctx, rec.LearnerID, rec.CourseID).Return(rec, nil)
	m.ledger.On("Find", ctx, rec.EnrollmentID).Return(nil, nil).Once()
	m.ledger.On("Create", ctx, Draft{
		EnrollmentID: rec.EnrollmentID,
		LearnerID:    rec.LearnerID,
		CourseID:     rec.CourseID,
		LearnerName:  "Ayu Lestari",
	}).Return(cert, nil).Once()
	m.notifier.On("CertificateIssued", ctx, cert, "Dasar Pemrograman").Return(nil)
	m.assets.On("Fetch", ctx, "https://cdn.example.com/bg.png").Return(bg, nil)
	m.renderer.On("Render", ctx, mock.MatchedBy(func(c pdf.Certificate) bool {
		return c.LearnerName == "Ayu Lestari" &&
			c.CourseTitle == "Dasar Pemrograman" &&
			c.SerialNumber == cert.SerialNumber &&
			c.Background == bg &&
			c.Layout.Name.X == 421
	})).Return(&pdf.Document{Data: []byte("%PDF-1.3")}, nil)

	result, err := svc.Issue(ctx, IssueRequest{Token: "tok", CourseID: rec.CourseID})

	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.False(t, result.Degraded)
	assert.Equal(t, cert, result.Certificate)
	assert.Equal(t, []byte("%PDF-1.3"), result.Document)
	m.assertExpectations(t)
}

func TestIssueReusesExistingCertificate(t *testing.T) {
	svc, m := newMockedService()
	ctx := context.Background()
	rec := completedRecord(100)
	rec.LearnerName = "Ayu Lestari Putri"
	existing := certificateFor(rec, "KB-2026-AAAAAABBBBBB-000007", "Ayu Lestari")

	m.identity.On("Resolve", ctx, "tok").Return(rec.LearnerID, nil)
	m.enrollments.On("Lookup", ctx, rec.LearnerID, rec.CourseID).Return(rec, nil)
	m.ledger.On("Find", ctx, rec.EnrollmentID).Return(existing, nil)
	m.assets.On("Fetch", ctx, mock.Anything).Return(nil, nil)
	m.renderer.On("Render", ctx, mock.MatchedBy(func(c pdf.Certificate) bool {
		return c.LearnerName == "Ayu Lestari" && c.SerialNumber == existing.SerialNumber
	})).Return(&pdf.Document{Data: []byte("%PDF"), Fallback: true}, nil)

	result, err := svc.Issue(ctx, IssueRequest{Token: "tok", CourseID: rec.CourseID})

	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.False(t, result.Degraded, "no configured background is not a degradation")
	assert.Equal(t, existing.SerialNumber, result.Certificate.SerialNumber)
	m.ledger.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.notifier.AssertNotCalled(t, "CertificateIssued", mock.Anything, mock.Anything, mock.Anything)
	m.assertExpectations(t)
}

func TestIssueRejectsBeforeRendering(t *testing.T) {
	ctx := context.Background()
	rec := completedRecord(100)

	tests := []struct {
		name  string
		setup func(m *serviceMocks, req *IssueRequest)
		want  error
	}{
		{
			name: "invalid token",
			setup: func(m *serviceMocks, req *IssueRequest) {
				m.identity.On("Resolve", ctx, req.Token).Return(uuid.Nil, security.ErrInvalidToken)
			},
			want: ErrAuth,
		},
		{
			name: "missing course",
			setup: func(m *serviceMocks, req *IssueRequest) {
				req.CourseID = uuid.Nil
				m.identity.On("Resolve", ctx, req.Token).Return(rec.LearnerID, nil)
			},
			want: ErrInvalidRequest,
		},
		{
			name: "not enrolled",
			setup: func(m *serviceMocks, req *IssueRequest) {
				m.identity.On("Resolve", ctx, req.Token).Return(rec.LearnerID, nil)
				m.enrollments.On("Lookup", ctx, rec.LearnerID, rec.CourseID).Return(nil, ErrNotEnrolled)
			},
			want: ErrNotEnrolled,
		},
		{
			name: "incomplete course",
			setup: func(m *serviceMocks, req *IssueRequest) {
				m.identity.On("Resolve", ctx, req.Token).Return(rec.LearnerID, nil)
				m.enrollments.On("Lookup", ctx, rec.LearnerID, rec.CourseID).Return(completedRecord(99.4), nil)
			},
			want: ErrIncompleteCourse,
		},
		{
			name: "ledger unavailable",
			setup: func(m *serviceMocks, req *IssueRequest) {
				m.identity.On("Resolve", ctx, req.Token).Return(rec.LearnerID, nil)
				m.enrollments.On("Lookup", ctx, rec.LearnerID, rec.CourseID).Return(rec, nil)
				m.ledger.On("Find", ctx, rec.EnrollmentID).Return(nil, fmt.Errorf("%w: connection refused", ErrStorage))
			},
			want: ErrStorage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newMockedService()
			req := IssueRequest{Token: "tok", CourseID: rec.CourseID}
			tt.setup(m, &req)

			result, err := svc.Issue(ctx, req)

			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.want)
			m.assets.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
			m.renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)
			m.assertExpectations(t)
		})
	}
}

func TestIssueAcceptsRoundedCompletion(t *testing.T) {
	svc, m := newMockedService()
	ctx := context.Background()
	rec := completedRecord(99.6)
	cert := certificateFor(rec, "KB-2026-AAAAAABBBBBB-000002", "Ayu Lestari")

	m.identity.On("Resolve", ctx, "tok").Return(rec.LearnerID, nil)
	m.enrollments.On("Lookup", ctx, rec.LearnerID, rec.CourseID).Return(rec, nil)
	m.ledger.On("Find", ctx, rec.EnrollmentID).Return(cert, nil)
	m.assets.On("Fetch", ctx, mock.Anything).Return(nil, nil)
	m.renderer.On("Render", ctx, mock.Anything).Return(&pdf.Document{Data: []byte("%PDF")}, nil)

	_, err := svc.Issue(ctx, IssueRequest{Token: "tok", CourseID: rec.CourseID})
	assert.NoError(t, err)
}

func TestIssueLostRaceUsesWinner(t *testing.T) {
	svc, m := newMockedService()
	ctx := context.Background()
	rec := completedRecord(100)
	winner := certificateFor(rec, "KB-2026-AAAAAABBBBBB-000003", "Ayu Lestari")

	m.identity.On("Resolve", ctx, "tok").Return(rec.LearnerID, nil)
	m.enrollments.On("Lookup", ctx, rec.LearnerID, rec.CourseID).Return(rec, nil)
	m.ledger.On("Find", ctx, rec.EnrollmentID).Return(nil, nil).Once()
	m.ledger.On("Create", ctx, mock.Anything).Return(nil, fmt.Errorf("%w: duplicate", ErrAlreadyExists)).Once()
	m.ledger.On("Find", ctx, rec.EnrollmentID).Return(winner, nil).Once()
	m.assets.On("Fetch", ctx, mock.Anything).Return(nil, nil)
	m.renderer.On("Render", ctx, mock.Anything).Return(&pdf.Document{Data: []byte("%PDF")}, nil)

	result, err := svc.Issue(ctx, IssueRequest{Token: "tok", CourseID: rec.CourseID})

	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, winner.SerialNumber, result.Certificate.SerialNumber)
	m.notifier.AssertNotCalled(t, "CertificateIssued", mock.Anything, mock.Anything, mock.Anything)
	m.assertExpectations(t)
}

func TestIssueRetriesNumberingConflictOnce(t *testing.T) {
	svc, m := newMockedService()
	ctx := context.Background()
	rec := completedRecord(100)
	cert := certificateFor(rec, "KB-2026-AAAAAABBBBBB-000005", "Ayu Lestari")

	m.identity.On("Resolve", ctx, "tok").Return(rec.LearnerID, nil)
	m.enrollments.On("Lookup", ctx, rec.LearnerID, rec.CourseID).Return(rec, nil)
	m.ledger.On("Find", ctx, rec.EnrollmentID).Return(nil, nil).Twice()
	m.ledger.On("Create", ctx, mock.Anything).Return(nil, fmt.Errorf("%w: serial taken", ErrNumberingConflict)).Once()
	m.ledger.On("Create", ctx, mock.Anything).Return(cert, nil).Once()
	m.notifier.On("CertificateIssued", ctx, cert, rec.CourseTitle).Return(nil)
	m.assets.On("Fetch", ctx, mock.Anything).Return(nil, nil)
	m.renderer.On("Render", ctx, mock.Anything).Return(&pdf.Document{Data: []byte("%PDF")}, nil)

	result, err := svc.Issue(ctx, IssueRequest{Token: "tok", CourseID: rec.CourseID})

	require.NoError(t, err)
	assert.True(t, result.Created)
	m.ledger.AssertNumberOfCalls(t, "Create", 2)
	m.assertExpectations(t)
}

func TestIssueGivesUpAfterSecondConflict(t *testing.T) {
	svc, m := newMockedService()
	ctx := context.Background()
	rec := completedRecord(100)

	m.identity.On("Resolve", ctx, "tok").Return(rec.LearnerID, nil)
	m.enrollments.On("Lookup", ctx, rec.LearnerID, rec.CourseID).Return(rec, nil)
	m.ledger.On("Find", ctx, rec.EnrollmentID).Return(nil, nil)
	m.ledger.On("Create", ctx, mock.Anything).Return(nil, fmt.Errorf("%w: serial taken", ErrNumberingConflict))

	result, err := svc.Issue(ctx, IssueRequest{Token: "tok", CourseID: rec.CourseID})

	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Equal(t, "Gagal membuat sertifikat", ClientMessage(err))
	m.ledger.AssertNumberOfCalls(t, "Create", 2)
	m.renderer.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)
}

func TestIssueDegradesWhenBackgroundFails(t *testing.T) {
	svc, m := newMockedService()
	ctx := context.Background()
	rec := completedRecord(100)
	cert := certificateFor(rec, "KB-2026-AAAAAABBBBBB-000004", "Ayu Lestari")

	m.identity.On("Resolve", ctx, "tok").Return(rec.LearnerID, nil)
	m.enrollments.On("Lookup", ctx, rec.LearnerID, rec.CourseID).Return(rec, nil)
	m.ledger.On("Find", ctx, rec.EnrollmentID).Return(cert, nil)
	m.assets.On("Fetch", ctx, rec.Config.BackgroundURL).Return(nil, fmt.Errorf("%w: status 404", ErrRenderAsset))
	m.renderer.On("Render", ctx, mock.MatchedBy(func(c pdf.Certificate) bool {
		return c.Background == nil
	})).Return(&pdf.Document{Data: []byte("%PDF"), Fallback: true}, nil)

	result, err := svc.Issue(ctx, IssueRequest{Token: "tok", CourseID: rec.CourseID})

	require.NoError(t, err)
	assert.True(t, result.Degraded)
	m.assertExpectations(t)
}

func TestIssueIgnoresNotifierFailure(t *testing.T) {
	svc, m := newMockedService()
	ctx := context.Background()
	rec := completedRecord(100)
	cert := certificateFor(rec, "KB-2026-AAAAAABBBBBB-000006", "Ayu Lestari")

	m.identity.On("Resolve", ctx, "tok").Return(rec.LearnerID, nil)
	m.enrollments.On("Lookup", ctx, rec.LearnerID, rec.CourseID).Return(rec, nil)
	m.ledger.On("Find", ctx, rec.EnrollmentID).Return(nil, nil)
	m.ledger.On("Create", ctx, mock.Anything).Return(cert, nil)
	m.notifier.On("CertificateIssued", ctx, cert, rec.CourseTitle).Return(errors.New("sns unavailable"))
	m.assets.On("Fetch", ctx, mock.Anything).Return(nil, nil)
	m.renderer.On("Render", ctx, mock.Anything).Return(&pdf.Document{Data: []byte("%PDF")}, nil)

	result, err := svc.Issue(ctx, IssueRequest{Token: "tok", CourseID: rec.CourseID})

	require.NoError(t, err)
	assert.True(t, result.Created)
	m.assertExpectations(t)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	rec := completedRecord(100)
	cert := certificateFor(rec, "KB-2026-AAAAAABBBBBB-000008", "Ayu Lestari")

	t.Run("found", func(t *testing.T) {
		svc, m := newMockedService()
		m.ledger.On("FindBySerial", ctx, cert.SerialNumber).Return(cert, nil)
		m.enrollments.On("CourseTitle", ctx, cert.CourseID).Return("Dasar Pemrograman", nil)

		v, err := svc.Verify(ctx, " "+cert.SerialNumber+" ")

		require.NoError(t, err)
		assert.Equal(t, &Verification{
			SerialNumber: cert.SerialNumber,
			LearnerName:  "Ayu Lestari",
			CourseTitle:  "Dasar Pemrograman",
			IssuedAt:     cert.IssuedAt,
		}, v)
	})

	t.Run("unknown serial", func(t *testing.T) {
		svc, m := newMockedService()
		m.ledger.On("FindBySerial", ctx, "KB-0000").Return(nil, nil)

		_, err := svc.Verify(ctx, "KB-0000")
		assert.ErrorIs(t, err, ErrCertificateNotFound)
	})

	t.Run("empty serial", func(t *testing.T) {
		svc, m := newMockedService()

		_, err := svc.Verify(ctx, "")
		assert.ErrorIs(t, err, ErrCertificateNotFound)
		m.ledger.AssertNotCalled(t, "FindBySerial", mock.Anything, mock.Anything)
	})
}
