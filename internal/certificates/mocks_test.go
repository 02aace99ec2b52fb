package certificates

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/pkg/pdf"
)

// MockIdentity is a mock implementation of security.IdentityResolver
type MockIdentity struct {
	mock.Mock
}

func (m *MockIdentity) Resolve(ctx context.Context, token string) (uuid.UUID, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

// MockEnrollments is a mock implementation of the EnrollmentDirectory interface
type MockEnrollments struct {
	mock.Mock
}

func (m *MockEnrollments) Lookup(ctx context.Context, learnerID, courseID uuid.UUID) (*EnrollmentRecord, error) {
	args := m.Called(ctx, learnerID, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*EnrollmentRecord), args.Error(1)
}

func (m *MockEnrollments) CourseTitle(ctx context.Context, courseID uuid.UUID) (string, error) {
	args := m.Called(ctx, courseID)
	return args.String(0), args.Error(1)
}

// MockLedger is a mock implementation of the Ledger interface
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Find(ctx context.Context, enrollmentID uuid.UUID) (*Certificate, error) {
	args := m.Called(ctx, enrollmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Certificate), args.Error(1)
}

func (m *MockLedger) Create(ctx context.Context, draft Draft) (*Certificate, error) {
	args := m.Called(ctx, draft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Certificate), args.Error(1)
}

func (m *MockLedger) FindBySerial(ctx context.Context, serial string) (*Certificate, error) {
	args := m.Called(ctx, serial)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Certificate), args.Error(1)
}

func (m *MockLedger) List(ctx context.Context, filter ListFilter) ([]Certificate, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Certificate), args.Error(1)
}

// MockAssets is a mock implementation of the AssetFetcher interface
type MockAssets struct {
	mock.Mock
}

func (m *MockAssets) Fetch(ctx context.Context, rawURL string) (*pdf.Background, error) {
	args := m.Called(ctx, rawURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pdf.Background), args.Error(1)
}

// MockRenderer is a mock implementation of pdf.Generator
type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Render(ctx context.Context, cert pdf.Certificate) (*pdf.Document, error) {
	args := m.Called(ctx, cert)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pdf.Document), args.Error(1)
}

// MockNotifier is a mock implementation of the Notifier interface
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) CertificateIssued(ctx context.Context, cert *Certificate, courseTitle string) error {
	args := m.Called(ctx, cert, courseTitle)
	return args.Error(0)
}
