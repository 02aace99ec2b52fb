package certificates

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/pkg/pdf"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/pkg/security"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/pkg/workflows"
)

// Service issues and verifies completion certificates.
type Service interface {
	// Issue returns the learner's certificate for a completed course, creating
	// it on the first call. Later calls return the same serial number and name.
	Issue(ctx context.Context, req IssueRequest) (*IssueResult, error)
	Verify(ctx context.Context, serial string) (*Verification, error)
}

type IssueRequest struct {
	Token    string
	CourseID uuid.UUID
}

type IssueResult struct {
	Certificate *Certificate
	CourseTitle string
	Document    []byte
	// Created is false when an existing certificate was returned.
	Created bool
	// Degraded is set when the configured background could not be used.
	Degraded bool
}

type certificateService struct {
	identity    security.IdentityResolver
	enrollments EnrollmentDirectory
	ledger      Ledger
	assets      AssetFetcher
	renderer    pdf.Generator
	notifier    Notifier
	layout      LayoutDefaults
	states      *workflows.StateMachine
	logger      *zap.Logger
}

func NewService(
	identity security.IdentityResolver,
	enrollments EnrollmentDirectory,
	ledger Ledger,
	assets AssetFetcher,
	renderer pdf.Generator,
	notifier Notifier,
	logger *zap.Logger,
) Service {
	if notifier == nil {
		notifier = NewNoopNotifier()
	}
	return &certificateService{
		identity:    identity,
		enrollments: enrollments,
		ledger:      ledger,
		assets:      assets,
		renderer:    renderer,
		notifier:    notifier,
		layout:      DefaultLayout(),
		states:      workflows.NewStateMachine(),
		logger:      logger,
	}
}

// IsComplete reports whether progress rounds to 100 percent.
func IsComplete(progress float64) bool {
	return math.Round(progress) >= 100
}

func (s *certificateService) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	run := s.states.Start()

	learnerID, err := s.identity.Resolve(ctx, req.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}
	if err := run.Advance(workflows.StateAuthenticated); err != nil {
		return nil, err
	}

	if req.CourseID == uuid.Nil {
		return nil, fmt.Errorf("%w: course id is required", ErrInvalidRequest)
	}
	record, err := s.enrollments.Lookup(ctx, learnerID, req.CourseID)
	if err != nil {
		return nil, err
	}
	if !IsComplete(record.Progress) {
		return nil, fmt.Errorf("%w: progress %.2f", ErrIncompleteCourse, record.Progress)
	}
	if err := run.Advance(workflows.StateValidated); err != nil {
		return nil, err
	}

	cert, created, err := s.resolve(ctx, record)
	if err != nil {
		return nil, err
	}
	if err := run.Advance(workflows.StateResolved); err != nil {
		return nil, err
	}

	var backgroundURL string
	if record.Config != nil {
		backgroundURL = record.Config.BackgroundURL
	}
	background, err := s.assets.Fetch(ctx, backgroundURL)
	degraded := false
	if err != nil {
		s.logger.Warn("Background unavailable, rendering fallback",
			zap.String("serial_number", cert.SerialNumber),
			zap.String("background_url", backgroundURL),
			zap.Error(err))
		background, degraded = nil, true
	}

	doc, err := s.renderer.Render(ctx, pdf.Certificate{
		LearnerName:  cert.LearnerNameSnapshot,
		CourseTitle:  record.CourseTitle,
		SerialNumber: cert.SerialNumber,
		IssuedAt:     cert.IssuedAt,
		Background:   background,
		Layout:       s.layout.Resolve(record.Config, pdf.PageWidth, pdf.PageHeight),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render certificate %s: %w", cert.SerialNumber, err)
	}
	if err := run.Advance(workflows.StateRendered); err != nil {
		return nil, err
	}
	if background != nil && doc.Fallback {
		degraded = true
	}

	s.logger.Info("Certificate rendered",
		zap.String("serial_number", cert.SerialNumber),
		zap.String("enrollment_id", cert.EnrollmentID.String()),
		zap.Bool("created", created),
		zap.Bool("degraded", degraded),
		zap.Int("bytes", len(doc.Data)))

	return &IssueResult{
		Certificate: cert,
		CourseTitle: record.CourseTitle,
		Document:    doc.Data,
		Created:     created,
		Degraded:    degraded,
	}, nil
}

// resolve returns the enrollment's certificate, creating it if absent. A lost
// race is settled by re-reading the winner's row; if no row exists after a
// conflict the create is retried once.
func (s *certificateService) resolve(ctx context.Context, record *EnrollmentRecord) (*Certificate, bool, error) {
	existing, err := s.ledger.Find(ctx, record.EnrollmentID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	draft := Draft{
		EnrollmentID: record.EnrollmentID,
		LearnerID:    record.LearnerID,
		CourseID:     record.CourseID,
		LearnerName:  strings.TrimSpace(record.LearnerName),
	}

	for attempt := 0; ; attempt++ {
		cert, err := s.ledger.Create(ctx, draft)
		if err == nil {
			s.logger.Info("Certificate issued",
				zap.String("serial_number", cert.SerialNumber),
				zap.String("enrollment_id", cert.EnrollmentID.String()),
				zap.String("learner_id", cert.LearnerID.String()))
			s.notify(ctx, cert, record.CourseTitle)
			return cert, true, nil
		}
		if !errors.Is(err, ErrAlreadyExists) && !errors.Is(err, ErrNumberingConflict) {
			return nil, false, err
		}

		winner, findErr := s.ledger.Find(ctx, record.EnrollmentID)
		if findErr != nil {
			return nil, false, findErr
		}
		if winner != nil {
			s.logger.Info("Certificate created by a concurrent request, reusing it",
				zap.String("serial_number", winner.SerialNumber),
				zap.String("enrollment_id", winner.EnrollmentID.String()))
			return winner, false, nil
		}
		if attempt >= 1 {
			return nil, false, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		s.logger.Warn("Serial number conflict, retrying", zap.String("enrollment_id", record.EnrollmentID.String()), zap.Error(err))
	}
}

func (s *certificateService) notify(ctx context.Context, cert *Certificate, courseTitle string) {
	if err := s.notifier.CertificateIssued(ctx, cert, courseTitle); err != nil {
		s.logger.Warn("Failed to publish certificate event",
			zap.String("serial_number", cert.SerialNumber),
			zap.Error(err))
	}
}

func (s *certificateService) Verify(ctx context.Context, serial string) (*Verification, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, ErrCertificateNotFound
	}

	cert, err := s.ledger.FindBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, ErrCertificateNotFound
	}

	title, err := s.enrollments.CourseTitle(ctx, cert.CourseID)
	if err != nil {
		return nil, err
	}

	return &Verification{
		SerialNumber: cert.SerialNumber,
		LearnerName:  cert.LearnerNameSnapshot,
		CourseTitle:  title,
		IssuedAt:     cert.IssuedAt,
	}, nil
}
