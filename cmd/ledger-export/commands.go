package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/internal/app"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/internal/certificates"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/internal/config"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/internal/database"
	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/internal/export"
)

const dateLayout = "2006-01-02"

type Globals struct {
	ConfigPath string
	Debug      bool
	Version    string
}

// runtime holds the clients a command needs. close releases the database pool.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
}

func (g *Globals) open(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadConfig(g.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if g.Debug {
		cfg.Logging.Level = "debug"
	}
	logger, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &runtime{cfg: cfg, logger: logger, db: db}, nil
}

func (r *runtime) close() {
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = r.logger.Sync()
}

func (r *runtime) ledger(ctx context.Context) (certificates.Ledger, error) {
	awsCfg, err := app.LoadAWSConfig(ctx, r.cfg.AWS)
	if err != nil {
		return nil, err
	}
	return app.NewLedger(r.cfg.Ledger, r.db, awsCfg)
}

type ExportCmd struct {
	Format string `help:"Output format (csv, xlsx)" default:"csv" enum:"csv,xlsx,excel"`
	Course string `help:"Only certificates for this course ID" default:""`
	From   string `help:"Issued on or after this date (YYYY-MM-DD, UTC)" default:""`
	To     string `help:"Issued on or before this date (YYYY-MM-DD, UTC)" default:""`
	Limit  int    `help:"Maximum number of certificates, 0 for all" default:"0"`
	Output string `short:"o" help:"Output file, stdout when empty" default:""`
}

func (e *ExportCmd) Run(ctx context.Context, globals *Globals) error {
	format, err := export.ParseFormat(e.Format)
	if err != nil {
		return err
	}
	filter, err := e.filter()
	if err != nil {
		return err
	}
	writer, err := export.NewWriter(format)
	if err != nil {
		return err
	}

	rt, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	ledger, err := rt.ledger(ctx)
	if err != nil {
		return err
	}

	rows, err := export.Source{
		Ledger:      ledger,
		Enrollments: certificates.NewEnrollmentDirectory(rt.db),
	}.Collect(ctx, filter)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if e.Output != "" {
		f, err := os.Create(e.Output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := writer.Write(out, rows); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	rt.logger.Info("Ledger exported",
		zap.String("format", string(format)),
		zap.Int("certificates", len(rows)),
		zap.String("output", e.Output))
	return nil
}

// filter converts the flags to a ledger filter. To is inclusive of the whole day.
func (e *ExportCmd) filter() (certificates.ListFilter, error) {
	var filter certificates.ListFilter
	if e.Course != "" {
		id, err := uuid.Parse(e.Course)
		if err != nil {
			return filter, fmt.Errorf("invalid course id %q: %w", e.Course, err)
		}
		filter.CourseID = &id
	}
	if e.From != "" {
		from, err := time.Parse(dateLayout, e.From)
		if err != nil {
			return filter, fmt.Errorf("invalid --from date: %w", err)
		}
		filter.From = &from
	}
	if e.To != "" {
		to, err := time.Parse(dateLayout, e.To)
		if err != nil {
			return filter, fmt.Errorf("invalid --to date: %w", err)
		}
		to = to.AddDate(0, 0, 1)
		filter.To = &to
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return filter, fmt.Errorf("--from must not be after --to")
	}
	if e.Limit < 0 {
		return filter, fmt.Errorf("--limit must not be negative")
	}
	filter.Limit = e.Limit
	return filter, nil
}

type VerifyCmd struct {
	Serial string `arg:"" help:"Certificate serial number"`
}

func (v *VerifyCmd) Run(ctx context.Context, globals *Globals) error {
	rt, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	ledger, err := rt.ledger(ctx)
	if err != nil {
		return err
	}

	cert, err := ledger.FindBySerial(ctx, v.Serial)
	if err != nil {
		return err
	}
	if cert == nil {
		return fmt.Errorf("%w: %s", certificates.ErrCertificateNotFound, v.Serial)
	}
	title, err := certificates.NewEnrollmentDirectory(rt.db).CourseTitle(ctx, cert.CourseID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(certificates.Verification{
		SerialNumber: cert.SerialNumber,
		LearnerName:  cert.LearnerNameSnapshot,
		CourseTitle:  title,
		IssuedAt:     cert.IssuedAt,
	})
}

type MigrateCmd struct{}

func (m *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	rt, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	return database.Migrate(ctx, rt.db, rt.logger)
}
