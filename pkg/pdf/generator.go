package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"image/png"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"
)

// Page dimensions in points (A4 landscape at 72 units per inch).
const (
	PageWidth  = 842.0
	PageHeight = 595.0
)

// ImageFormat identifies how a background raster is encoded.
type ImageFormat string

const (
	FormatPNG ImageFormat = "PNG"
	FormatJPG ImageFormat = "JPG"
)

// Color represents an RGB color
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// TextSpec places a single line of text. X is the horizontal center of the
// line and Y its baseline, both measured from the bottom-left page corner.
type TextSpec struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Size  float64 `json:"size"`
	Color Color   `json:"color"`
}

// RenderSpec is the concrete layout for one certificate page.
type RenderSpec struct {
	PageWidth   float64  `json:"page_width"`
	PageHeight  float64  `json:"page_height"`
	Name        TextSpec `json:"name"`
	CourseTitle TextSpec `json:"course_title"`
}

// Background is a raster image stretched over the whole page.
type Background struct {
	Data   []byte
	Format ImageFormat
}

// Certificate holds everything drawn on the page.
type Certificate struct {
	LearnerName  string
	CourseTitle  string
	SerialNumber string
	IssuedAt     time.Time
	Background   *Background
	Layout       RenderSpec
}

// Document is a rendered certificate.
type Document struct {
	Data []byte
	// Fallback is set when the fallback frame was drawn instead of a background image.
	Fallback bool
}

// Options configures certificate rendering
type Options struct {
	FallbackTitle     string  `json:"fallback_title"`
	FallbackTitleSize float64 `json:"fallback_title_size"`
	FallbackTitleTop  float64 `json:"fallback_title_top"`
	BorderInset       float64 `json:"border_inset"`
	BorderWidth       float64 `json:"border_width"`
	BorderColor       Color   `json:"border_color"`
	FooterX           float64 `json:"footer_x"`
	FooterY           float64 `json:"footer_y"`
	FooterSize        float64 `json:"footer_size"`
	FooterColor       Color   `json:"footer_color"`
	FooterAlpha       float64 `json:"footer_alpha"`
	FooterLabel       string  `json:"footer_label"`
	Author            string  `json:"author"`
	Compress          bool    `json:"compress"`
}

// DefaultOptions returns default rendering options
func DefaultOptions() Options {
	return Options{
		FallbackTitle:     "SERTIFIKAT PENYELESAIAN",
		FallbackTitleSize: 28,
		FallbackTitleTop:  80,
		BorderInset:       20,
		BorderWidth:       2,
		BorderColor:       Color{R: 30, G: 58, B: 138},
		FooterX:           30,
		FooterY:           25,
		FooterSize:        9,
		FooterColor:       Color{R: 100, G: 100, B: 100},
		FooterAlpha:       0.6,
		FooterLabel:       "No. Sertifikat:",
		Compress:          true,
	}
}

// Generator renders certificates to PDF.
type Generator interface {
	Render(ctx context.Context, cert Certificate) (*Document, error)
}

type certificateGenerator struct {
	options Options
	logger  *zap.Logger
}

// NewGenerator creates a certificate generator
func NewGenerator(options Options, logger *zap.Logger) Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &certificateGenerator{
		options: options,
		logger:  logger,
	}
}

// Render draws a single landscape page. A background that cannot be embedded
// is replaced by the fallback frame; it never fails the render.
func (g *certificateGenerator) Render(ctx context.Context, cert Certificate) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	spec := cert.Layout
	if spec.PageWidth <= 0 || spec.PageHeight <= 0 {
		spec.PageWidth, spec.PageHeight = PageWidth, PageHeight
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: spec.PageWidth, Ht: spec.PageHeight},
	})
	pdf.SetCompression(g.options.Compress)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	registerFonts(pdf)
	g.setMetadata(pdf, cert)

	pdf.AddPage()

	doc := &Document{}
	if !g.drawBackground(pdf, cert, spec) {
		g.drawFallback(pdf, spec)
		doc.Fallback = true
	}

	g.drawCentered(pdf, fontBold, strings.ToUpper(cert.LearnerName), spec.Name, spec.PageHeight)
	g.drawCentered(pdf, fontRegular, cert.CourseTitle, spec.CourseTitle, spec.PageHeight)
	g.drawFooter(pdf, cert.SerialNumber, spec.PageHeight)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to render certificate: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write certificate: %w", err)
	}
	doc.Data = buf.Bytes()
	return doc, nil
}

func (g *certificateGenerator) setMetadata(pdf *gofpdf.Fpdf, cert Certificate) {
	pdf.SetTitle(cert.CourseTitle, true)
	pdf.SetSubject(cert.SerialNumber, false)
	pdf.SetKeywords("certificate "+cert.SerialNumber, false)
	if g.options.Author != "" {
		pdf.SetAuthor(g.options.Author, true)
	}
	if !cert.IssuedAt.IsZero() {
		pdf.SetCreationDate(cert.IssuedAt)
		pdf.SetModificationDate(cert.IssuedAt)
	}
}

// drawBackground reports whether the image was placed on the page.
func (g *certificateGenerator) drawBackground(pdf *gofpdf.Fpdf, cert Certificate, spec RenderSpec) (placed bool) {
	bg := cert.Background
	if bg == nil || len(bg.Data) == 0 {
		return false
	}

	if err := decodeImage(bg); err != nil {
		g.logger.Warn("Background image does not decode, using fallback frame",
			zap.String("serial_number", cert.SerialNumber),
			zap.String("format", string(bg.Format)),
			zap.Error(err))
		return false
	}

	// gofpdf panics on some corrupt streams instead of setting its error.
	defer func() {
		if r := recover(); r != nil {
			g.logger.Warn("Background image crashed the embedder, using fallback frame",
				zap.String("serial_number", cert.SerialNumber),
				zap.String("format", string(bg.Format)),
				zap.Any("panic", r))
			pdf.ClearError()
			placed = false
		}
	}()

	opts := gofpdf.ImageOptions{ImageType: string(bg.Format)}
	pdf.RegisterImageOptionsReader("background", opts, bytes.NewReader(bg.Data))
	if err := pdf.Error(); err != nil {
		g.logger.Warn("Failed to embed background image, using fallback frame",
			zap.String("serial_number", cert.SerialNumber),
			zap.String("format", string(bg.Format)),
			zap.Error(err))
		pdf.ClearError()
		return false
	}

	pdf.ImageOptions("background", 0, 0, spec.PageWidth, spec.PageHeight, false, opts, 0, "")
	if err := pdf.Error(); err != nil {
		g.logger.Warn("Failed to place background image, using fallback frame",
			zap.String("serial_number", cert.SerialNumber),
			zap.Error(err))
		pdf.ClearError()
		return false
	}
	return true
}

// decodeImage fully decodes bg as its declared format, so truncated or
// mislabelled data is rejected before it reaches gofpdf.
func decodeImage(bg *Background) error {
	r := bytes.NewReader(bg.Data)
	var err error
	switch bg.Format {
	case FormatPNG:
		_, err = png.Decode(r)
	case FormatJPG:
		_, err = jpeg.Decode(r)
	default:
		err = fmt.Errorf("unsupported image format %q", bg.Format)
	}
	if err != nil {
		return fmt.Errorf("invalid %s image: %w", bg.Format, err)
	}
	return nil
}

func (g *certificateGenerator) drawFallback(pdf *gofpdf.Fpdf, spec RenderSpec) {
	inset := g.options.BorderInset
	c := g.options.BorderColor
	pdf.SetDrawColor(c.R, c.G, c.B)
	pdf.SetLineWidth(g.options.BorderWidth)
	pdf.Rect(inset, inset, spec.PageWidth-2*inset, spec.PageHeight-2*inset, "D")

	if g.options.FallbackTitle == "" {
		return
	}
	pdf.SetFont(fontBold, "", g.options.FallbackTitleSize)
	pdf.SetTextColor(c.R, c.G, c.B)
	w := pdf.GetStringWidth(g.options.FallbackTitle)
	pdf.Text(spec.PageWidth/2-w/2, g.options.FallbackTitleTop, g.options.FallbackTitle)
}

// drawCentered centers txt on the spec's own x and converts its baseline to
// the top-left origin gofpdf draws in.
func (g *certificateGenerator) drawCentered(pdf *gofpdf.Fpdf, family, txt string, spec TextSpec, pageHeight float64) {
	if txt == "" {
		return
	}
	pdf.SetFont(family, "", spec.Size)
	pdf.SetTextColor(spec.Color.R, spec.Color.G, spec.Color.B)
	w := pdf.GetStringWidth(txt)
	pdf.Text(spec.X-w/2, pageHeight-spec.Y, txt)
}

func (g *certificateGenerator) drawFooter(pdf *gofpdf.Fpdf, serial string, pageHeight float64) {
	c := g.options.FooterColor
	pdf.SetAlpha(g.options.FooterAlpha, "Normal")
	pdf.SetFont(fontRegular, "", g.options.FooterSize)
	pdf.SetTextColor(c.R, c.G, c.B)
	pdf.Text(g.options.FooterX, pageHeight-g.options.FooterY, strings.TrimSpace(g.options.FooterLabel+" "+serial))
	pdf.SetAlpha(1, "Normal")
}
