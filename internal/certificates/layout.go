package certificates

import (
	"strconv"
	"strings"

	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/pkg/pdf"
)

// LayoutDefaults are used for any placement value a course leaves unset.
type LayoutDefaults struct {
	TextSize         float64
	NameColor        pdf.Color
	CourseTitleColor pdf.Color
	// CourseTitleOffset is how far the course title baseline sits below the page center.
	CourseTitleOffset float64
}

// DefaultLayout returns the built-in placement defaults
func DefaultLayout() LayoutDefaults {
	return LayoutDefaults{
		TextSize:          30,
		NameColor:         pdf.Color{R: 30, G: 58, B: 138},
		CourseTitleColor:  pdf.Color{R: 0, G: 0, B: 0},
		CourseTitleOffset: 60,
	}
}

// Resolve merges a course's configuration over the defaults. Each of x, y,
// size and color resolves independently, so a partial override keeps the
// defaults for everything it leaves out.
func (d LayoutDefaults) Resolve(cfg *CertificateConfig, pageWidth, pageHeight float64) pdf.RenderSpec {
	name := pdf.TextSpec{
		X:     pageWidth / 2,
		Y:     pageHeight / 2,
		Size:  d.TextSize,
		Color: d.NameColor,
	}
	title := pdf.TextSpec{
		X:     pageWidth / 2,
		Y:     pageHeight/2 - d.CourseTitleOffset,
		Size:  d.TextSize,
		Color: d.CourseTitleColor,
	}

	if cfg != nil {
		name = applyPlacement(name, cfg.Name)
		title = applyPlacement(title, cfg.CourseTitle)
	}

	return pdf.RenderSpec{
		PageWidth:   pageWidth,
		PageHeight:  pageHeight,
		Name:        name,
		CourseTitle: title,
	}
}

func applyPlacement(spec pdf.TextSpec, p *TextPlacement) pdf.TextSpec {
	if p == nil {
		return spec
	}
	if p.X != nil {
		spec.X = *p.X
	}
	if p.Y != nil {
		spec.Y = *p.Y
	}
	if p.Size != nil && *p.Size > 0 {
		spec.Size = *p.Size
	}
	if p.Color != nil {
		if c, ok := ParseColor(*p.Color); ok {
			spec.Color = c
		}
	}
	return spec
}

// ParseColor accepts #RRGGBB, RRGGBB and #RGB.
func ParseColor(s string) (pdf.Color, bool) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return pdf.Color{}, false
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return pdf.Color{}, false
	}
	return pdf.Color{R: int(v >> 16 & 0xFF), G: int(v >> 8 & 0xFF), B: int(v & 0xFF)}, true
}
