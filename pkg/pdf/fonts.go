package pdf

import (
	"github.com/jung-kurt/gofpdf"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// Core PDF fonts are Latin-1 only, so learner names are drawn with the Go
// fonts embedded as UTF-8 TrueType programs.
const (
	fontRegular = "goregular"
	fontBold    = "gobold"
)

func registerFonts(pdf *gofpdf.Fpdf) {
	pdf.AddUTF8FontFromBytes(fontRegular, "", goregular.TTF)
	pdf.AddUTF8FontFromBytes(fontBold, "", gobold.TTF)
}
