package scanning

import (
	"image"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
)

// preprocess prepares a page for OCR: grayscale, a contrast and sharpen pass,
// then an upscale so small print survives recognition
func preprocess(img image.Image, scale float64) image.Image {
	out := imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 20)
	out = imaging.Sharpen(out, 1.0)

	if scale > 1 {
		width := int(float64(out.Bounds().Dx()) * scale)
		out = imaging.Resize(out, width, 0, imaging.Lanczos)
	}
	return out
}

var (
	reInlineSpace = regexp.MustCompile(`[ \t\f\v]+`)
	reBlankLines  = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText cleans OCR and PDF output: unified line endings, single
// spaces, trimmed lines and at most one blank line in a row
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\u00a0", " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(reInlineSpace.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = reBlankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
