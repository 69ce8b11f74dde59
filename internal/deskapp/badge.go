package deskapp

import (
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	badgePadding = 8
	badgeScale   = 4
)

var (
	badgeIdle   = color.RGBA{R: 0xEE, G: 0xEE, B: 0xEC, A: 0xFF}
	badgeOnTime = color.RGBA{R: 0x4E, G: 0x9A, B: 0x06, A: 0xFF}
	badgeLate   = color.RGBA{R: 0xA4, G: 0x00, B: 0x00, A: 0xFF}
	badgeFailed = color.RGBA{R: 0xCC, G: 0x66, B: 0x66, A: 0xFF}
)

// badgeLines is the plain-text form of an entry for signage displays.
func badgeLines(entry *Entry) ([]string, color.Color) {
	if entry == nil {
		return []string{"Ready to scan"}, badgeIdle
	}
	if !entry.OK {
		return []string{"Scan failed", entry.Reason + ": " + entry.Scan}, badgeFailed
	}
	lines := make([]string, 0, len(entry.Info)+1)
	for _, field := range entry.Info {
		lines = append(lines, field.Label+": "+field.Value)
	}
	lines = append(lines, entry.Label)
	if entry.OnTime {
		return lines, badgeOnTime
	}
	return lines, badgeLate
}

// renderBadge draws lines in the 7x13 bitmap face and scales the result up
// with nearest-neighbour so the glyphs stay crisp.
func renderBadge(lines []string, background color.Color) image.Image {
	face := basicfont.Face7x13
	metrics := face.Metrics()
	lineHeight := metrics.Height.Ceil()

	width := 0
	for _, line := range lines {
		if w := font.MeasureString(face, line).Ceil(); w > width {
			width = w
		}
	}
	bounds := image.Rect(0, 0, width+2*badgePadding, lineHeight*len(lines)+2*badgePadding)
	base := image.NewRGBA(bounds)
	draw.Draw(base, bounds, image.NewUniform(background), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  base,
		Src:  image.NewUniform(textColor(background)),
		Face: face,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(badgePadding, badgePadding+i*lineHeight+metrics.Ascent.Ceil())
		drawer.DrawString(line)
	}

	scaled := image.NewRGBA(image.Rect(0, 0, bounds.Dx()*badgeScale, bounds.Dy()*badgeScale))
	draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), base, bounds, draw.Src, nil)
	return scaled
}

func writeBadge(w io.Writer, entry *Entry) error {
	lines, background := badgeLines(entry)
	return png.Encode(w, renderBadge(lines, background))
}

func textColor(background color.Color) color.Color {
	r, g, b, _ := background.RGBA()
	// Rec. 601 luma on 16-bit channels.
	if (299*r+587*g+114*b)/1000 > 0x8000 {
		return color.Black
	}
	return color.White
}
