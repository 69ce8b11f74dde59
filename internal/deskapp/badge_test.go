package deskapp

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/phillip-england/checkdesk/internal/checkin"
)

func TestBadgeLines(t *testing.T) {
	lines, bg := badgeLines(nil)
	if len(lines) != 1 || bg != badgeIdle {
		t.Fatalf("unexpected idle badge %v %v", lines, bg)
	}

	lines, bg = badgeLines(&Entry{Reason: string(checkin.ReasonFormat), Scan: "xyz"})
	if bg != badgeFailed || lines[1] != "format error: xyz" {
		t.Fatalf("unexpected failed badge %v %v", lines, bg)
	}

	late := &Entry{
		OK:    true,
		Info:  []checkin.Field{{Label: "Name", Value: "Ada"}},
		Label: "Late by 7 minutes",
	}
	lines, bg = badgeLines(late)
	if bg != badgeLate || lines[0] != "Name: Ada" || lines[1] != "Late by 7 minutes" {
		t.Fatalf("unexpected late badge %v %v", lines, bg)
	}
}

func TestWriteBadgeEncodesPNG(t *testing.T) {
	var buf bytes.Buffer
	entry := &Entry{OK: true, OnTime: true, Label: "On time"}
	if err := writeBadge(&buf, entry); err != nil {
		t.Fatalf("write badge: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode badge: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx()%badgeScale != 0 || bounds.Dy()%badgeScale != 0 {
		t.Fatalf("badge not scaled: %v", bounds)
	}
	corner := color.RGBAModel.Convert(img.At(0, 0)).(color.RGBA)
	if corner != badgeOnTime {
		t.Fatalf("expected on-time background, got %+v", corner)
	}
}

func TestTextColorContrast(t *testing.T) {
	if textColor(badgeIdle) != color.Black {
		t.Fatalf("expected black text on light background")
	}
	if textColor(badgeLate) != color.White {
		t.Fatalf("expected white text on dark background")
	}
}
