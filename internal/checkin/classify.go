package checkin

import (
	"regexp"
	"strings"
)

type Kind int

const (
	KindMalformed Kind = iota
	KindInterviewee
	KindIntervieweeBarcode
	KindCard
)

func (k Kind) String() string {
	switch k {
	case KindInterviewee:
		return "interviewee"
	case KindIntervieweeBarcode:
		return "barcode"
	case KindCard:
		return "card"
	default:
		return "malformed"
	}
}

var (
	// Typed by hand: letter, two digits, one alphanumeric, five digits.
	intervieweePattern = regexp.MustCompile(`^[A-Za-z]\d{2}\w\d{5}$`)
	// Printed barcodes carry one extra trailing digit.
	barcodePattern = regexp.MustCompile(`^[A-Za-z]\d{2}\w\d{6}$`)
	cardPattern    = regexp.MustCompile(`^\d{10}$`)
)

type Classification struct {
	Kind Kind
	// Code is the value to look up: normalized for interviewee kinds, the raw
	// scan otherwise.
	Code string
}

// Classify applies the scan rules in order; the first match wins.
func Classify(scan string) Classification {
	switch {
	case intervieweePattern.MatchString(scan):
		return Classification{Kind: KindInterviewee, Code: strings.ToUpper(scan)}
	case barcodePattern.MatchString(scan):
		return Classification{Kind: KindIntervieweeBarcode, Code: strings.ToUpper(scan[:len(scan)-1])}
	case cardPattern.MatchString(scan):
		return Classification{Kind: KindCard, Code: scan}
	default:
		return Classification{Kind: KindMalformed, Code: scan}
	}
}
