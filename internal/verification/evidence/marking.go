package evidence

import "strings"

const (
	groupSeparator = "\x1d"
	gtinMarker     = "01"
	serialMarker   = "21"
	gtinLength     = 14
	minCodeLength  = 20
)

// separatorReplacer turns bracketed application identifiers and the textual
// spellings of the GS1 group separator into a single delimiter.
var separatorReplacer = strings.NewReplacer(
	"(", groupSeparator,
	")", "",
	"<GS>", groupSeparator,
	`\x1d`, groupSeparator,
	`\u001d`, groupSeparator,
	"␝", groupSeparator,
)

// MarkingCode is a parsed DataMatrix marking code.
type MarkingCode struct {
	Raw           string
	GTIN          string
	Serial        string
	ChecksumValid bool
}

// ParseMarkingCode locates the GTIN after marker "01" and the serial after
// marker "21". The serial runs to the next group separator or the end.
func ParseMarkingCode(raw string) (MarkingCode, string) {
	code := separatorReplacer.Replace(strings.TrimSpace(raw))
	compact := strings.ReplaceAll(code, groupSeparator, "")
	if len(compact) < minCodeLength {
		return MarkingCode{}, "code is shorter than 20 characters"
	}

	code = strings.TrimLeft(code, groupSeparator)
	start := indexGTIN(code)
	if start < 0 {
		return MarkingCode{}, "GTIN marker (01) followed by 14 digits not found"
	}
	gtin := code[start+len(gtinMarker) : start+len(gtinMarker)+gtinLength]

	rest := strings.TrimLeft(code[start+len(gtinMarker)+gtinLength:], groupSeparator)
	var serialStart int
	switch {
	case strings.HasPrefix(rest, serialMarker):
		serialStart = len(serialMarker)
	default:
		idx := strings.Index(rest, groupSeparator+serialMarker)
		if idx < 0 {
			return MarkingCode{}, "serial marker (21) not found"
		}
		serialStart = idx + len(groupSeparator) + len(serialMarker)
	}

	serial := rest[serialStart:]
	if end := strings.Index(serial, groupSeparator); end >= 0 {
		serial = serial[:end]
	}
	if serial == "" {
		return MarkingCode{}, "serial is empty"
	}

	return MarkingCode{
		Raw:           code,
		GTIN:          gtin,
		Serial:        serial,
		ChecksumValid: ValidGTINChecksum(gtin),
	}, ""
}

// indexGTIN returns the offset of the first "01" marker followed by 14 digits.
func indexGTIN(code string) int {
	for i := 0; i+len(gtinMarker)+gtinLength <= len(code); i++ {
		if code[i:i+len(gtinMarker)] != gtinMarker {
			continue
		}
		if allDigits(code[i+len(gtinMarker) : i+len(gtinMarker)+gtinLength]) {
			return i
		}
	}
	return -1
}

// ValidGTINChecksum checks the GS1 mod-10 check digit of a 14-digit GTIN:
// the first 13 digits are weighted alternately 3 and 1 from the left.
func ValidGTINChecksum(gtin string) bool {
	if len(gtin) != gtinLength || !allDigits(gtin) {
		return false
	}
	sum := 0
	for i := 0; i < gtinLength-1; i++ {
		d := int(gtin[i] - '0')
		if i%2 == 0 {
			d *= 3
		}
		sum += d
	}
	check := (10 - sum%10) % 10
	return check == int(gtin[gtinLength-1]-'0')
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
