// Package aprs decodes TNC2-format APRS-IS lines into frames.
//
// The decoder only validates the header and classifies the information
// field by its data type identifier; position, weather and telemetry
// contents are stored raw.
package aprs

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bft-labs/aprsship/internal/domain"
)

const (
	maxCallLen     = 9
	maxPathElemLen = 16
	maxPathElems   = 10
)

// Decoder implements ports.Decoder for "SRC>DEST[,PATH...]:PAYLOAD" lines.
type Decoder struct {
	newID func() string
}

// NewDecoder creates a decoder that assigns random UUIDs as frame ids.
func NewDecoder() *Decoder {
	return &Decoder{newID: uuid.NewString}
}

// Decode parses one line.
func (d *Decoder) Decode(line domain.RawLine) (domain.Frame, error) {
	text := line.Text
	if !utf8.ValidString(text) || strings.ContainsRune(text, 0) {
		return domain.Frame{}, decodeErr(domain.EncodingError, text, "invalid UTF-8 or NUL byte")
	}

	colon := strings.IndexByte(text, ':')
	if colon < 0 {
		return domain.Frame{}, decodeErr(domain.MalformedHeader, text, "missing ':' separator")
	}
	header, payload := text[:colon], text[colon+1:]

	gt := strings.IndexByte(header, '>')
	if gt < 0 {
		return domain.Frame{}, decodeErr(domain.MalformedHeader, text, "missing '>' separator")
	}
	source := header[:gt]
	if !validCall(source, maxCallLen, false) {
		return domain.Frame{}, decodeErr(domain.MalformedHeader, text, "invalid source callsign")
	}

	via := strings.Split(header[gt+1:], ",")
	dest := via[0]
	if !validCall(dest, maxCallLen, false) {
		return domain.Frame{}, decodeErr(domain.MalformedHeader, text, "invalid destination")
	}
	path := via[1:]
	if len(path) > maxPathElems {
		return domain.Frame{}, decodeErr(domain.MalformedHeader, text, "path too long")
	}
	for _, p := range path {
		if !validCall(p, maxPathElemLen, true) {
			return domain.Frame{}, decodeErr(domain.MalformedHeader, text, "invalid path element "+p)
		}
	}

	if payload == "" {
		return domain.Frame{}, decodeErr(domain.UnsupportedPayload, text, "empty information field")
	}

	return domain.Frame{
		ID:          d.newID(),
		Source:      source,
		Destination: dest,
		Path:        append([]string(nil), path...),
		Kind:        Classify(payload),
		Payload:     payload,
		ReceivedAt:  line.ReceivedAt,
	}, nil
}

// Classify maps the data type identifier (first payload byte) to a kind.
func Classify(payload string) domain.PayloadKind {
	if payload == "" {
		return domain.KindUnknown
	}
	switch payload[0] {
	case '!', '=', '/', '@':
		return domain.KindPosition
	case '>':
		return domain.KindStatus
	case ':':
		if strings.HasPrefix(payload[1:], "BLN") || len(payload) > 10 && payload[10] == ':' {
			return domain.KindMessage
		}
		return domain.KindUnknown
	case '`', '\'':
		return domain.KindMicE
	case ';':
		return domain.KindObject
	case ')':
		return domain.KindItem
	case '_':
		return domain.KindWeather
	case 'T':
		return domain.KindTelemetry
	case '?':
		return domain.KindQuery
	case '}':
		return domain.KindThirdParty
	default:
		return domain.KindUnknown
	}
}

// validCall accepts letters, digits and '-'. Path elements may also end in
// '*' (has-been-digipeated marker).
func validCall(s string, maxLen int, path bool) bool {
	if path {
		s = strings.TrimSuffix(s, "*")
	}
	if s == "" || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
		default:
			return false
		}
	}
	return true
}

func decodeErr(reason domain.DecodeReason, line, detail string) *domain.DecodeError {
	return &domain.DecodeError{Reason: reason, Line: line, Detail: detail}
}
