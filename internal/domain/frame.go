package domain

import (
	"strings"
	"time"
)

// RawLine is a single unparsed protocol line with its arrival time.
// The terminator is already stripped.
type RawLine struct {
	// Text is the line content without the trailing CR/LF.
	Text string

	// ReceivedAt is when the terminator for this line arrived.
	ReceivedAt time.Time

	// Comment is true for server lines starting with '#'.
	// Comments are liveness evidence only and are never decoded.
	Comment bool
}

// PayloadKind classifies the information field of a frame by its APRS
// data type identifier.
type PayloadKind string

const (
	KindPosition   PayloadKind = "position"
	KindStatus     PayloadKind = "status"
	KindMessage    PayloadKind = "message"
	KindMicE       PayloadKind = "mic-e"
	KindObject     PayloadKind = "object"
	KindItem       PayloadKind = "item"
	KindWeather    PayloadKind = "weather"
	KindTelemetry  PayloadKind = "telemetry"
	KindQuery      PayloadKind = "query"
	KindThirdParty PayloadKind = "third-party"
	KindUnknown    PayloadKind = "unknown"
)

// Fingerprint identifies one logical report for deduplication.
// It is derived from source, normalized payload and a coarse time bucket.
type Fingerprint string

// Frame is a decoded APRS packet.
// Treat it as a value: use the With* methods to derive modified copies.
type Frame struct {
	// ID is a unique row identifier assigned at decode time.
	ID string

	// Source is the originating station (e.g. "N0CALL-9").
	Source string

	// Destination is the TNC2 destination field (often a software id).
	Destination string

	// Path is the digipeater/q-construct path after the destination.
	Path []string

	// Kind is the classified payload type.
	Kind PayloadKind

	// Payload is the raw information field.
	Payload string

	// ReceivedAt is the arrival time of the line this frame came from.
	ReceivedAt time.Time

	// Fingerprint is set by the pipeline after the dedup check.
	Fingerprint Fingerprint
}

// PathString joins the path the way it is stored: comma separated.
func (f Frame) PathString() string {
	return strings.Join(f.Path, ",")
}

// WithFingerprint returns a copy of the frame carrying fp.
func (f Frame) WithFingerprint(fp Fingerprint) Frame {
	f.Path = append([]string(nil), f.Path...)
	f.Fingerprint = fp
	return f
}

// NormalizedPayload is the payload form used for fingerprinting.
// Trailing whitespace varies between igates and is not significant.
func (f Frame) NormalizedPayload() string {
	return strings.TrimRight(f.Payload, " \t\r\n")
}
