package aprs

import (
	"errors"
	"testing"
	"time"

	"github.com/bft-labs/aprsship/internal/domain"
)

func decode(t *testing.T, text string) (domain.Frame, error) {
	t.Helper()
	d := NewDecoder()
	return d.Decode(domain.RawLine{Text: text, ReceivedAt: time.Unix(1700000000, 0)})
}

func TestDecoder_Valid(t *testing.T) {
	f, err := decode(t, "N0CALL-9>APDR16,TCPIP*,qAC,T2TEST:=4903.50N/07201.75W>Test")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if f.Source != "N0CALL-9" {
		t.Errorf("Source = %q", f.Source)
	}
	if f.Destination != "APDR16" {
		t.Errorf("Destination = %q", f.Destination)
	}
	if f.PathString() != "TCPIP*,qAC,T2TEST" {
		t.Errorf("Path = %q", f.PathString())
	}
	if f.Kind != domain.KindPosition {
		t.Errorf("Kind = %q", f.Kind)
	}
	if f.Payload != "=4903.50N/07201.75W>Test" {
		t.Errorf("Payload = %q", f.Payload)
	}
	if f.ID == "" {
		t.Error("ID not assigned")
	}
	if !f.ReceivedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("ReceivedAt = %v", f.ReceivedAt)
	}
}

func TestDecoder_PayloadMayContainColons(t *testing.T) {
	f, err := decode(t, "N0CALL>APRS::W1AW     :hi there:{01")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if f.Kind != domain.KindMessage {
		t.Errorf("Kind = %q, want message", f.Kind)
	}
	if f.Payload != ":W1AW     :hi there:{01" {
		t.Errorf("Payload = %q", f.Payload)
	}
}

func TestDecoder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		reason domain.DecodeReason
	}{
		{"garbage", "GARBAGE", domain.MalformedHeader},
		{"no gt", "N0CALL:>status", domain.MalformedHeader},
		{"empty source", ">APRS:>status", domain.MalformedHeader},
		{"source too long", "N0CALLN0CALL>APRS:>status", domain.MalformedHeader},
		{"bad char in source", "N0 CALL>APRS:>status", domain.MalformedHeader},
		{"empty path element", "N0CALL>APRS,,WIDE1-1:>status", domain.MalformedHeader},
		{"empty payload", "N0CALL>APRS:", domain.UnsupportedPayload},
		{"invalid utf8", "N0CALL>APRS:>\xff\xfe", domain.EncodingError},
		{"nul byte", "N0CALL>APRS:>a\x00b", domain.EncodingError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(t, tt.line)
			var de *domain.DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("error = %v, want *DecodeError", err)
			}
			if de.Reason != tt.reason {
				t.Errorf("Reason = %s, want %s", de.Reason, tt.reason)
			}
			if de.Line != tt.line {
				t.Errorf("Line = %q, want %q", de.Line, tt.line)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		payload string
		want    domain.PayloadKind
	}{
		{"!4903.50N/07201.75W-", domain.KindPosition},
		{"@092345z4903.50N/07201.75W>", domain.KindPosition},
		{">Net Control", domain.KindStatus},
		{":BLN1     :bulletin", domain.KindMessage},
		{"`c.Rl o>/", domain.KindMicE},
		{"'c.Rl o>/", domain.KindMicE},
		{";LEADER   *092345z4903.50N/07201.75W>", domain.KindObject},
		{")AID #2!4903.50N/07201.75WA", domain.KindItem},
		{"_10090556c220s004g005t077", domain.KindWeather},
		{"T#005,199,000,255,073,123,01101001", domain.KindTelemetry},
		{"?APRS?", domain.KindQuery},
		{"}W1AW>APRS,TCPIP:>hi", domain.KindThirdParty},
		{"xyz", domain.KindUnknown},
		{":short", domain.KindUnknown},
	}

	for _, tt := range tests {
		if got := Classify(tt.payload); got != tt.want {
			t.Errorf("Classify(%q) = %s, want %s", tt.payload, got, tt.want)
		}
	}
}

func TestPasscode(t *testing.T) {
	tests := []struct {
		call string
		want string
	}{
		{"N0CALL", "13023"},
		{"n0call", "13023"},
		{"N0CALL-9", "13023"},
	}
	for _, tt := range tests {
		if got := Passcode(tt.call); got != tt.want {
			t.Errorf("Passcode(%q) = %s, want %s", tt.call, got, tt.want)
		}
	}
}
