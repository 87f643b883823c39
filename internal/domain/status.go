package domain

import "time"

// Counters are the running pipeline totals.
type Counters struct {
	LinesReceived  uint64 `json:"lines_received"`
	Comments       uint64 `json:"comments"`
	Overflows      uint64 `json:"overflows"`
	Decoded        uint64 `json:"decoded"`
	DecodeFailures uint64 `json:"decode_failures"`
	Duplicates     uint64 `json:"duplicates"`
	Persisted      uint64 `json:"persisted"`
	StorageDropped uint64 `json:"storage_dropped"`
	Reconnects     uint64 `json:"reconnects"`
	Stalls         uint64 `json:"backpressure_stalls"`
}

// Status is the operator-facing snapshot written to status.json.
type Status struct {
	// Server is the host:port of the APRS-IS server
	Server string `json:"server"`

	// Callsign is the login identity
	Callsign string `json:"callsign"`

	// Connection is the session state name
	Connection string `json:"connection"`

	// LastConnectedAt is when the current or last session reached Streaming
	LastConnectedAt time.Time `json:"last_connected_at"`

	// LastLineAt is when the last line (including comments) arrived
	LastLineAt time.Time `json:"last_line_at"`

	// Counters holds the pipeline totals
	Counters Counters `json:"counters"`

	// UpdatedAt is when this snapshot was written
	UpdatedAt time.Time `json:"updated_at"`
}

// IsEmpty returns true if the status has never been written.
func (s Status) IsEmpty() bool {
	return s.UpdatedAt.IsZero()
}
