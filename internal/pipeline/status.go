package pipeline

import "time"

// Result summarizes a finished run.
type Result struct {
	RunID string `json:"run_id"`
	State State  `json:"state"`
	// Cursor is the last persisted offset.
	Cursor    int `json:"cursor"`
	Pages     int `json:"pages"`
	Records   int `json:"records"`
	Documents int `json:"documents"`
	Dropped   int `json:"dropped"`
	Shards    int `json:"shards"`
	Published int `json:"published"`
}

// Snapshot is a point-in-time view of a run, served on the status endpoint.
type Snapshot struct {
	Result

	// FetchOffset is the position of the next record to fetch.
	FetchOffset int `json:"fetch_offset"`
	// Buffered is the number of documents not yet flushed.
	Buffered  int       `json:"buffered"`
	StartedAt time.Time `json:"started_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}
