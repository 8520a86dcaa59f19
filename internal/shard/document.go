// Package shard batches normalized documents into bounded JSONL shard files
// and keeps the manifest of where each shard was published.
package shard

// Document is one normalized publication record. Field names and order are the
// on-disk contract with downstream consumers.
type Document struct {
	URL     *string `json:"URL"`
	Content string  `json:"Content"`
	Source  string  `json:"Source"`
}

// Shard is a flushed batch of documents covering source positions [First, End).
type Shard struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	First  int    `json:"first"`
	End    int    `json:"end"`
	Count  int    `json:"count"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}
