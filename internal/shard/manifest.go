package shard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/fsutil"
)

// ManifestFile is the default manifest file name inside the shard directory.
const ManifestFile = "manifest.json"

// Record maps a local shard file to its remote destination.
type Record struct {
	Name        string     `json:"name"`
	LocalPath   string     `json:"local_path"`
	RemotePath  string     `json:"remote_path"`
	First       int        `json:"first"`
	End         int        `json:"end"`
	Count       int        `json:"count"`
	SHA256      string     `json:"sha256"`
	Size        int64      `json:"size"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Location    string     `json:"location,omitempty"`
}

// Published reports whether the shard was uploaded at least once.
func (r Record) Published() bool {
	return r.PublishedAt != nil
}

type manifestDoc struct {
	Records []Record `json:"records"`
}

// Manifest is the durable list of publish records, persisted as JSON.
type Manifest struct {
	mu      sync.Mutex
	path    string
	records map[string]Record
	now     func() time.Time
}

// LoadManifest reads the manifest at path. A missing file yields an empty manifest.
func LoadManifest(path string) (*Manifest, error) {
	m := &Manifest{
		path:    path,
		records: make(map[string]Record),
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var doc manifestDoc
	if err = json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	for _, r := range doc.Records {
		m.records[r.Name] = r
	}

	return m, nil
}

// Path returns the manifest file location.
func (m *Manifest) Path() string {
	return m.path
}

// Track registers a flushed shard and its remote path and persists the manifest.
// Re-tracking a shard replaces its record and clears the published mark when
// the content changed.
func (m *Manifest) Track(s *Shard, remotePath string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := Record{
		Name:       s.Name,
		LocalPath:  s.Path,
		RemotePath: remotePath,
		First:      s.First,
		End:        s.End,
		Count:      s.Count,
		SHA256:     s.SHA256,
		Size:       s.Size,
		CreatedAt:  m.now().UTC(),
	}
	if prev, ok := m.records[s.Name]; ok && prev.SHA256 == s.SHA256 && prev.RemotePath == remotePath {
		rec.CreatedAt = prev.CreatedAt
		rec.PublishedAt = prev.PublishedAt
		rec.Location = prev.Location
	}
	m.records[s.Name] = rec

	return rec, m.saveLocked()
}

// MarkPublished records a successful upload and persists the manifest.
func (m *Manifest) MarkPublished(name, location string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[name]
	if !ok {
		return Record{}, fmt.Errorf("manifest has no shard %q", name)
	}

	at := m.now().UTC()
	rec.PublishedAt = &at
	rec.Location = location
	m.records[name] = rec

	return rec, m.saveLocked()
}

// Get returns the record for a shard name.
func (m *Manifest) Get(name string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[name]
	return rec, ok
}

// Records returns all records ordered by range start.
func (m *Manifest) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sortedLocked(func(Record) bool { return true })
}

// Pending returns the records not yet published, ordered by range start.
func (m *Manifest) Pending() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sortedLocked(func(r Record) bool { return !r.Published() })
}

func (m *Manifest) sortedLocked(keep func(Record) bool) []Record {
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].First < out[j].First })
	return out
}

func (m *Manifest) saveLocked() error {
	doc := manifestDoc{Records: m.sortedLocked(func(Record) bool { return true })}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err = fsutil.WriteFileAtomic(m.path, data); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	return nil
}

// ToShard converts a record back into a shard handle.
func (r Record) ToShard() *Shard {
	return &Shard{
		Name:   r.Name,
		Path:   r.LocalPath,
		First:  r.First,
		End:    r.End,
		Count:  r.Count,
		SHA256: r.SHA256,
		Size:   r.Size,
	}
}
