package shard

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/fsutil"
)

// DefaultSize is the default number of documents per shard.
const DefaultSize = 300

var (
	// ErrInvalidSize is returned when a writer is configured with a non-positive shard size.
	ErrInvalidSize = errors.New("shard size must be greater than 0")
	// ErrEmptyShard is returned when an existing shard file holds no documents.
	ErrEmptyShard = errors.New("shard holds no documents")
)

// Writer accumulates documents into a bounded in-memory batch and flushes it
// to a shard file named after the source range it covers.
type Writer struct {
	dir  string
	size int

	docs  []Document
	first int
	end   int
}

// NewWriter creates a writer producing shards of at most size documents in dir.
func NewWriter(dir string, size int) (*Writer, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if dir == "" {
		dir = "."
	}

	return &Writer{
		dir:  dir,
		size: size,
		docs: make([]Document, 0, size),
	}, nil
}

// Dir returns the directory shards are written to.
func (w *Writer) Dir() string {
	return w.dir
}

// Append adds a document read from the given source position.
func (w *Writer) Append(doc Document, position int) {
	if len(w.docs) == 0 {
		w.first = position
	}
	w.docs = append(w.docs, doc)
	w.end = position + 1
}

// Skip records that the given source position was consumed without producing
// a document. It only widens the range of an open batch.
func (w *Writer) Skip(position int) {
	if len(w.docs) == 0 {
		return
	}
	if position+1 > w.end {
		w.end = position + 1
	}
}

// IsFull reports whether the batch reached the configured shard size.
func (w *Writer) IsFull() bool {
	return len(w.docs) >= w.size
}

// Len returns the number of buffered documents.
func (w *Writer) Len() int {
	return len(w.docs)
}

// Pending returns the source position of the first buffered document.
func (w *Writer) Pending() (int, bool) {
	if len(w.docs) == 0 {
		return 0, false
	}
	return w.first, true
}

// Flush writes the buffered documents to a shard file and clears the batch.
// It returns nil without error when nothing is buffered.
func (w *Writer) Flush() (*Shard, error) {
	if len(w.docs) == 0 {
		return nil, nil
	}

	name := FileName(w.first, w.end)
	path := filepath.Join(w.dir, name)

	hash := sha256.New()
	var size int64

	err := fsutil.WriteAtomic(path, func(out io.Writer) error {
		counter := &countingWriter{w: io.MultiWriter(out, hash)}
		if encErr := Encode(counter, w.docs); encErr != nil {
			return encErr
		}
		size = counter.n
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("write shard %s: %w", name, err)
	}

	s := &Shard{
		Name:   name,
		Path:   path,
		First:  w.first,
		End:    w.end,
		Count:  len(w.docs),
		SHA256: hex.EncodeToString(hash.Sum(nil)),
		Size:   size,
	}

	w.docs = w.docs[:0]
	w.first, w.end = 0, 0

	return s, nil
}

// Encode writes documents as JSON lines: one object per line, UTF-8 kept
// verbatim and HTML characters left unescaped.
func Encode(out io.Writer, docs []Document) error {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	for i := range docs {
		if err := enc.Encode(&docs[i]); err != nil {
			return fmt.Errorf("encode document %d: %w", i, err)
		}
	}
	return nil
}

// Describe opens an existing shard file and computes its document count,
// checksum and size. A file without documents yields ErrEmptyShard.
func Describe(path string) (*Shard, error) {
	first, end, err := ParseName(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shard: %w", err)
	}
	defer f.Close()

	hash := sha256.New()
	counter := &countingWriter{w: hash}
	scanner := bufio.NewScanner(io.TeeReader(f, counter))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	count := 0
	for scanner.Scan() {
		if len(scanner.Bytes()) > 0 {
			count++
		}
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return nil, fmt.Errorf("read shard %s: %w", path, scanErr)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyShard, path)
	}

	return &Shard{
		Name:   filepath.Base(path),
		Path:   path,
		First:  first,
		End:    end,
		Count:  count,
		SHA256: hex.EncodeToString(hash.Sum(nil)),
		Size:   counter.n,
	}, nil
}

// maxLineBytes bounds a single document line when reading shards back.
const maxLineBytes = 64 * 1024 * 1024

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
