// Package srutest provides an in-process SRU 2.0 server for tests.
package srutest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

const (
	responseOpen = `<?xml version="1.0" encoding="UTF-8"?>
<sru:searchRetrieveResponse xmlns:sru="http://docs.oasis-open.org/ns/search-ws/sruResponse" ` +
		`xmlns:gzd="http://standaarden.overheid.nl/sru" xmlns:dcterms="http://purl.org/dc/terms/" ` +
		`xmlns:overheidwetgeving="http://standaarden.overheid.nl/wetgeving/">
<sru:version>2.0</sru:version>
`
	responseClose = "</sru:searchRetrieveResponse>\n"
)

// RecordURL is the identifier served for the record at position.
func RecordURL(position int) string {
	return fmt.Sprintf("https://zoek.officielebekendmakingen.nl/stb-2024-%d", position)
}

// RecordTitle is the title served for the record at position.
func RecordTitle(position int) string {
	return fmt.Sprintf("Besluit nummer %d", position)
}

// Server serves Total records under any query.
type Server struct {
	*httptest.Server

	total int

	mu          sync.Mutex
	requests    []url.Values
	failures    int
	failStatus  int
	malformed   map[int]bool
	surrogates  map[int]bool
	noIDs       map[int]bool
	emptyAtEnd  bool
	fatalStatus int
}

// Option configures a Server.
type Option func(*Server)

// WithFailures makes the first n requests fail with status.
func WithFailures(n, status int) Option {
	return func(s *Server) {
		s.failures = n
		s.failStatus = status
	}
}

// WithStatus makes every request fail with status.
func WithStatus(status int) Option {
	return func(s *Server) { s.fatalStatus = status }
}

// WithMalformed serves records at the given positions without recordData.
func WithMalformed(positions ...int) Option {
	return func(s *Server) { mark(s.malformed, positions) }
}

// WithSurrogates serves surrogate diagnostics at the given positions.
func WithSurrogates(positions ...int) Option {
	return func(s *Server) { mark(s.surrogates, positions) }
}

// WithoutIdentifier serves records at the given positions without an identifier.
func WithoutIdentifier(positions ...int) Option {
	return func(s *Server) { mark(s.noIDs, positions) }
}

// WithEmptyPageAtEnd answers past-the-end requests with zero records instead
// of the "first record out of range" diagnostic.
func WithEmptyPageAtEnd() Option {
	return func(s *Server) { s.emptyAtEnd = true }
}

func mark(set map[int]bool, positions []int) {
	for _, p := range positions {
		set[p] = true
	}
}

// NewServer starts a server holding total records. Callers must Close it.
func NewServer(total int, opts ...Option) *Server {
	s := &Server{
		total:      total,
		malformed:  make(map[int]bool),
		surrogates: make(map[int]bool),
		noIDs:      make(map[int]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Requests returns the query parameters of every request received so far.
func (s *Server) Requests() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]url.Values, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	s.mu.Lock()
	s.requests = append(s.requests, query)
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if s.fatalStatus != 0 {
		http.Error(w, http.StatusText(s.fatalStatus), s.fatalStatus)
		return
	}
	if fail {
		http.Error(w, http.StatusText(s.failStatus), s.failStatus)
		return
	}

	start, err := strconv.Atoi(query.Get("startRecord"))
	if err != nil || start < 1 {
		start = 1
	}
	maximum, err := strconv.Atoi(query.Get("maximumRecords"))
	if err != nil || maximum < 0 {
		maximum = 10
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")

	var b strings.Builder
	b.WriteString(responseOpen)
	fmt.Fprintf(&b, "<sru:numberOfRecords>%d</sru:numberOfRecords>\n", s.total)

	if start > s.total && maximum > 0 && !s.emptyAtEnd {
		b.WriteString(`<sru:diagnostics><diag:diagnostic xmlns:diag="http://docs.oasis-open.org/ns/search-ws/diagnostic">` +
			`<diag:uri>info:srw/diagnostic/1/61</diag:uri><diag:message>First record position out of range</diag:message>` +
			"</diag:diagnostic></sru:diagnostics>\n")
		b.WriteString(responseClose)
		_, _ = w.Write([]byte(b.String()))
		return
	}

	end := min(start+maximum-1, s.total)
	if end >= start {
		b.WriteString("<sru:records>\n")
		for pos := start; pos <= end; pos++ {
			s.writeRecord(&b, pos)
		}
		b.WriteString("</sru:records>\n")
	}
	if end < s.total {
		fmt.Fprintf(&b, "<sru:nextRecordPosition>%d</sru:nextRecordPosition>\n", end+1)
	}
	b.WriteString(responseClose)
	_, _ = w.Write([]byte(b.String()))
}

func (s *Server) writeRecord(b *strings.Builder, pos int) {
	b.WriteString("<sru:record>")
	switch {
	case s.malformed[pos]:
		b.WriteString("<sru:recordSchema>gzd</sru:recordSchema><sru:recordPacking>xml</sru:recordPacking>")
	case s.surrogates[pos]:
		b.WriteString("<sru:recordSchema>info:srw/schema/1/diagnostics-v1.1</sru:recordSchema>" +
			"<sru:recordPacking>xml</sru:recordPacking><sru:recordData>" +
			`<diag:diagnostic xmlns:diag="http://docs.oasis-open.org/ns/search-ws/diagnostic">` +
			"<diag:uri>info:srw/diagnostic/1/64</diag:uri><diag:message>Record temporarily unavailable</diag:message>" +
			"</diag:diagnostic></sru:recordData>")
	default:
		b.WriteString("<sru:recordSchema>gzd</sru:recordSchema><sru:recordPacking>xml</sru:recordPacking><sru:recordData>")
		b.WriteString("<gzd:gzd><gzd:originalData><overheidwetgeving:meta><overheidwetgeving:owmskern>")
		if !s.noIDs[pos] {
			fmt.Fprintf(b, "<dcterms:identifier>%s</dcterms:identifier>", RecordURL(pos))
		}
		fmt.Fprintf(b, "<dcterms:title>%s</dcterms:title>", RecordTitle(pos))
		b.WriteString("<dcterms:language>nl</dcterms:language>")
		b.WriteString("</overheidwetgeving:owmskern></overheidwetgeving:meta></gzd:originalData></gzd:gzd>")
		b.WriteString("</sru:recordData>")
	}
	fmt.Fprintf(b, "<sru:recordPosition>%d</sru:recordPosition></sru:record>\n", pos)
}
