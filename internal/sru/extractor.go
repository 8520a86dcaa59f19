package sru

import (
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/shard"
)

// diagnosticsSchema identifies surrogate diagnostic records.
const diagnosticsSchema = "info:srw/schema/1/diagnostics-v1.1"

var (
	exprIdentifier   = xpath.MustCompile(`//*[local-name()='identifier']`)
	exprSurrogateTop = xpath.MustCompile(`/*[local-name()='recordData']/*[local-name()='diagnostic']`)
)

// Extractor turns raw records into normalized documents.
type Extractor struct {
	source string
}

// NewExtractor creates an extractor stamping documents with the given source label.
func NewExtractor(source string) *Extractor {
	if source == "" {
		source = DefaultSourceName
	}
	return &Extractor{source: source}
}

// Extract parses one raw record. The identifier is the first element named
// "identifier" anywhere in the record; the content is all text of the record,
// trimmed. A record without an identifier still yields a document with a nil
// URL. Unparsable records return ErrMalformedRecord.
func (e *Extractor) Extract(raw RawRecord) (*shard.Document, error) {
	if strings.TrimSpace(raw.Data) == "" {
		return nil, fmt.Errorf("%w: position %d has no recordData", ErrMalformedRecord, raw.Position)
	}
	if raw.Schema == diagnosticsSchema {
		return nil, fmt.Errorf("%w: position %d", ErrSurrogateDiagnostic, raw.Position)
	}

	doc, err := xmlquery.Parse(strings.NewReader(raw.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: position %d: %w", ErrMalformedRecord, raw.Position, err)
	}
	if xmlquery.QuerySelector(doc, exprSurrogateTop) != nil {
		return nil, fmt.Errorf("%w: position %d", ErrSurrogateDiagnostic, raw.Position)
	}

	out := &shard.Document{
		Content: strings.TrimSpace(doc.InnerText()),
		Source:  e.source,
	}

	if id := xmlquery.QuerySelector(doc, exprIdentifier); id != nil {
		if url := strings.TrimSpace(id.InnerText()); url != "" {
			out.URL = &url
		}
	}

	return out, nil
}
