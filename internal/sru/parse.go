package sru

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
)

// RawRecord is one record blob as returned by the server.
type RawRecord struct {
	// Position is the source position of the record (1-based).
	Position int
	// Schema is the record schema reported for this record.
	Schema string
	// Data is the recordData element serialized without namespace prefixes.
	Data string
}

// Page is one parsed searchRetrieve response.
type Page struct {
	// Total is numberOfRecords, or -1 when the server did not report it.
	Total   int
	Records []RawRecord
}

// Element lookups ignore namespace prefixes: servers differ in how they
// qualify SRU elements.
var (
	exprNumberOfRecords = xpath.MustCompile(`//*[local-name()='searchRetrieveResponse']/*[local-name()='numberOfRecords']`)
	exprDiagnostic      = xpath.MustCompile(`//*[local-name()='searchRetrieveResponse']/*[local-name()='diagnostics']/*[local-name()='diagnostic']`)
	exprRecord          = xpath.MustCompile(`//*[local-name()='records']/*[local-name()='record']`)
	exprRecordSchema    = xpath.MustCompile(`*[local-name()='recordSchema']`)
	exprRecordData      = xpath.MustCompile(`*[local-name()='recordData']`)
	exprDiagURI         = xpath.MustCompile(`*[local-name()='uri']`)
	exprDiagMessage     = xpath.MustCompile(`*[local-name()='message']`)
	exprDiagDetails     = xpath.MustCompile(`*[local-name()='details']`)
	exprResponseRoot    = xpath.MustCompile(`/*[local-name()='searchRetrieveResponse']`)
)

// ParsePage parses a searchRetrieve response whose first record sits at
// position offset. A fatal diagnostic is returned as *DiagnosticError; the
// "first record out of range" diagnostic yields an empty page.
func ParsePage(body io.Reader, offset int) (*Page, error) {
	doc, err := xmlquery.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if xmlquery.QuerySelector(doc, exprResponseRoot) == nil {
		return nil, fmt.Errorf("%w: missing searchRetrieveResponse element", ErrMalformedResponse)
	}

	page := &Page{Total: -1}
	if n := xmlquery.QuerySelector(doc, exprNumberOfRecords); n != nil {
		if total, convErr := strconv.Atoi(strings.TrimSpace(n.InnerText())); convErr == nil {
			page.Total = total
		}
	}

	if diag := xmlquery.QuerySelector(doc, exprDiagnostic); diag != nil {
		diagErr := &DiagnosticError{
			URI:     childText(diag, exprDiagURI),
			Message: childText(diag, exprDiagMessage),
			Details: childText(diag, exprDiagDetails),
		}
		if diagErr.endOfStream() {
			return page, nil
		}
		return nil, diagErr
	}

	for i, rec := range xmlquery.QuerySelectorAll(doc, exprRecord) {
		raw := RawRecord{
			Position: offset + i,
			Schema:   childText(rec, exprRecordSchema),
		}
		if data := xmlquery.QuerySelector(rec, exprRecordData); data != nil {
			raw.Data = serialize(data)
		}
		page.Records = append(page.Records, raw)
	}

	return page, nil
}

func childText(n *xmlquery.Node, expr *xpath.Expr) string {
	child := xmlquery.QuerySelector(n, expr)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.InnerText())
}

// serialize writes the subtree rooted at n with namespace prefixes and
// declarations removed. Declarations usually live on the response root, so a
// prefixed fragment would not parse on its own.
func serialize(n *xmlquery.Node) string {
	var sb strings.Builder
	writeNode(&sb, n)
	return sb.String()
}

func writeNode(sb *strings.Builder, n *xmlquery.Node) {
	switch n.Type {
	case xmlquery.TextNode, xmlquery.CharDataNode:
		_ = xml.EscapeText(sb, []byte(n.Data))
	case xmlquery.ElementNode:
		sb.WriteByte('<')
		sb.WriteString(n.Data)
		seen := make(map[string]bool, len(n.Attr))
		for _, attr := range n.Attr {
			if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" || seen[attr.Name.Local] {
				continue
			}
			seen[attr.Name.Local] = true
			sb.WriteByte(' ')
			sb.WriteString(attr.Name.Local)
			sb.WriteString(`="`)
			_ = xml.EscapeText(sb, []byte(attr.Value))
			sb.WriteByte('"')
		}
		sb.WriteByte('>')
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			writeNode(sb, child)
		}
		sb.WriteString("</")
		sb.WriteString(n.Data)
		sb.WriteByte('>')
	default:
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			writeNode(sb, child)
		}
	}
}
