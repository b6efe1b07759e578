// Package extract turns raw submission bytes into prompt-ready text and,
// when the document is structured, into question/answer pairs.
package extract

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"
)

// Document is the extraction outcome for one submission file.
type Document struct {
	Filename string
	FileType string
	Text     string
}

// htmlStripper removes markup from HTML submissions so prompts carry only
// the student's content.
var htmlStripper = bluemonday.StrictPolicy()

// ReadDocument extracts text from submission bytes. PDF and office formats
// are handled upstream by the conversion pipeline; by the time bytes arrive
// here they are text-bearing.
func ReadDocument(filename string, data []byte) (Document, error) {
	mime := mimetype.Detect(data)

	doc := Document{Filename: filename, FileType: fileTypeOf(mime)}

	switch {
	case mime.Is("text/html"):
		doc.Text = strings.TrimSpace(htmlStripper.Sanitize(string(data)))
	case strings.HasPrefix(mime.String(), "text/"), mime.Is("application/json"), mime.Is("application/xml"):
		doc.Text = strings.TrimSpace(string(data))
	default:
		return doc, fmt.Errorf("unsupported submission type %s for %s", mime.String(), filename)
	}

	return doc, nil
}

func fileTypeOf(mime *mimetype.MIME) string {
	switch {
	case mime.Is("text/html"):
		return "html"
	case mime.Is("application/json"):
		return "json"
	case mime.Is("text/csv"):
		return "csv"
	case strings.HasPrefix(mime.String(), "text/"):
		return "text"
	default:
		return strings.TrimPrefix(mime.Extension(), ".")
	}
}
