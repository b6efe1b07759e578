package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrorKind classifies gateway failures. The split between ParseError and
// Unavailable drives retry policy: a parse failure means the remote call
// succeeded but the model did not conform, so retrying the same prompt at
// temperature 0 would reproduce the same malformed output.
type ErrorKind string

const (
	// KindConfig means no credential/client is configured. Never retried.
	KindConfig ErrorKind = "CONFIG"
	// KindUnavailable means the upstream failed after exhausting retries.
	KindUnavailable ErrorKind = "LLM_UNAVAILABLE"
	// KindParseError means the model output did not match the expected schema.
	KindParseError ErrorKind = "PARSE_ERROR"
)

// CallError carries the classified failure of one gateway call.
type CallError struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	Raw        string    `json:"raw,omitempty"`
}

// Error implements the error interface.
func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status=%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Part is one element of a multipart prompt: text, or a PNG image for
// vision-based evaluation.
type Part struct {
	Text     string
	ImagePNG []byte
}

// TextPart builds a text prompt part.
func TextPart(text string) Part { return Part{Text: text} }

// ImagePart builds a PNG image prompt part.
func ImagePart(png []byte) Part { return Part{ImagePNG: png} }

// Schema pairs a compiled JSON schema with a name for diagnostics. When a
// request carries a schema, the gateway validates the raw model output
// against it before returning.
type Schema struct {
	Name     string
	compiled *jsonschema.Schema
}

// MustCompileSchema compiles a JSON schema document, panicking on error.
// Schemas are package-level constants, so a compile failure is a programming
// mistake caught at startup.
func MustCompileSchema(name, doc string) *Schema {
	compiled := jsonschema.MustCompileString(name+".json", doc)
	return &Schema{Name: name, compiled: compiled}
}

// Validate checks raw model output against the schema.
func (s *Schema) Validate(raw string) error {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()

	var value interface{}
	if err := decoder.Decode(&value); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}

	if err := s.compiled.Validate(value); err != nil {
		return fmt.Errorf("schema %s: %w", s.Name, err)
	}

	return nil
}

// Request describes one gateway call.
type Request struct {
	// Operation labels the call for logs, metrics, and traces.
	Operation string
	// Parts form the prompt. Most calls carry a single text part.
	Parts []Part
	// Schema, when set, makes the call a structured-output call.
	Schema *Schema
}

// Result is the closed outcome variant of a gateway call: structured JSON,
// raw text, or a classified error. Downstream code never inspects transport
// errors directly.
type Result struct {
	OK   bool
	Text string
	JSON json.RawMessage
	Err  *CallError
}

// Decode unmarshals a structured result payload into out.
func (r Result) Decode(out interface{}) error {
	if !r.OK {
		return r.Err
	}
	if len(r.JSON) == 0 {
		return fmt.Errorf("result has no structured payload")
	}
	return json.Unmarshal(r.JSON, out)
}

// Caller is the outbound LLM boundary. All evaluation components depend on
// this interface rather than on the OpenAI client, so tests can inject fakes.
type Caller interface {
	Call(ctx context.Context, req Request) Result
}
