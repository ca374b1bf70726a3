// Package etlerr defines the error types shared by format drivers and ETL operations.
package etlerr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched with errors.Is against a *ReadError.
var (
	ErrHeaderNotFound   = errors.New("feature collection header not found")
	ErrMalformedFeature = errors.New("malformed feature")
	ErrInvalidUTF8      = errors.New("invalid utf-8")
	ErrRepairExhausted  = errors.New("truncated input could not be repaired")
)

// Kind classifies a read failure.
type Kind int

const (
	KindOther Kind = iota
	KindIO
	KindParse
	KindSchemaInference
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "I/O error"
	case KindParse:
		return "Parse error"
	case KindSchemaInference:
		return "Schema inference error"
	default:
		return "Error"
	}
}

// SourcePosition points into a source. All indices are 1-based, zero means unset.
type SourcePosition struct {
	Line       uint64
	Column     uint64
	ByteOffset uint64
	Record     uint64
	Field      uint64
}

// IsEmpty reports whether no location is set.
func (p SourcePosition) IsEmpty() bool {
	return p == SourcePosition{}
}

func (p SourcePosition) String() string {
	parts := make([]string, 0, 5)
	if p.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", p.Line))
	}
	if p.Column > 0 {
		parts = append(parts, fmt.Sprintf("column %d", p.Column))
	}
	if p.Record > 0 {
		parts = append(parts, fmt.Sprintf("record %d", p.Record))
	}
	if p.ByteOffset > 0 {
		parts = append(parts, fmt.Sprintf("byte %d", p.ByteOffset))
	}
	if p.Field > 0 {
		parts = append(parts, fmt.Sprintf("field %d", p.Field))
	}
	if len(parts) == 0 {
		return "unknown position"
	}

	return strings.Join(parts, ", ")
}

// ReadError is returned by readers, decoders and schema inference.
type ReadError struct {
	Kind     Kind
	Message  string
	Position *SourcePosition
	// Context names what was being read (path, URL, "feature").
	Context string
	// Err is an underlying cause or one of the package sentinels.
	Err error
}

func (e *ReadError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Context != "" {
		b.WriteString(" while reading ")
		b.WriteString(e.Context)
	}
	if e.Position != nil && !e.Position.IsEmpty() {
		b.WriteString(" at ")
		b.WriteString(e.Position.String())
	}
	if e.Kind == KindOther && e.Context == "" && e.Position == nil {
		return e.Message
	}
	b.WriteString(": ")
	b.WriteString(e.Message)

	return b.String()
}

func (e *ReadError) Unwrap() error { return e.Err }

// WithContext appends extra context, separated by "; ".
func (e *ReadError) WithContext(extra string) *ReadError {
	if e.Kind == KindOther {
		e.Message = e.Message + " (" + extra + ")"
		return e
	}
	if e.Context == "" {
		e.Context = extra
	} else {
		e.Context = e.Context + "; " + extra
	}

	return e
}

// Parse builds a KindParse error.
func Parse(context, message string, cause error) *ReadError {
	return &ReadError{Kind: KindParse, Message: message, Context: context, Err: cause}
}

// ParseAt builds a KindParse error with a position.
func ParseAt(context string, pos SourcePosition, message string, cause error) *ReadError {
	return &ReadError{Kind: KindParse, Message: message, Context: context, Position: &pos, Err: cause}
}

// IO wraps an I/O failure.
func IO(context string, cause error) *ReadError {
	return &ReadError{Kind: KindIO, Message: cause.Error(), Context: context, Err: cause}
}

// SchemaInference builds a KindSchemaInference error.
func SchemaInference(context, message string) *ReadError {
	return &ReadError{Kind: KindSchemaInference, Message: message, Context: context}
}
