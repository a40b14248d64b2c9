// Package rdf turns CIDOC-CRM RDF exports into the in-memory entity graph.
// It decodes triples with knakk/rdf and materializes one entity document per
// IRI subject, with edges weighted by the shared relationship table.
package rdf

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	knakk "github.com/knakk/rdf"
)

// Source yields a triple stream for the builder. Implementations own the
// underlying reader; the builder closes it when the build finishes.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, knakk.Format, error)
	Name() string
}

// FileSource reads triples from a file, sniffing the serialization from the
// extension (.nt, .ttl, .rdf, .owl, .xml). Unknown extensions parse as
// Turtle, which also covers N-Triples in practice.
type FileSource struct {
	Path string
}

// Open opens the file and resolves its format.
func (s FileSource) Open(ctx context.Context) (io.ReadCloser, knakk.Format, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, knakk.Turtle, fmt.Errorf("failed to open rdf source: %w", err)
	}
	return f, DetectFormat(s.Path), nil
}

// Name returns the file path.
func (s FileSource) Name() string { return s.Path }

// ReaderSource wraps an in-memory or streaming reader with an explicit
// format.
type ReaderSource struct {
	Reader io.Reader
	Format knakk.Format
	Label  string
}

// Open returns the wrapped reader.
func (s ReaderSource) Open(ctx context.Context) (io.ReadCloser, knakk.Format, error) {
	if rc, ok := s.Reader.(io.ReadCloser); ok {
		return rc, s.Format, nil
	}
	return io.NopCloser(s.Reader), s.Format, nil
}

// Name returns the label, or "reader" when unset.
func (s ReaderSource) Name() string {
	if s.Label != "" {
		return s.Label
	}
	return "reader"
}

// DetectFormat maps a file extension to a knakk/rdf serialization format.
func DetectFormat(path string) knakk.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".nt":
		return knakk.NTriples
	case ".rdf", ".owl", ".xml":
		return knakk.RDFXML
	default:
		return knakk.Turtle
	}
}

// FormatFromName resolves a serialization name such as "turtle" or "ntriples".
func FormatFromName(name string) (knakk.Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ntriples", "nt":
		return knakk.NTriples, nil
	case "turtle", "ttl":
		return knakk.Turtle, nil
	case "rdfxml", "rdf", "xml":
		return knakk.RDFXML, nil
	default:
		return knakk.NTriples, fmt.Errorf("unknown rdf format %q", name)
	}
}

// SourceFor builds a file-backed source. A non-empty format name overrides
// extension detection.
func SourceFor(path, format string) (Source, error) {
	if format == "" {
		return FileSource{Path: path}, nil
	}
	f, err := FormatFromName(format)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rdf source: %w", err)
	}
	return ReaderSource{Reader: file, Format: f, Label: path}, nil
}
