// ABOUTME: Parser interface for heap dump formats
// ABOUTME: Defines the contract for pluggable dump parsers

package heapdump

import (
	"io"

	"github.com/prateek/stackgc/graph"
)

// Parser is the interface for heap dump parsers
type Parser interface {
	// Name identifies the format in listings and errors
	Name() string

	// CanParse checks if this parser can handle the given dump format.
	// The reader holds only the head of the dump.
	CanParse(r io.Reader) bool

	// Parse reads the whole dump and builds a graph
	Parse(r io.Reader) (graph.Graph, error)
}
