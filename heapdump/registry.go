// ABOUTME: Registry for heap dump parsers
// ABOUTME: Manages parser plugins and selects appropriate parser for dumps

package heapdump

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/prateek/stackgc/graph"
)

var (
	// ErrNoParser is returned when no parser can handle the dump format
	ErrNoParser = errors.New("no parser found for dump format")
)

// detectSize is how much of a dump parsers see for format detection
const detectSize = 4096

type parserRegistry struct {
	mu      sync.RWMutex
	parsers []Parser
}

var registry = &parserRegistry{
	parsers: make([]Parser, 0),
}

// Register adds a parser to the registry
func Register(p Parser) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.parsers = append(registry.parsers, p)
}

// Formats returns the names of the registered parsers in registration order
func Formats() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	names := make([]string, 0, len(registry.parsers))
	for _, p := range registry.parsers {
		names = append(names, p.Name())
	}
	return names
}

// Open reads a heap dump and returns a graph. The first registered parser
// that recognises the head of the dump parses it.
func Open(r io.Reader) (graph.Graph, error) {
	br := bufio.NewReaderSize(r, detectSize)
	head, err := br.Peek(detectSize)
	if err != nil && err != io.EOF {
		return nil, err
	}

	registry.mu.RLock()
	defer registry.mu.RUnlock()

	for _, parser := range registry.parsers {
		if parser.CanParse(bytes.NewReader(head)) {
			return parser.Parse(br)
		}
	}

	return nil, ErrNoParser
}
