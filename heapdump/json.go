// ABOUTME: JSON heap dump format: writer for snapshots and the registered parser
// ABOUTME: Parsing validates the same shape the collector maintains

package heapdump

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/prateek/stackgc/graph"
)

// FormatJSON is the format tag written at the start of every JSON dump
const FormatJSON = "stackgc-heap/1"

// JSON is the parser for JSON dumps
type JSON struct{}

type jsonDump struct {
	Format  string        `json:"format"`
	Objects []jsonObject  `json:"objects"`
	Roots   []graph.ObjID `json:"roots"`
}

// jsonObject is one dumped object. Pair ptrs are positional, 0 is an empty link.
type jsonObject struct {
	ID    graph.ObjID   `json:"id"`
	Kind  string        `json:"kind"`
	Value int64         `json:"value,omitempty"`
	Ptrs  []graph.ObjID `json:"ptrs,omitempty"`
}

// Write encodes g as a JSON dump with objects in ID order
func Write(w io.Writer, g graph.Graph) error {
	dump := jsonDump{
		Format:  FormatJSON,
		Objects: make([]jsonObject, 0, g.NumObjects()),
		Roots:   g.GetRoots().IDs,
	}
	if dump.Roots == nil {
		dump.Roots = []graph.ObjID{}
	}
	g.ForEachObject(func(obj *graph.Object) {
		dump.Objects = append(dump.Objects, jsonObject{
			ID:    obj.ID,
			Kind:  obj.Kind,
			Value: obj.Value,
			Ptrs:  obj.Ptrs,
		})
	})
	slices.SortFunc(dump.Objects, func(a, b jsonObject) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(&dump)
}

func (p *JSON) Name() string {
	return "json"
}

// CanParse checks that the dump is a JSON object whose first key is the
// format tag. Only the leading tokens are read, so large dumps are fine.
func (p *JSON) CanParse(r io.Reader) bool {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return false
	}
	if tok, err = dec.Token(); err != nil || tok != "format" {
		return false
	}
	tok, err = dec.Token()
	return err == nil && tok == FormatJSON
}

// Parse reads the JSON dump and builds a graph
func (p *JSON) Parse(r io.Reader) (graph.Graph, error) {
	var dump jsonDump

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&dump); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	if dump.Format != FormatJSON {
		return nil, fmt.Errorf("unsupported format %q", dump.Format)
	}

	g := graph.NewMemGraph()
	for i, obj := range dump.Objects {
		if err := validateObject(obj); err != nil {
			return nil, fmt.Errorf("object at index %d: %w", i, err)
		}
		if g.GetObject(obj.ID) != nil {
			return nil, fmt.Errorf("object at index %d: duplicate ID %d", i, obj.ID)
		}
		g.AddObject(&graph.Object{
			ID:    obj.ID,
			Kind:  obj.Kind,
			Value: obj.Value,
			Ptrs:  obj.Ptrs,
		})
	}

	// Every edge and root must land on a dumped object
	var dangling error
	g.ForEachObject(func(obj *graph.Object) {
		for _, ptr := range obj.Ptrs {
			if ptr != graph.NilID && dangling == nil && g.GetObject(ptr) == nil {
				dangling = fmt.Errorf("object %d points to missing object %d", obj.ID, ptr)
			}
		}
	})
	if dangling != nil {
		return nil, dangling
	}
	for _, id := range dump.Roots {
		if g.GetObject(id) == nil {
			return nil, fmt.Errorf("root %d is not a dumped object", id)
		}
	}

	roots := graph.Roots{IDs: dump.Roots}
	if roots.IDs == nil {
		roots.IDs = []graph.ObjID{}
	}
	g.SetRoots(roots)

	return g, nil
}

func validateObject(obj jsonObject) error {
	if obj.ID == 0 {
		return fmt.Errorf("missing ID")
	}
	switch obj.Kind {
	case graph.KindInt:
		if len(obj.Ptrs) != 0 {
			return fmt.Errorf("int object %d has pointers", obj.ID)
		}
	case graph.KindPair:
		if len(obj.Ptrs) > 2 {
			return fmt.Errorf("pair object %d has %d pointers", obj.ID, len(obj.Ptrs))
		}
		if obj.Value != 0 {
			return fmt.Errorf("pair object %d has a value", obj.ID)
		}
	default:
		return fmt.Errorf("object %d has unknown kind %q", obj.ID, obj.Kind)
	}
	return nil
}

func init() {
	Register(&JSON{})
}
