// Package mcpgateway implements a minimal, self-contained search/execute
// surface over an in-process tool registry. It models the shape of the
// original system's MCP aggregator (search/execute federation over
// downstream tool servers) without its transport or access-control layer,
// both of which spec.md places out of scope (SPEC_FULL.md §4 "Supplemental:
// MCP aggregator surface"). It carries none of the core gateway's
// invariants and has no bearing on routing or the rate-limit gate.
package mcpgateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Tool is one entry in the in-process registry.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // a JSON-Schema-shaped map, kept loose deliberately
	Handler     func(ctx context.Context, args map[string]any) (any, error)
}

// registeredTool pairs a Tool with its compiled argument schema, if any.
type registeredTool struct {
	Tool
	schema *jsonschema.Schema
}

// Registry holds the tools this gateway can search and execute.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]registeredTool)}
}

// Register adds or replaces a tool. If Parameters is set, arguments passed
// to Execute are validated against it before the handler runs; a tool with
// no Parameters accepts any arguments.
func (r *Registry) Register(t Tool) error {
	rt := registeredTool{Tool: t}
	if len(t.Parameters) > 0 {
		schema, err := compileSchema(t.Name, t.Parameters)
		if err != nil {
			return fmt.Errorf("mcpgateway: tool %q: compiling parameters schema: %w", t.Name, err)
		}
		rt.schema = schema
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = rt
	return nil
}

// compileSchema round-trips params through JSON so jsonschema.UnmarshalJSON
// gets values it understands (json.Number, not arbitrary Go ints/floats),
// then compiles it under a resource name unique to the tool.
func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}

	c := jsonschema.NewCompiler()
	resource := "mcpgateway://tools/" + name
	if err := c.AddResource(resource, doc); err != nil {
		return nil, err
	}
	return c.Compile(resource)
}

// SearchResult is one match from Search.
type SearchResult struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Search returns every registered tool whose name or description contains
// query, case-insensitively; an empty query returns everything, sorted by
// name for deterministic output.
func (r *Registry) Search(query string) []SearchResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(query)
	var results []SearchResult
	for _, t := range r.tools {
		if q == "" || strings.Contains(strings.ToLower(t.Name), q) || strings.Contains(strings.ToLower(t.Description), q) {
			results = append(results, SearchResult{Name: t.Name, Description: t.Description})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}

// Execute invokes a registered tool by name, validating args against its
// Parameters schema first when one was declared.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mcpgateway: no tool registered with name %q", name)
	}

	if t.schema != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("mcpgateway: marshaling arguments: %w", err)
		}
		instance, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("mcpgateway: decoding arguments: %w", err)
		}
		if err := t.schema.Validate(instance); err != nil {
			return nil, fmt.Errorf("mcpgateway: tool %q: invalid arguments: %w", name, err)
		}
	}

	return t.Handler(ctx, args)
}
