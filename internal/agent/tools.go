package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

// Tool is an executable capability exposed to the model.
type Tool interface {
	Name() string
	Description() string

	// Schema is the JSON schema for the tool's arguments.
	Schema() json.RawMessage

	// Execute runs the tool. onOutput, when non-nil, receives streamed
	// output chunks. Execution failures are returned as errors; the
	// loop converts them into tool-result messages rather than failing
	// the turn.
	Execute(ctx context.Context, args json.RawMessage, onOutput func(chunk string)) (string, error)
}

// Registry holds the available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool with the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	r.tools[tool.Name()] = tool
	r.mu.Unlock()
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the adapter-facing specs. When allowed is non-nil only
// the listed tools are included; unknown names are ignored.
func (r *Registry) Specs(allowed []string) []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var permit map[string]bool
	if allowed != nil {
		permit = make(map[string]bool, len(allowed))
		for _, name := range allowed {
			permit[name] = true
		}
	}

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		if permit != nil && !permit[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		tool := r.tools[name]
		specs = append(specs, ToolSpec{
			Name:        tool.Name(),
			Description: tool.Description(),
			Schema:      tool.Schema(),
		})
	}
	return specs
}

// Allowed reports whether name passes the restriction list. A nil list
// permits everything.
func Allowed(name string, allowed []string) bool {
	if allowed == nil {
		return true
	}
	for _, a := range allowed {
		if a == name {
			return true
		}
	}
	return false
}

// reflectSchema generates a JSON schema for a parameter struct.
func reflectSchema(v any) json.RawMessage {
	reflector := jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(v)
	schema.Version = ""
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// validateArgs checks model-supplied arguments against a tool schema.
// An empty argument string validates as an empty object.
func validateArgs(schema json.RawMessage, args json.RawMessage) error {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	compiler := validator.NewCompiler()
	if err := compiler.AddResource("schema.json", bytesReader(schema)); err != nil {
		return fmt.Errorf("load tool schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile tool schema: %w", err)
	}

	var value any
	if err := json.Unmarshal(args, &value); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
