// Package tools holds the functions a model may call during a turn and the
// registry that resolves a tool call to one of them.
package tools

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	perrors "github.com/HexSleeves/parley/internal/errors"
	"github.com/HexSleeves/parley/internal/llm"
)

// Handler executes a tool with already-validated arguments.
type Handler func(ctx context.Context, args map[string]interface{}) (string, error)

// Tool is a named local function the model can request.
type Tool struct {
	Name        string
	Description string
	Schema      Schema
	Handler     Handler
}

// Definition returns the advertisement sent to the backend.
func (t Tool) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Schema.JSONSchema(),
	}
}

// emptyResult stands in for a handler that returned nothing, so the tool
// message still carries content.
const emptyResult = "(no result)"

// Registry maps tool names to tools.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	logger *log.Logger
}

// NewRegistry creates an empty registry. logger may be nil.
func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

func (r *Registry) logf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}

// Register adds a tool. Names must be unique and non-empty.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if t.Handler == nil {
		return fmt.Errorf("register tool %s: nil handler", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("register tool %s: already registered", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
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

// Definitions returns the advertisements for every tool, sorted by name.
func (r *Registry) Definitions() []llm.ToolDef {
	names := r.Names()
	defs := make([]llm.ToolDef, 0, len(names))
	for _, name := range names {
		t, _ := r.Lookup(name)
		defs = append(defs, t.Definition())
	}
	return defs
}

// Call resolves and runs a tool, reporting every failure to the caller:
// unknown tools, malformed or invalid arguments, handler errors and panics.
func (r *Registry) Call(ctx context.Context, name string, args llm.Arguments) (string, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return "", &perrors.ToolNotFoundError{Name: name}
	}
	obj, err := args.Object()
	if err != nil {
		return "", &perrors.MalformedArgumentsError{Tool: name, Raw: args.Text(), Err: err}
	}
	return r.run(ctx, t, obj)
}

// Invoke is the never-failing variant used by the tool loop. Problems are
// logged and turned into a result string the model can read.
func (r *Registry) Invoke(ctx context.Context, name string, args llm.Arguments) string {
	t, ok := r.Lookup(name)
	if !ok {
		err := &perrors.ToolNotFoundError{Name: name}
		r.logf("⚠ %v", err)
		return fmt.Sprintf("error: tool %q is not available", name)
	}

	obj, err := args.Object()
	if err != nil {
		r.logf("⚠ %s: malformed arguments %q, using empty object: %v", name, args.Text(), err)
		obj = map[string]interface{}{}
	}

	result, err := r.run(ctx, t, obj)
	if err != nil {
		r.logf("⚠ tool %s failed: %v", name, err)
		return "error: " + err.Error()
	}
	return result
}

func (r *Registry) run(ctx context.Context, t Tool, args map[string]interface{}) (result string, err error) {
	if err := t.Schema.Validate(args); err != nil {
		return "", fmt.Errorf("%s: %w", t.Name, err)
	}

	defer func() {
		if rec := perrors.RecoverPanic(recover()); rec.Recovered {
			result = ""
			err = fmt.Errorf("%s: %w", t.Name, rec.Err())
		}
	}()

	result, err = t.Handler(ctx, args)
	if err != nil {
		return "", fmt.Errorf("%s: %w", t.Name, err)
	}
	if result == "" {
		result = emptyResult
	}
	return result, nil
}
