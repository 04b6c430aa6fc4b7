// Package toolsurface is the fixed vocabulary of reasoner-invokable tools:
// pure declarations (name, description, JSON parameter schema) plus a
// per-tool execution contract closed over a small collaborator set
// (Telegram transport, Archive, memory root, Scheduler). Every execution
// returns a ToolResult triple, mirroring the spec's content/is_error/image
// split and the teacher's `pkg/tools/os_tool.go` ActionSpec-registry shape,
// generalized beyond a single fixed action set.
package toolsurface

import (
	"context"
	"fmt"
)

// Image is an inline result image (a generated photo, a profile picture).
type Image struct {
	Data     []byte
	MimeType string
}

// Result is the triple every tool execution returns: optional text,
// an error flag, and an optional inline image.
type Result struct {
	Content string
	IsError bool
	Image   *Image
}

func Ok(content string) *Result            { return &Result{Content: content} }
func OkImage(content string, img *Image) *Result {
	return &Result{Content: content, Image: img}
}
func Errf(format string, args ...any) *Result {
	return &Result{Content: fmt.Sprintf(format, args...), IsError: true}
}

// ParamSchema is one JSON-Schema property entry surfaced to the reasoner.
type ParamSchema struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Spec declares one tool: its schema and its execution function. This is
// the registry-of-specs pattern carried over from the teacher's OS-action
// tool, generalized to the full fixed vocabulary below.
type Spec struct {
	Name        string
	Description string
	Params      map[string]ParamSchema
	Required    []string
	// IsQuery marks tools that return content for the reasoner to read,
	// as opposed to pure side-effect "action" tools. The dispatch engine
	// does not read this flag: its clean-exit test (§4.1) looks at each
	// Result's content, error flag and image.
	IsQuery bool
	Execute func(ctx context.Context, x *ExecContext, args map[string]any) *Result
}

// Registry holds the fixed tool vocabulary, keyed by name.
type Registry struct {
	specs map[string]*Spec
	order []string
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]*Spec)}
}

func (r *Registry) Register(s *Spec) {
	if _, exists := r.specs[s.Name]; !exists {
		r.order = append(r.order, s.Name)
	}
	r.specs[s.Name] = s
}

func (r *Registry) Get(name string) (*Spec, bool) {
	s, ok := r.specs[name]
	return s, ok
}

func (r *Registry) All() []*Spec {
	out := make([]*Spec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.specs[name])
	}
	return out
}
