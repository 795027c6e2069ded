// Package template provides named credential templates used by the issuer.
// Templates are JSON skeletons bundled with the module; callers can register
// additional templates at runtime.
package template

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/exp/slices"

	"github.com/pilacorp/go-ssi-sdk/credential/common/jsonmap"
)

//go:embed templates/*.json
var embeddedTemplates embed.FS

// ErrTemplateNotFound is returned when no template matches the requested name.
var ErrTemplateNotFound = errors.New("credential template not found")

// Template is a named credential skeleton with an optional JSON Schema
// describing documents issued from it.
type Template struct {
	Name       string          `json:"name"`
	Credential json.RawMessage `json:"credential"`
	Schema     json.RawMessage `json:"schema,omitempty"`
}

// Registry holds credential templates by name.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRegistry builds a registry containing the embedded templates.
func NewRegistry() (*Registry, error) {
	r := &Registry{templates: make(map[string]Template)}

	entries, err := fs.ReadDir(embeddedTemplates, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded templates: %w", err)
	}

	for _, entry := range entries {
		data, err := embeddedTemplates.ReadFile("templates/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", entry.Name(), err)
		}

		var tpl Template
		if err := json.Unmarshal(data, &tpl); err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", entry.Name(), err)
		}

		if err := r.Register(tpl); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds a template, replacing any existing template with the same
// name.
func (r *Registry) Register(tpl Template) error {
	if tpl.Name == "" {
		return fmt.Errorf("template name is required")
	}
	if len(tpl.Credential) == 0 {
		return fmt.Errorf("template %s has no credential document", tpl.Name)
	}

	var doc jsonmap.JSONMap
	if err := json.Unmarshal(tpl.Credential, &doc); err != nil {
		return fmt.Errorf("template %s carries an invalid credential document: %w", tpl.Name, err)
	}

	r.mu.Lock()
	r.templates[tpl.Name] = tpl
	r.mu.Unlock()

	return nil
}

// Load returns a fresh copy of the named template's credential document.
// Mutating the returned document does not affect the registry.
func (r *Registry) Load(name string) (jsonmap.JSONMap, error) {
	r.mu.RLock()
	tpl, ok := r.templates[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}

	var doc jsonmap.JSONMap
	if err := json.Unmarshal(tpl.Credential, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	return doc, nil
}

// List returns the registered template names in lexical order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}

	slices.Sort(names)

	return names
}

// Validate checks a credential document against the named template's JSON
// Schema. Templates without a schema accept any document.
func (r *Registry) Validate(name string, document map[string]interface{}) error {
	r.mu.RLock()
	tpl, ok := r.templates[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	if len(tpl.Schema) == 0 {
		return nil
	}

	schemaLoader := gojsonschema.NewStringLoader(string(tpl.Schema))
	documentLoader := gojsonschema.NewGoLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate against template %s: %w", name, err)
	}
	if !result.Valid() {
		return fmt.Errorf("document does not conform to template %s: %v", name, result.Errors())
	}

	return nil
}
