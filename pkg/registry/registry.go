// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
)

//go:embed forms.json
var defaultForms []byte

// LoadRegistry reads a registry file from disk.
func LoadRegistry(path string) (*FormRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(data)
}

// Default returns the registry compiled into the binary.
func Default() *FormRegistry {
	reg, err := parse(defaultForms)
	if err != nil {
		panic(fmt.Sprintf("embedded form registry: %v", err))
	}
	return reg
}

func parse(data []byte) (*FormRegistry, error) {
	var reg FormRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *FormRegistry) Validate() error {
	seen := make(map[string]bool, len(r.Forms))
	for i, f := range r.Forms {
		if f.Kind == "" {
			return fmt.Errorf("forms[%d]: kind is required", i)
		}
		if f.Route == "" {
			return fmt.Errorf("forms[%d]: route is required", i)
		}
		if seen[f.Kind] {
			return fmt.Errorf("forms[%d]: duplicate kind %q", i, f.Kind)
		}
		seen[f.Kind] = true
	}
	return nil
}

// Lookup returns the form registered for kind.
func (r *FormRegistry) Lookup(kind string) (Form, bool) {
	for _, f := range r.Forms {
		if f.Kind == kind {
			return f, true
		}
	}
	return Form{}, false
}

// SchemaJSON returns the form's JSON schema, or nil when it has none.
func (f Form) SchemaJSON() ([]byte, error) {
	if len(f.Schema) == 0 {
		return nil, nil
	}
	return json.Marshal(f.Schema)
}
