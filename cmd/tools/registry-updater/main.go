// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"form-relay/pkg/registry"
)

var registryPath string

func main() {
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{listCmd, updateCmd, validateCmd} {
		fs.StringVar(&registryPath, "path", "pkg/registry/forms.json", "Path to registry file")
	}

	kind := updateCmd.String("kind", "", "Form kind (e.g., contact-form)")
	field := updateCmd.String("field", "", "Field to update (displayName, route, deliveryFailedMessage, successOnDeliveryFailure)")
	value := updateCmd.String("value", "", "New value for the field")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "list":
		listCmd.Parse(os.Args[2:])
		if err := listForms(); err != nil {
			fmt.Printf("Error listing forms: %v\n", err)
			os.Exit(1)
		}

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *kind == "" || *field == "" {
			fmt.Println("Error: kind and field are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateForm(*kind, *field, *value); err != nil {
			fmt.Printf("Error updating form: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated form %s, field %s to %q\n", *kind, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func listForms() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	for _, f := range reg.Forms {
		fmt.Printf("%-18s POST %-20s successOnDeliveryFailure=%t tags=%s\n",
			f.Kind, f.Route, f.SuccessOnDeliveryFailure, strings.Join(f.Tags, ","))
	}
	return nil
}

func updateForm(kind, field, value string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	found := false
	for i := range reg.Forms {
		if reg.Forms[i].Kind != kind {
			continue
		}
		found = true
		switch field {
		case "displayName":
			reg.Forms[i].DisplayName = value
		case "route":
			if !strings.HasPrefix(value, "/") {
				return fmt.Errorf("route must start with /")
			}
			reg.Forms[i].Route = value
		case "deliveryFailedMessage":
			reg.Forms[i].DeliveryFailedMessage = value
		case "successOnDeliveryFailure":
			b, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid successOnDeliveryFailure value: %w", err)
			}
			reg.Forms[i].SuccessOnDeliveryFailure = b
		default:
			return fmt.Errorf("unknown field: %s", field)
		}
		break
	}

	if !found {
		return fmt.Errorf("form with kind %s not found", kind)
	}

	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return saveRegistry(reg, registryPath)
}

// validateRegistry checks structure and that every schema compiles.
func validateRegistry() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	if len(reg.Forms) == 0 {
		return fmt.Errorf("registry contains no forms")
	}

	routes := make(map[string]string)
	for _, f := range reg.Forms {
		if other, ok := routes[f.Route]; ok {
			return fmt.Errorf("forms %s and %s share route %s", other, f.Kind, f.Route)
		}
		routes[f.Route] = f.Kind

		if f.DeliveryFailedMessage == "" {
			return fmt.Errorf("form %s missing required field: deliveryFailedMessage", f.Kind)
		}

		schema, err := f.SchemaJSON()
		if err != nil {
			return fmt.Errorf("form %s: %w", f.Kind, err)
		}
		if schema == nil {
			continue
		}
		if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema)); err != nil {
			return fmt.Errorf("form %s: invalid schema: %w", f.Kind, err)
		}
	}

	fmt.Printf("Registry validation passed. Found %d forms.\n", len(reg.Forms))
	return nil
}

func saveRegistry(reg *registry.FormRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func help() {
	fmt.Println(`
Usage: registry-updater <command> [flags]

Commands:
  list      List registered forms
  update    Update a field of a registered form
  validate  Validate the registry file and compile its schemas
  help      Show this help message

Examples:
  registry-updater list
  registry-updater update -kind contact-form -field deliveryFailedMessage -value "Mesajınız kaydedildi."
  registry-updater update -kind membership-form -field successOnDeliveryFailure -value true
  registry-updater validate -path pkg/registry/forms.json`)
}
