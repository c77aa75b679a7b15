package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/boynton/data"
	"gopkg.in/yaml.v3"
)

// Conventional file names inside a service model directory. The numbered
// variants match the names services publish; the plain ones are accepted
// for hand-written models and fixtures.
var (
	apiFileNames           = []string{"api-2.json", "api.json"}
	paginatorsFileNames    = []string{"paginators-1.json", "paginators.json"}
	customizationFileNames = []string{"customization.config", "customization.yaml"}
	endpointRulesFileNames = []string{"endpoint-rule-set-1.json", "endpoint-rule-set.json"}
)

// Service bundles everything loaded for one service model directory.
type Service struct {
	// Name is the directory base name, used as the default package name.
	Name string

	API           *API
	Paginators    *Paginators
	Customization *CustomizationConfig
}

// LoadAPI parses a service model file. It does not validate shape
// references; call (*API).Validate or use LoadService for that.
func LoadAPI(path string) (*API, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading service model: %w", err)
	}
	var api API
	if err := json.Unmarshal(raw, &api); err != nil {
		return nil, fmt.Errorf("parsing service model %s: %w", path, err)
	}
	if api.Operations == nil {
		api.Operations = NewOrderedMap[*Operation]()
	}
	if api.Shapes == nil {
		api.Shapes = NewOrderedMap[*Shape]()
	}
	// Models may omit per-operation name fields; fill them from the keys.
	for _, name := range api.Operations.Keys() {
		op, _ := api.Operations.Get(name)
		if op != nil && op.Name == "" {
			op.Name = name
		}
	}
	return &api, nil
}

// LoadPaginators parses a paginator side file.
func LoadPaginators(path string) (*Paginators, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading paginators: %w", err)
	}
	var p Paginators
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parsing paginators %s: %w", path, err)
	}
	return &p, nil
}

// LoadCustomization parses a customization side file.
func LoadCustomization(path string) (*CustomizationConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading customization: %w", err)
	}
	var c CustomizationConfig
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parsing customization %s: %w", path, err)
	}
	return &c, nil
}

// LoadService loads a service model directory: the api file (required),
// paginators and customization side files (optional), and the endpoint
// rules file (optional, skipped when the customization says so). The model
// is validated before it is returned; an invalid model yields no Service.
func LoadService(dir string) (*Service, error) {
	svc := &Service{Name: filepath.Base(filepath.Clean(dir))}

	apiPath := findFile(dir, apiFileNames)
	if apiPath == "" {
		return nil, fmt.Errorf("service %s: no api model file in %s", svc.Name, dir)
	}

	if p := findFile(dir, customizationFileNames); p != "" {
		c, err := LoadCustomization(p)
		if err != nil {
			return nil, err
		}
		svc.Customization = c
	}

	api, err := LoadAPI(apiPath)
	if err != nil {
		return nil, err
	}
	svc.API = api

	if p := findFile(dir, paginatorsFileNames); p != "" {
		pg, err := LoadPaginators(p)
		if err != nil {
			return nil, err
		}
		svc.Paginators = pg
	}

	if !svc.Customization.skipEndpointRuleSet() {
		if p := findFile(dir, endpointRulesFileNames); p != "" {
			raw, err := os.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("reading endpoint rules: %w", err)
			}
			var rules data.Object
			if err := json.Unmarshal(raw, &rules); err != nil {
				return nil, fmt.Errorf("parsing endpoint rules %s: %w", p, err)
			}
			api.EndpointRuleSet = &rules
		}
	}

	if err := api.Validate(); err != nil {
		return nil, fmt.Errorf("service %s: %w", svc.Name, err)
	}
	return svc, nil
}

func (c *CustomizationConfig) skipEndpointRuleSet() bool {
	return c != nil && c.SkipEndpointRuleSet
}

func findFile(dir string, names []string) string {
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
