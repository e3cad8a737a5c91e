package routing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk routing configuration.
//
// Example:
//
//	resolution: direct
//	serviceNamespace: dashboard
//	servicePort: 8080
//	upstreams:
//	  model-registry:
//	    host: localhost
//	    port: 9091
//	routes:
//	  - pathPrefix: /model-registry/api
//	    rewritePrefix: /api
//	    upstream: model-registry
//	    resource: services
//	    requiresAuthorization: true
type File struct {
	Resolution       ResolutionMode            `yaml:"resolution"`
	ServiceNamespace string                    `yaml:"serviceNamespace"`
	ServicePort      int                       `yaml:"servicePort"`
	Upstreams        map[string]UpstreamTarget `yaml:"upstreams"`
	Routes           []RouteRule               `yaml:"routes"`
}

// Load reads and validates a routing file, producing an immutable table.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing file: %w", err)
	}
	return Parse(data)
}

// Parse builds a table from raw YAML.
func Parse(data []byte) (*Table, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse routing file: %w", err)
	}

	if file.Resolution == "" {
		file.Resolution = ModeService
	}
	if !file.Resolution.Valid() {
		return nil, fmt.Errorf("invalid resolution mode %q", file.Resolution)
	}
	if file.ServiceNamespace == "" {
		file.ServiceNamespace = "default"
	}

	resolver := NewResolver(file.Resolution, file.Upstreams, file.ServiceNamespace, file.ServicePort)
	table, err := NewTable(file.Routes, resolver)
	if err != nil {
		return nil, err
	}
	return table, nil
}
