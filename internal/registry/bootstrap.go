// ABOUTME: Optional YAML seed file of remote swarm endpoints, loaded once at startup.
// ABOUTME: Supplements persisted-registry loading for first-run federation without manual /swarms/register calls.
package registry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// BootstrapEntry is one seed endpoint in a swarms.yaml file.
type BootstrapEntry struct {
	Name         string `yaml:"name"`
	BaseURL      string `yaml:"base_url"`
	AuthTokenRef string `yaml:"auth_token_ref,omitempty"`
}

type bootstrapFile struct {
	Swarms []BootstrapEntry `yaml:"swarms"`
}

// LoadBootstrapFile reads a swarms.yaml seed list and registers every entry
// not already known. Entries referencing an unresolved env var still
// register — ValidateEnvironmentVariables surfaces that separately. A
// missing file is not an error: the bootstrap list is optional.
func (r *Registry) LoadBootstrapFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("registry: read bootstrap file: %w", err)
	}

	var bf bootstrapFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return fmt.Errorf("registry: parse bootstrap file: %w", err)
	}

	for _, entry := range bf.Swarms {
		if _, ok := r.Get(entry.Name); ok {
			continue
		}
		var token string
		if entry.AuthTokenRef != "" {
			envName := strings.TrimSuffix(strings.TrimPrefix(entry.AuthTokenRef, "${"), "}")
			token = os.Getenv(envName)
		}
		ep, err := r.RegisterSwarm(entry.Name, entry.BaseURL, token, nil, false)
		if err != nil {
			return fmt.Errorf("registry: bootstrap entry %q: %w", entry.Name, err)
		}
		if token == "" && entry.AuthTokenRef != "" {
			r.mu.Lock()
			ep.AuthTokenRef = entry.AuthTokenRef
			r.mu.Unlock()
		}
	}
	return nil
}
