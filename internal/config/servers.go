package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mochilink/mochi-sync/internal/domain"
)

// ServerEntry is one server in the registry file.
type ServerEntry struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Address      string   `yaml:"address"`
	Capabilities []string `yaml:"capabilities"`
}

// serversFile is the on-disk shape of the registry file.
type serversFile struct {
	Servers []ServerEntry `yaml:"servers"`
}

// LoadServers reads the YAML server registry file. A missing file yields an
// empty registry, not an error; servers can also be registered through the
// API at runtime.
func LoadServers(path string) ([]ServerEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading servers file: %w", err)
	}

	var file serversFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing servers file: %w", err)
	}

	seen := make(map[string]bool, len(file.Servers))
	for i, s := range file.Servers {
		if s.ID == "" {
			return nil, fmt.Errorf("servers[%d]: id is required", i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("servers[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
		for _, cap := range s.Capabilities {
			switch cap {
			case domain.CapabilityWhitelist, domain.CapabilityBan:
			default:
				return nil, fmt.Errorf("servers[%d]: unknown capability %q", i, cap)
			}
		}
	}
	return file.Servers, nil
}
