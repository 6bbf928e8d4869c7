package fetcher

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/FlickerMi/proxyforge/pkg/config"
	"github.com/FlickerMi/proxyforge/pkg/proxy"
)

// SourceDef is one entry of a sources file.
type SourceDef struct {
	Name string `yaml:"name"`
	// Kind is "text", "html", or "geonode".
	Kind string `yaml:"kind"`
	URL  string `yaml:"url"`
	// Protocol applies to text listings whose lines carry no scheme.
	Protocol string `yaml:"protocol"`
	// MaxPages applies to paginated kinds; 0 falls back to the fetcher config.
	MaxPages int `yaml:"max_pages"`
}

// sourcesFile is the YAML document shape.
type sourcesFile struct {
	Sources []SourceDef `yaml:"sources"`
}

// LoadSourcesFile reads a sources YAML file and builds the source list it
// defines, replacing the built-in registry.
func LoadSourcesFile(path string, cfg config.FetcherConfig) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file %q: %w", path, err)
	}

	var doc sourcesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse sources file %q: %w", path, err)
	}
	if len(doc.Sources) == 0 {
		return nil, fmt.Errorf("sources file %q defines no sources", path)
	}

	sources := make([]Source, 0, len(doc.Sources))
	for i, def := range doc.Sources {
		if def.Name == "" || def.URL == "" {
			return nil, fmt.Errorf("sources file %q: entry %d needs name and url", path, i)
		}

		maxPages := def.MaxPages
		if maxPages == 0 {
			maxPages = cfg.MaxPages
		}

		switch def.Kind {
		case "text", "":
			sources = append(sources, NewTextListSource(def.Name, def.URL,
				proxy.ParseProtocol(def.Protocol), cfg.SourceTimeout))
		case "html":
			sources = append(sources, NewHTMLTableSource(def.Name, def.URL, cfg.SourceTimeout))
		case "geonode":
			sources = append(sources, NewGeonodeSource(def.Name, def.URL, maxPages, cfg.SourceTimeout))
		default:
			return nil, fmt.Errorf("sources file %q: entry %q has unknown kind %q", path, def.Name, def.Kind)
		}
	}

	return sources, nil
}
