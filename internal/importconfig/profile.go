package importconfig

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownProfile is returned when a batch references a profile that is not configured.
var ErrUnknownProfile = errors.New("unknown import profile")

// DefaultProfileID is always available when no profile file is configured.
const DefaultProfileID = "default"

// Profile holds the settings copied onto a batch at creation time.
type Profile struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	TemplateID  string `yaml:"template_id" json:"templateId"`
	Description string `yaml:"description" json:"description,omitempty"`
}

// Catalog is the set of profiles operators can import with.
type Catalog struct {
	profiles map[string]Profile
}

type fileFormat struct {
	Profiles []Profile `yaml:"profiles"`
}

// Default returns a catalog with a single generic profile.
func Default() *Catalog {
	return &Catalog{profiles: map[string]Profile{
		DefaultProfileID: {
			ID:          DefaultProfileID,
			Name:        "Default letter import",
			TemplateID:  "default",
			Description: "Scanned sponsor letters with a partner/child barcode",
		},
	}}
}

// New builds a catalog from explicit profiles.
func New(profiles ...Profile) (*Catalog, error) {
	c := &Catalog{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, errors.New("profile id is required")
		}
		if _, dup := c.profiles[p.ID]; dup {
			return nil, fmt.Errorf("duplicate profile id %q", p.ID)
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		c.profiles[p.ID] = p
	}
	return c, nil
}

// Load reads profiles from a YAML file. An empty path yields Default().
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import profiles: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse import profiles %s: %w", path, err)
	}
	if len(f.Profiles) == 0 {
		return nil, fmt.Errorf("import profiles %s: no profiles defined", path)
	}
	return New(f.Profiles...)
}

// Get returns the profile with the given id.
func (c *Catalog) Get(id string) (Profile, error) {
	p, ok := c.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownProfile, id)
	}
	return p, nil
}

// List returns all profiles sorted by id.
func (c *Catalog) List() []Profile {
	out := make([]Profile, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
