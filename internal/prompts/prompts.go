package prompts

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yml templates/*.tmpl
var embedded embed.FS

const (
	// DeveloperBookkeepingContext lists the accounts the model may use.
	DeveloperBookkeepingContext = "developer_bookkeeping_context"
	// UserAnalyzeReceipt is the instruction sent next to the receipt image.
	UserAnalyzeReceipt = "user_analyze_receipt"
)

// Argument describes one prompt argument.
type Argument struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Required    bool   `yaml:"required" json:"required"`
}

// Definition is a catalog entry.
type Definition struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description" json:"description"`
	Template    string     `yaml:"template" json:"-"`
	Arguments   []Argument `yaml:"arguments" json:"arguments,omitempty"`
}

// Catalog holds parsed prompt templates by name.
type Catalog struct {
	defs      map[string]Definition
	templates map[string]*template.Template
}

// Default loads the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Load(embedded)
}

// Load reads catalog.yml and the templates/ directory from fsys.
func Load(fsys fs.FS) (*Catalog, error) {
	raw, err := fs.ReadFile(fsys, "catalog.yml")
	if err != nil {
		return nil, fmt.Errorf("Load: read catalog: %w", err)
	}

	var file struct {
		Prompts []Definition `yaml:"prompts"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("Load: parse catalog: %w", err)
	}

	c := &Catalog{
		defs:      make(map[string]Definition, len(file.Prompts)),
		templates: make(map[string]*template.Template, len(file.Prompts)),
	}
	for _, def := range file.Prompts {
		if def.Name == "" || def.Template == "" {
			return nil, fmt.Errorf("Load: prompt entry needs name and template: %+v", def)
		}
		body, err := fs.ReadFile(fsys, path.Join("templates", def.Template))
		if err != nil {
			return nil, fmt.Errorf("Load: read template %s: %w", def.Template, err)
		}
		tmpl, err := template.New(def.Name).Parse(string(body))
		if err != nil {
			return nil, fmt.Errorf("Load: parse template %s: %w", def.Template, err)
		}
		c.defs[def.Name] = def
		c.templates[def.Name] = tmpl
	}
	return c, nil
}

// Render executes the named template with vars.
func (c *Catalog) Render(name string, vars map[string]any) (string, error) {
	tmpl, ok := c.templates[name]
	if !ok {
		return "", fmt.Errorf("Render: template not found: %s", name)
	}
	if vars == nil {
		vars = map[string]any{}
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("Render: %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// List returns the catalog entries sorted by name.
func (c *Catalog) List() []Definition {
	out := make([]Definition, 0, len(c.defs))
	for _, def := range c.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns a catalog entry.
func (c *Catalog) Get(name string) (Definition, bool) {
	def, ok := c.defs[name]
	return def, ok
}
