package matcher

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Kind string

const (
	KindProduct Kind = "product"
	KindService Kind = "service"
)

type Topic string

const (
	TopicProducts Topic = "products"
	TopicServices Topic = "services"
)

// PrimaryKeywords is how many leading keywords earn the short-query bonus.
const PrimaryKeywords = 10

type Category struct {
	Key      string   `yaml:"key"`
	Name     string   `yaml:"name"`
	Kind     Kind     `yaml:"kind"`
	Keywords []string `yaml:"keywords"`
	Summary  string   `yaml:"summary"`
	Template string   `yaml:"template"`
}

type TopicInfo struct {
	Label    string `yaml:"label"`
	Overview string `yaml:"overview"`
}

type Company struct {
	Name    string `yaml:"name"`
	Profile string `yaml:"profile"`
}

// Catalog is the immutable product and service knowledge base.
type Catalog struct {
	Company    Company             `yaml:"company"`
	Topics     map[Topic]TopicInfo `yaml:"topics"`
	Categories []Category          `yaml:"categories"`

	byKey map[string]*Category
}

// LoadCatalog parses the file at path, or the embedded catalog when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		data = b
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Categories) == 0 {
		return nil, errors.New("catalog has no categories")
	}

	c.byKey = make(map[string]*Category, len(c.Categories))
	for i := range c.Categories {
		cat := &c.Categories[i]
		if cat.Key == "" {
			return nil, fmt.Errorf("catalog category %d has no key", i)
		}
		if _, dup := c.byKey[cat.Key]; dup {
			return nil, fmt.Errorf("duplicate catalog category %q", cat.Key)
		}
		if cat.Kind != KindProduct && cat.Kind != KindService {
			return nil, fmt.Errorf("category %q has unknown kind %q", cat.Key, cat.Kind)
		}
		for j, kw := range cat.Keywords {
			cat.Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
		c.byKey[cat.Key] = cat
	}
	return &c, nil
}

// Category returns the category for key, if any.
func (c *Catalog) Category(key string) (*Category, bool) {
	cat, ok := c.byKey[key]
	return cat, ok
}

// Keys returns category keys in lexical order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.byKey))
	for k := range c.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ByKind lists categories of one kind in catalog order.
func (c *Catalog) ByKind(kind Kind) []Category {
	var out []Category
	for _, cat := range c.Categories {
		if cat.Kind == kind {
			out = append(out, cat)
		}
	}
	return out
}

// Render substitutes the template placeholders for a category.
func (cat *Category) Render(contactEmail string) string {
	r := strings.NewReplacer("{name}", cat.Name, "{contact_email}", contactEmail)
	return strings.TrimSpace(r.Replace(cat.Template))
}

// Describe renders the whole catalog as plain text for a model prompt.
func (c *Catalog) Describe() string {
	var b strings.Builder
	b.WriteString("## About ")
	b.WriteString(c.Company.Name)
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(c.Company.Profile))
	b.WriteString("\n")
	sections := []struct {
		title string
		kind  Kind
	}{
		{"Maritime Products", KindProduct},
		{"Technology Services", KindService},
	}
	for _, s := range sections {
		fmt.Fprintf(&b, "\n## %s\n", s.title)
		for i, cat := range c.ByKind(s.kind) {
			fmt.Fprintf(&b, "%d. %s: %s\n", i+1, cat.Name, strings.Join(strings.Fields(cat.Summary), " "))
		}
	}
	return b.String()
}
