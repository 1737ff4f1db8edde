package quota

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var defaultPlans []byte

type Plan struct {
	Name         string `yaml:"name"`
	Metered      bool   `yaml:"metered"`
	QuotaMinutes int    `yaml:"quota_minutes"`
}

type catalogFile struct {
	DefaultPlan string `yaml:"default_plan"`
	Plans       []Plan `yaml:"plans"`
}

// Catalog lists the known plan tiers. Plans missing from the catalog are
// treated as unmetered.
type Catalog struct {
	defaultPlan string
	plans       map[string]Plan
}

func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultPlans)
	if err != nil {
		panic(fmt.Sprintf("embedded plan catalog: %v", err))
	}
	return c
}

func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan catalog: %w", err)
	}
	return ParseCatalog(b)
}

func ParseCatalog(b []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	if len(f.Plans) == 0 {
		return nil, fmt.Errorf("plan catalog has no plans")
	}

	c := &Catalog{plans: make(map[string]Plan, len(f.Plans))}
	for _, p := range f.Plans {
		name := strings.ToLower(strings.TrimSpace(p.Name))
		if name == "" {
			return nil, fmt.Errorf("plan catalog: plan without name")
		}
		if p.Metered && p.QuotaMinutes <= 0 {
			return nil, fmt.Errorf("plan catalog: metered plan %q needs quota_minutes", name)
		}
		p.Name = name
		c.plans[name] = p
	}

	c.defaultPlan = strings.ToLower(strings.TrimSpace(f.DefaultPlan))
	if c.defaultPlan == "" {
		c.defaultPlan = strings.ToLower(f.Plans[0].Name)
	}
	if _, ok := c.plans[c.defaultPlan]; !ok {
		return nil, fmt.Errorf("plan catalog: default plan %q is not defined", c.defaultPlan)
	}
	return c, nil
}

func (c *Catalog) Plan(name string) (Plan, bool) {
	p, ok := c.plans[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

func (c *Catalog) Default() Plan {
	return c.plans[c.defaultPlan]
}

func (c *Catalog) Metered(name string) bool {
	p, ok := c.Plan(name)
	return ok && p.Metered
}
