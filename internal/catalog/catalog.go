package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"compliance-monitor/internal/compliance"
)

//go:embed default.yaml
var defaultCatalog []byte

var validate = validator.New()

type ruleEntry struct {
	ID               string   `yaml:"id" validate:"required,max=64"`
	Name             string   `yaml:"name" validate:"required"`
	Description      string   `yaml:"description"`
	Type             string   `yaml:"type" validate:"required,oneof=WAREHOUSE DATABASE SCHEMA TABLE TAG"`
	Parameter        string   `yaml:"parameter" validate:"required"`
	Operator         string   `yaml:"operator" validate:"required_unless=Type TAG"`
	Unit             string   `yaml:"unit"`
	DefaultThreshold *float64 `yaml:"default_threshold"`
	AllowOverride    bool     `yaml:"allow_override"`
	FixButton        bool     `yaml:"fix_button"`
	FixSQL           bool     `yaml:"fix_sql"`
	Active           *bool    `yaml:"active"`
}

type file struct {
	Rules         []ruleEntry       `yaml:"rules" validate:"required,min=1,dive"`
	Applicability map[string]string `yaml:"applicability"`
}

// Catalog is the configured set of rule definitions.
type Catalog struct {
	Rules         []compliance.Rule
	Applicability compliance.Applicability
}

// Load reads a catalog file. An empty path selects the built-in catalog.
func Load(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Default() (Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse decodes and validates a catalog document. Ids, types, operators and
// parameters are upper-cased; rules without an active flag are active.
func Parse(data []byte) (Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	for i := range f.Rules {
		r := &f.Rules[i]
		r.ID = strings.ToUpper(strings.TrimSpace(r.ID))
		r.Type = strings.ToUpper(strings.TrimSpace(r.Type))
		r.Operator = strings.ToUpper(strings.TrimSpace(r.Operator))
		r.Parameter = strings.ToUpper(strings.TrimSpace(r.Parameter))
	}
	if err := validate.Struct(f); err != nil {
		return Catalog{}, fmt.Errorf("validate catalog: %w", err)
	}

	c := Catalog{Applicability: compliance.DefaultApplicability()}
	seen := map[string]bool{}
	for _, r := range f.Rules {
		if r.Operator != "" && !compliance.Operator(r.Operator).Known() {
			return Catalog{}, fmt.Errorf("validate catalog: rule %q has unknown operator %q", r.ID, r.Operator)
		}
		if seen[r.ID] {
			return Catalog{}, fmt.Errorf("validate catalog: duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		active := true
		if r.Active != nil {
			active = *r.Active
		}
		c.Rules = append(c.Rules, compliance.Rule{
			ID:               r.ID,
			Name:             r.Name,
			Description:      r.Description,
			TargetType:       compliance.ObjectType(r.Type),
			Parameter:        r.Parameter,
			Operator:         compliance.Operator(r.Operator),
			Unit:             r.Unit,
			DefaultThreshold: r.DefaultThreshold,
			AllowOverride:    r.AllowOverride,
			FixButton:        r.FixButton,
			FixSQL:           r.FixSQL,
			Active:           active,
		})
	}

	extra := compliance.Applicability{}
	for id, value := range f.Applicability {
		objectType, ok := compliance.ParseObjectType(value)
		if !ok || !objectType.IsInventoryType() {
			return Catalog{}, fmt.Errorf("validate catalog: rule %q maps to unknown object type %q", id, value)
		}
		extra[id] = objectType
	}
	c.Applicability = c.Applicability.Merge(extra)
	return c, nil
}

var ErrRuleNotFound = errors.New("rule not found")

func (c Catalog) Lookup(id string) (compliance.Rule, error) {
	for _, r := range c.Rules {
		if strings.EqualFold(r.ID, id) {
			return r, nil
		}
	}
	return compliance.Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
}

// ActiveRules returns the rules that can be applied.
func (c Catalog) ActiveRules() []compliance.Rule {
	out := []compliance.Rule{}
	for _, r := range c.Rules {
		if r.Active {
			out = append(out, r)
		}
	}
	return out
}
