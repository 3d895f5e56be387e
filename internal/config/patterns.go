package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/imyousuf/daotrace/internal/parser"
	"github.com/imyousuf/daotrace/internal/pattern"
	"github.com/imyousuf/daotrace/internal/unit"
)

// ErrInvalidPatternConfig reports an unreadable or invalid pattern
// configuration. The analyze command exits with status 2 on it.
var ErrInvalidPatternConfig = errors.New("invalid pattern config")

var javaIdent = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// PatternConfig tunes the pattern catalog and the layer classifier. Empty
// lists keep the built-in defaults.
type PatternConfig struct {
	// SessionMethods are the generic data-access verbs and their CRUD class.
	SessionMethods []SessionMethod `mapstructure:"session_methods" yaml:"session_methods,omitempty" toml:"session_methods,omitempty" validate:"dive"`
	// SessionReceivers restricts session calls to these receiver names.
	SessionReceivers []string `mapstructure:"session_receivers" yaml:"session_receivers,omitempty" toml:"session_receivers,omitempty" validate:"dive,javaident"`
	// InjectAnnotations mark a field as injected.
	InjectAnnotations []string `mapstructure:"inject_annotations" yaml:"inject_annotations,omitempty" toml:"inject_annotations,omitempty" validate:"dive,javaident"`
	// BindingAnnotations mark a parameter as bound by a mapping layer.
	BindingAnnotations []string `mapstructure:"binding_annotations" yaml:"binding_annotations,omitempty" toml:"binding_annotations,omitempty" validate:"dive,javaident"`
	// MapperAnnotations mark an interface as externally mapped.
	MapperAnnotations []string `mapstructure:"mapper_annotations" yaml:"mapper_annotations,omitempty" toml:"mapper_annotations,omitempty" validate:"dive,javaident"`
	// DelegateLayers lists the callee layers a delegation may target.
	DelegateLayers []string `mapstructure:"delegate_layers" yaml:"delegate_layers,omitempty" toml:"delegate_layers,omitempty" validate:"dive,oneof=logic dao model controller unknown"`
	// SimpleNameFallback resolves field types by unique simple name.
	SimpleNameFallback *bool `mapstructure:"simple_name_fallback" yaml:"simple_name_fallback,omitempty" toml:"simple_name_fallback,omitempty"`
	// Layers replaces the layer classification rules.
	Layers []LayerRuleConfig `mapstructure:"layers" yaml:"layers,omitempty" toml:"layers,omitempty" validate:"dive"`
}

// SessionMethod maps one verb to its access class. Verbs are a list rather
// than a map so their case survives viper's key folding.
type SessionMethod struct {
	Name   string `mapstructure:"name" yaml:"name" toml:"name" validate:"required,javaident"`
	Access string `mapstructure:"access" yaml:"access" toml:"access" validate:"required,oneof=read create update delete"`
}

// LayerRuleConfig lists the markers that place a unit in one layer.
type LayerRuleConfig struct {
	Layer       string   `mapstructure:"layer" yaml:"layer" toml:"layer" validate:"required,oneof=logic dao model controller"`
	Annotations []string `mapstructure:"annotations" yaml:"annotations,omitempty" toml:"annotations,omitempty" validate:"dive,javaident"`
	Suffixes    []string `mapstructure:"suffixes" yaml:"suffixes,omitempty" toml:"suffixes,omitempty" validate:"dive,javaident"`
	Packages    []string `mapstructure:"packages" yaml:"packages,omitempty" toml:"packages,omitempty" validate:"dive,javaident"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("javaident", func(fl validator.FieldLevel) bool {
		return javaIdent.MatchString(fl.Field().String())
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var validate = newValidator()

// Validate checks identifiers, access classes and layer names. Failures
// wrap ErrInvalidPatternConfig.
func (p *PatternConfig) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidPatternConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "PatternConfig.")
		switch fe.Tag() {
		case "javaident":
			msgs = append(msgs, fmt.Sprintf("%s: %q is not a Java identifier", field, fe.Value()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s: %q must be one of [%s]", field, fe.Value(), fe.Param()))
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s: is required", field))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: failed %s", field, fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidPatternConfig, strings.Join(msgs, "; "))
}

// LoadPatterns reads a pattern configuration file. The file holds the
// pattern keys at top level or under a "patterns" section, so a full
// .daotrace.yaml is accepted too. Unknown keys are rejected.
func LoadPatterns(path string) (*PatternConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPatternConfig, err)
	}
	if v.IsSet("patterns") {
		sub := v.Sub("patterns")
		if sub == nil {
			return nil, fmt.Errorf("%w: %s: patterns must be a mapping", ErrInvalidPatternConfig, path)
		}
		v = sub
	}

	var pc PatternConfig
	if err := v.UnmarshalExact(&pc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPatternConfig, path, err)
	}
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	return &pc, nil
}

// DefaultPatternConfig spells out the built-in patterns and layer rules.
// config init writes it as a starting point.
func DefaultPatternConfig() PatternConfig {
	opts := pattern.DefaultOptions()
	pc := PatternConfig{
		SessionReceivers:   opts.SessionReceivers,
		InjectAnnotations:  opts.InjectAnnotations,
		BindingAnnotations: opts.BindingAnnotations,
		MapperAnnotations:  opts.MapperAnnotations,
		SimpleNameFallback: &opts.SimpleNameFallback,
	}
	for name, access := range opts.SessionMethods {
		pc.SessionMethods = append(pc.SessionMethods, SessionMethod{Name: name, Access: string(access)})
	}
	sort.Slice(pc.SessionMethods, func(i, j int) bool {
		return pc.SessionMethods[i].Name < pc.SessionMethods[j].Name
	})
	for _, l := range opts.DelegateLayers {
		pc.DelegateLayers = append(pc.DelegateLayers, layerName(l))
	}
	for _, r := range parser.DefaultRules() {
		pc.Layers = append(pc.Layers, LayerRuleConfig{
			Layer:       string(r.Layer),
			Annotations: r.Annotations,
			Suffixes:    r.Suffixes,
			Packages:    r.Packages,
		})
	}
	return pc
}

// Options converts the configuration into catalog options, filling unset
// fields from pattern.DefaultOptions. Call Validate first.
func (p *PatternConfig) Options() pattern.Options {
	opts := pattern.DefaultOptions()
	if len(p.SessionMethods) > 0 {
		opts.SessionMethods = make(map[string]pattern.Access, len(p.SessionMethods))
		for _, m := range p.SessionMethods {
			access, err := pattern.ParseAccess(m.Access)
			if err != nil {
				continue
			}
			opts.SessionMethods[m.Name] = access
		}
	}
	if len(p.SessionReceivers) > 0 {
		opts.SessionReceivers = p.SessionReceivers
	}
	if len(p.InjectAnnotations) > 0 {
		opts.InjectAnnotations = p.InjectAnnotations
	}
	if len(p.BindingAnnotations) > 0 {
		opts.BindingAnnotations = p.BindingAnnotations
	}
	if len(p.MapperAnnotations) > 0 {
		opts.MapperAnnotations = p.MapperAnnotations
	}
	if len(p.DelegateLayers) > 0 {
		opts.DelegateLayers = make([]unit.Layer, 0, len(p.DelegateLayers))
		for _, l := range p.DelegateLayers {
			opts.DelegateLayers = append(opts.DelegateLayers, parseLayer(l))
		}
	}
	if p.SimpleNameFallback != nil {
		opts.SimpleNameFallback = *p.SimpleNameFallback
	}
	return opts
}

// Filled returns a copy of p with every unset field taken from
// DefaultPatternConfig.
func (p *PatternConfig) Filled() PatternConfig {
	d := DefaultPatternConfig()
	out := *p
	if len(out.SessionMethods) == 0 {
		out.SessionMethods = d.SessionMethods
	}
	if len(out.SessionReceivers) == 0 {
		out.SessionReceivers = d.SessionReceivers
	}
	if len(out.InjectAnnotations) == 0 {
		out.InjectAnnotations = d.InjectAnnotations
	}
	if len(out.BindingAnnotations) == 0 {
		out.BindingAnnotations = d.BindingAnnotations
	}
	if len(out.MapperAnnotations) == 0 {
		out.MapperAnnotations = d.MapperAnnotations
	}
	if len(out.DelegateLayers) == 0 {
		out.DelegateLayers = d.DelegateLayers
	}
	if out.SimpleNameFallback == nil {
		out.SimpleNameFallback = d.SimpleNameFallback
	}
	if len(out.Layers) == 0 {
		out.Layers = d.Layers
	}
	return out
}

// Rules converts the layer rules. Nil means parser.DefaultRules.
func (p *PatternConfig) Rules() []parser.LayerRule {
	if len(p.Layers) == 0 {
		return nil
	}
	rules := make([]parser.LayerRule, 0, len(p.Layers))
	for _, l := range p.Layers {
		rules = append(rules, parser.LayerRule{
			Layer:       parseLayer(l.Layer),
			Annotations: l.Annotations,
			Suffixes:    l.Suffixes,
			Packages:    l.Packages,
		})
	}
	return rules
}

func parseLayer(s string) unit.Layer {
	if s == "unknown" {
		return unit.LayerUnknown
	}
	return unit.Layer(s)
}

func layerName(l unit.Layer) string {
	if l == unit.LayerUnknown {
		return "unknown"
	}
	return string(l)
}
