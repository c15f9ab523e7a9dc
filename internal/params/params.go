// Parameter descriptions and values exchanged with reconfigurable nodes
package params

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Type is the declared type of a parameter.
type Type int

const (
	Unknown Type = iota
	Bool
	Int
	Double
	String
	Enum
)

// ParseType maps a wire type name to a Type. Unrecognised names map to Unknown.
func ParseType(name string) Type {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "bool":
		return Bool
	case "int":
		return Int
	case "double":
		return Double
	case "str", "string":
		return String
	case "enum":
		return Enum
	default:
		return Unknown
	}
}

func (t Type) String() string {
	switch t {
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Double:
		return "double"
	case String:
		return "str"
	case Enum:
		return "enum"
	default:
		return "unknown"
	}
}

func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Type) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("parameter type: %w", err)
	}
	*t = ParseType(name)
	return nil
}

// Choice is one entry of an enumerated parameter.
type Choice struct {
	Name        string `json:"name"`
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
}

// Description describes one configurable parameter.
type Description struct {
	Name        string   `json:"name"`
	Type        Type     `json:"type"`
	Default     any      `json:"default"`
	Min         any      `json:"min,omitempty"`
	Max         any      `json:"max,omitempty"`
	Description string   `json:"description,omitempty"`
	Choices     []Choice `json:"choices,omitempty"`
}

// GroupDescription is the full parameter set of a node, in declaration order.
type GroupDescription struct {
	Name       string        `json:"name"`
	Parameters []Description `json:"parameters"`
}

// Config maps parameter names to their current scalar values.
type Config map[string]any

// IsEnum reports whether the parameter is edited as a closed choice.
func (d Description) IsEnum() bool {
	return len(d.Choices) > 0 || d.Type == Enum
}

// ScalarType is the type values of this parameter are normalised to.
// Enum parameters carry the type of their first choice value.
func (d Description) ScalarType() Type {
	if d.Type != Enum {
		return d.Type
	}
	if len(d.Choices) == 0 {
		return String
	}
	switch d.Choices[0].Value.(type) {
	case bool:
		return Bool
	case string:
		return String
	case float32, float64:
		if f, ok := toFloat(d.Choices[0].Value); ok && f == math.Trunc(f) {
			return Int
		}
		return Double
	default:
		return Int
	}
}

// Normalize coerces v to the canonical Go type for t: bool, int64, float64
// or string. JSON numbers decode as float64 and are accepted for Int when
// integral.
func Normalize(t Type, v any) (any, error) {
	switch t {
	case Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %T", v)
		}
		return b, nil
	case Int:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float32, float64:
			f, _ := toFloat(n)
			if f != math.Trunc(f) {
				return nil, fmt.Errorf("expected integer, got %v", f)
			}
			// float64(math.MaxInt64) rounds up to 2^63, which is out of range
			if f < math.MinInt64 || f >= math.MaxInt64 {
				return nil, fmt.Errorf("integer %v out of range", f)
			}
			return int64(f), nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, fmt.Errorf("expected integer: %w", err)
			}
			return i, nil
		}
		return nil, fmt.Errorf("expected int, got %T", v)
	case Double:
		if f, ok := toFloat(v); ok {
			return f, nil
		}
		return nil, fmt.Errorf("expected double, got %T", v)
	case String:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("cannot normalise value of type %s", t)
	}
}

// Normalize coerces v for this parameter.
func (d Description) Normalize(v any) (any, error) {
	out, err := Normalize(d.ScalarType(), v)
	if err != nil {
		return nil, fmt.Errorf("parameter %s: %w", d.Name, err)
	}
	return out, nil
}

// Clamp limits a normalised numeric value to the declared bounds.
// Non-numeric values and missing bounds are passed through.
func (d Description) Clamp(v any) any {
	switch n := v.(type) {
	case int64:
		if lo, ok := toFloat(d.Min); ok && float64(n) < lo {
			return int64(math.Ceil(lo))
		}
		if hi, ok := toFloat(d.Max); ok && float64(n) > hi {
			return int64(math.Floor(hi))
		}
		return n
	case float64:
		if lo, ok := toFloat(d.Min); ok && n < lo {
			return lo
		}
		if hi, ok := toFloat(d.Max); ok && n > hi {
			return hi
		}
		return n
	default:
		return v
	}
}

// Validate normalises and clamps v. Enum values must match a declared choice.
func (d Description) Validate(v any) (any, error) {
	out, err := d.Normalize(v)
	if err != nil {
		return nil, err
	}
	if d.IsEnum() {
		if _, ok := d.ChoiceFor(out); !ok {
			return nil, fmt.Errorf("parameter %s: %v is not a declared choice", d.Name, out)
		}
		return out, nil
	}
	return d.Clamp(out), nil
}

// ChoiceFor returns the choice whose value equals v.
func (d Description) ChoiceFor(v any) (Choice, bool) {
	for _, c := range d.Choices {
		if Equal(c.Value, v) {
			return c, true
		}
	}
	return Choice{}, false
}

// Bounds returns the numeric bounds, or ok=false when either is missing.
func (d Description) Bounds() (lo, hi float64, ok bool) {
	lo, okLo := toFloat(d.Min)
	hi, okHi := toFloat(d.Max)
	return lo, hi, okLo && okHi && lo <= hi
}

// Lookup finds a parameter by name.
func (g GroupDescription) Lookup(name string) (Description, bool) {
	for _, p := range g.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Description{}, false
}

// Defaults returns the default configuration of the group.
func (g GroupDescription) Defaults() (Config, error) {
	cfg := make(Config, len(g.Parameters))
	for _, p := range g.Parameters {
		if p.Type == Unknown {
			continue
		}
		v, err := p.Validate(p.Default)
		if err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		cfg[p.Name] = v
	}
	return cfg, nil
}

// Normalize coerces every known parameter in cfg against the group's
// descriptions. Unknown names are dropped.
func (g GroupDescription) Normalize(cfg Config) (Config, error) {
	out := make(Config, len(cfg))
	for name, v := range cfg {
		d, ok := g.Lookup(name)
		if !ok || d.Type == Unknown {
			continue
		}
		nv, err := d.Normalize(v)
		if err != nil {
			return nil, err
		}
		out[name] = nv
	}
	return out, nil
}

// Equal compares two scalar values, treating integral numbers of different
// Go types as equal.
func Equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case string:
		y, ok := b.(string)
		return ok && x == y
	case nil:
		return b == nil
	default:
		return false
	}
}

// Clone returns a shallow copy of the config.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
