package binding

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/danmuck/ucan/internal/protocol"
)

var (
	ErrVarExists  = errors.New("binding: variable already declared")
	ErrVarUnknown = errors.New("binding: unknown variable")
)

// Vars is a registry of named application values, used when bindings come from
// configuration instead of Go declarations. Declare everything before Start;
// lookups afterwards are read-only.
type Vars struct {
	items map[string]Binding
}

func NewVars() *Vars {
	return &Vars{items: make(map[string]Binding)}
}

// Declare allocates a value of the given kind under name.
func (v *Vars) Declare(name string, kind Kind) (Binding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Binding{}, fmt.Errorf("%w: variable name is required", protocol.ErrInvalidConfiguration)
	}
	if _, ok := v.items[name]; ok {
		return Binding{}, fmt.Errorf("%w: %q", ErrVarExists, name)
	}
	var ref Scalar
	switch kind {
	case KindU8:
		ref = new(Uint8)
	case KindU16:
		ref = new(Uint16)
	case KindU32:
		ref = new(Uint32)
	default:
		return Binding{}, fmt.Errorf("%w: variable %q has %s", protocol.ErrInvalidConfiguration, name, kind)
	}
	b := Bind(kind, ref)
	v.items[name] = b
	return b, nil
}

func (v *Vars) Resolve(name string) (Binding, bool) {
	b, ok := v.items[strings.TrimSpace(name)]
	return b, ok
}

// Set stores value into the named variable. A value wider than the variable
// is rejected with ErrInvalidConfiguration and leaves it unchanged.
func (v *Vars) Set(name string, value uint32) error {
	b, ok := v.Resolve(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrVarUnknown, name)
	}
	if limit := maxValue(b.Kind); value > limit {
		return fmt.Errorf("%w: %q holds at most %d", protocol.ErrInvalidConfiguration, name, limit)
	}
	b.Ref.Store(value)
	return nil
}

// VarValue is a point-in-time read of one variable.
type VarValue struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value uint32 `json:"value"`
}

// Snapshot returns every variable ordered by name.
func (v *Vars) Snapshot() []VarValue {
	out := make([]VarValue, 0, len(v.items))
	for name, b := range v.items {
		out = append(out, VarValue{Name: name, Type: b.Kind.String(), Value: b.Ref.Load()})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

func maxValue(k Kind) uint32 {
	switch k {
	case KindU8:
		return 0xFF
	case KindU16:
		return 0xFFFF
	default:
		return 0xFFFFFFFF
	}
}
