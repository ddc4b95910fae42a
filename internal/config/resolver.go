package config

import (
	"fmt"
	"strings"
)

// Value is either a literal or a deferred reference to another configuration
// key. A reference is resolved against the current state at apply time, never
// at definition time.
type Value struct {
	Literal string
	Ref     string
}

// Literal builds a literal value.
func Literal(s string) Value { return Value{Literal: s} }

// Ref builds a deferred reference to another key.
func Ref(key string) Value { return Value{Ref: key} }

// ParseValue interprets a raw override value. A "$"-prefixed string is a
// deferred reference to the named key; anything else is a literal.
func ParseValue(raw string) Value {
	if strings.HasPrefix(raw, "$") && len(raw) > 1 {
		return Ref(raw[1:])
	}
	return Literal(raw)
}

// IsRef reports whether v is a deferred reference.
func (v Value) IsRef() bool { return v.Ref != "" }

// String renders the value in recipe notation.
func (v Value) String() string {
	if v.IsRef() {
		return "$" + v.Ref
	}
	return v.Literal
}

// Override is one ordered (key, value) configuration mutation.
type Override struct {
	Key   string
	Value Value
}

// UnresolvedReferenceError reports a reference to a key that had no value at
// the point it was used.
type UnresolvedReferenceError struct {
	Key string // the key being assigned
	Ref string // the key referenced
}

func (e *UnresolvedReferenceError) Error() string {
	if e.Key == e.Ref {
		return fmt.Sprintf("override %s references itself before any value is defined", e.Key)
	}
	return fmt.Sprintf("override %s references %s, which is not defined at that point", e.Key, e.Ref)
}

// Resolve applies overrides in order on top of base and returns the resulting
// configuration. References are substituted with the current value of the
// referenced key, taken from an override already applied in this call or from
// base. A reference to a key with no value yet fails with
// *UnresolvedReferenceError; forward and circular references are never
// silently truncated. Resolve is pure: neither input is mutated.
func Resolve(overrides []Override, base Config) (Config, error) {
	result := base.Clone()
	if result == nil {
		result = Config{}
	}
	for _, ov := range overrides {
		if ov.Value.IsRef() {
			current, ok := result[ov.Value.Ref]
			if !ok {
				return nil, &UnresolvedReferenceError{Key: ov.Key, Ref: ov.Value.Ref}
			}
			result[ov.Key] = current
			continue
		}
		result[ov.Key] = ov.Value.Literal
	}
	return result, nil
}

// CheckReferences is the static form of Resolve used at catalog load time.
// Every reference must point at a key defined by an earlier override in the
// same list; a recipe that references forward, references itself, or
// references a key it never defines is malformed. CASE is exempt: every case
// carries its identity, so a $CASE reference always resolves at apply time.
func CheckReferences(overrides []Override) error {
	defined := map[string]bool{KeyCase: true}
	for _, ov := range overrides {
		if ov.Value.IsRef() && !defined[ov.Value.Ref] {
			return &UnresolvedReferenceError{Key: ov.Key, Ref: ov.Value.Ref}
		}
		defined[ov.Key] = true
	}
	return nil
}
