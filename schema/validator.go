package schema

import (
	"fmt"
	"strconv"

	"github.com/ccos-project/ccos-core/ccoserr"
)

// Config tunes validation behavior for ambiguous cases the type-expression
// language leaves open.
type Config struct {
	// OptionalAcceptsNil, when true, treats a present key whose value is
	// nil the same as an absent key for Optional(T). Default false: a
	// present nil is a type mismatch, not an absence.
	OptionalAcceptsNil bool
}

// DefaultConfig matches the spec's default edge-case policy.
func DefaultConfig() Config { return Config{OptionalAcceptsNil: false} }

// Boundary names which side of a capability call is being checked, used
// only for diagnostics.
type Boundary string

const (
	BoundaryInput  Boundary = "input"
	BoundaryOutput Boundary = "output"
)

// Validate checks value against expr. On success it returns nil. On
// failure it returns a *ccoserr.Error of kind SchemaViolation carrying the
// full list of path-annotated mismatches — the contract is total, every
// offending node is reported, not just the first.
func Validate(value interface{}, expr *Expr, cfg Config, boundary Boundary) *ccoserr.Error {
	var mismatches []ccoserr.PathMismatch
	walk("$", value, expr, cfg, &mismatches)
	if len(mismatches) == 0 {
		return nil
	}
	err := ccoserr.New(ccoserr.SchemaViolation, "", fmt.Sprintf("%d mismatch(es) at %s boundary", len(mismatches), boundary))
	err.Mismatches = mismatches
	return err
}

func walk(path string, value interface{}, expr *Expr, cfg Config, out *[]ccoserr.PathMismatch) {
	if expr == nil {
		return
	}

	switch expr.Kind {
	case KindAny:
		return

	case KindString:
		if _, ok := value.(string); !ok {
			record(out, path, "string", value, "wrong type")
		}

	case KindInteger:
		if !isInteger(value) {
			record(out, path, "integer", value, "integers do not auto-widen from floats")
		}

	case KindNumber:
		if !isInteger(value) && !isFloat(value) {
			record(out, path, "number", value, "wrong type")
		}

	case KindBoolean:
		if _, ok := value.(bool); !ok {
			record(out, path, "boolean", value, "wrong type")
		}

	case KindKeyword:
		s, ok := value.(string)
		if !ok {
			record(out, path, fmt.Sprintf("keyword%v", expr.Keywords), value, "wrong type")
			return
		}
		if !containsStr(expr.Keywords, s) {
			record(out, path, fmt.Sprintf("one of %v", expr.Keywords), s, "not a declared keyword literal")
		}

	case KindVector:
		items, ok := asSlice(value)
		if !ok {
			record(out, path, "vector", value, "wrong type")
			return
		}
		// Empty vector against Vector(T) is ok regardless of T.
		for i, item := range items {
			walk(fmt.Sprintf("%s[%d]", path, i), item, expr.Elem, cfg, out)
		}

	case KindMap:
		m, ok := asMap(value)
		if !ok {
			record(out, path, "map", value, "wrong type")
			return
		}
		for _, req := range expr.Required {
			if _, present := m[req]; !present {
				record(out, fmt.Sprintf("%s.%s", path, req), "present", "absent", "required field missing")
			}
		}
		for key, fieldExpr := range expr.Fields {
			v, present := m[key]
			if !present {
				continue
			}
			walk(fmt.Sprintf("%s.%s", path, key), v, fieldExpr, cfg, out)
		}
		if expr.Closed {
			for key := range m {
				if _, declared := expr.Fields[key]; !declared {
					record(out, fmt.Sprintf("%s.%s", path, key), "no extra keys", key, "closed map rejects undeclared key")
				}
			}
		}

	case KindOptional:
		// Absence of the key is represented by value == Absent.
		if value == Absent {
			return
		}
		if value == nil && cfg.OptionalAcceptsNil {
			return
		}
		walk(path, value, expr.Inner, cfg, out)

	case KindUnion:
		if len(expr.Arms) == 0 {
			record(out, path, "union with no arms", value, "schema is malformed")
			return
		}
		for _, arm := range expr.Arms {
			var armMismatches []ccoserr.PathMismatch
			walk(path, value, arm, cfg, &armMismatches)
			if len(armMismatches) == 0 {
				return
			}
		}
		record(out, path, expr.String(), value, "no union arm matched")

	default:
		record(out, path, string(expr.Kind), value, "unrecognised schema kind")
	}
}

// Absent is the sentinel passed for a map key that is entirely absent, so
// Optional(T) can distinguish "absent" from "present but nil".
var Absent = &struct{ absent bool }{absent: true}

func record(out *[]ccoserr.PathMismatch, path, expected string, observed interface{}, reason string) {
	*out = append(*out, ccoserr.PathMismatch{
		Path:     path,
		Expected: expected,
		Observed: fmt.Sprintf("%v", observed),
		Reason:   reason,
	})
}

func isInteger(v interface{}) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		// encoding/json decodes all numbers as float64; an integer-valued
		// float64 (no fractional part, came from a JSON integer literal)
		// is accepted as KindInteger input.
		f := v.(float64)
		return f == float64(int64(f))
	default:
		return false
	}
}

func isFloat(v interface{}) bool {
	switch v.(type) {
	case float32, float64:
		return true
	default:
		return false
	}
}

func asSlice(v interface{}) ([]interface{}, bool) {
	s, ok := v.([]interface{})
	return s, ok
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func containsStr(set []string, s string) bool {
	for _, item := range set {
		if item == s {
			return true
		}
	}
	return false
}

// ValueKind reports a coarse runtime classification of v, for callers
// that need to log the observed shape without the full Expr machinery.
// Nothing in this module calls it.
func ValueKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "nil"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]interface{}:
		return "map"
	case []interface{}:
		return "vector"
	default:
		if isInteger(v) {
			return "integer"
		}
		if isFloat(v) {
			return "number"
		}
		return "unknown"
	}
}

// ParseIntegerLiteral reports whether a string constant parses as a
// base-10 int64, and its value. Nothing in this module calls it; the
// orchestrator's input-type inference works from names only.
func ParseIntegerLiteral(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}
