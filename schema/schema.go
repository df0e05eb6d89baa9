// Package schema implements the type-expression validator that sits at
// every capability boundary. It is grounded on the teacher's field-hint
// schema idiom (core.FieldHint/core.SchemaSummary: plain Go structs
// carrying a type tag and child shape, convertible to JSON Schema) but
// generalised into a small recursive type-expression language so it can
// express unions, optionals and closed/open maps, which the teacher's
// compact hints never needed to.
package schema

import "fmt"

// Kind discriminates the shape of a type expression.
type Kind string

const (
	KindAny      Kind = "any"
	KindString   Kind = "string"
	KindInteger  Kind = "integer"
	KindNumber   Kind = "number"
	KindBoolean  Kind = "boolean"
	KindKeyword  Kind = "keyword"
	KindVector   Kind = "vector"
	KindMap      Kind = "map"
	KindOptional Kind = "optional"
	KindUnion    Kind = "union"
)

// Expr is a type expression: either a scalar, or a recursive shape built
// from child Exprs.
type Expr struct {
	Kind Kind

	// KindKeyword: the closed set of accepted string literals.
	Keywords []string

	// KindVector: the element type.
	Elem *Expr

	// KindMap: declared fields, which of them are required, and whether
	// keys outside Fields are rejected (closed) or accepted (open).
	Fields   map[string]*Expr
	Required []string
	Closed   bool

	// KindOptional: the wrapped type, accepted only when the key is
	// entirely absent (see Config.OptionalAcceptsNil).
	Inner *Expr

	// KindUnion: arms tried left to right; first success wins.
	Arms []*Expr
}

// Convenience constructors, mirroring how the teacher builds FieldHint
// values inline rather than through a builder type.

func Any() *Expr     { return &Expr{Kind: KindAny} }
func String() *Expr   { return &Expr{Kind: KindString} }
func Integer() *Expr  { return &Expr{Kind: KindInteger} }
func Number() *Expr    { return &Expr{Kind: KindNumber} }
func Boolean() *Expr   { return &Expr{Kind: KindBoolean} }

func Keyword(values ...string) *Expr {
	return &Expr{Kind: KindKeyword, Keywords: values}
}

func Vector(elem *Expr) *Expr { return &Expr{Kind: KindVector, Elem: elem} }

func Optional(inner *Expr) *Expr { return &Expr{Kind: KindOptional, Inner: inner} }

func Union(arms ...*Expr) *Expr { return &Expr{Kind: KindUnion, Arms: arms} }

// MapExpr describes an object/record type. Closed maps reject keys not
// named in fields; open maps accept them.
func MapExpr(fields map[string]*Expr, required []string, closed bool) *Expr {
	return &Expr{Kind: KindMap, Fields: fields, Required: required, Closed: closed}
}

func (e *Expr) String() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case KindVector:
		return fmt.Sprintf("Vector(%s)", e.Elem)
	case KindOptional:
		return fmt.Sprintf("Optional(%s)", e.Inner)
	case KindUnion:
		return fmt.Sprintf("Union(%v)", e.Arms)
	case KindKeyword:
		return fmt.Sprintf("Keyword(%v)", e.Keywords)
	case KindMap:
		return "Map"
	default:
		return string(e.Kind)
	}
}
