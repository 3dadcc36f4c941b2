package spec

// Kind identifies the root variant of a Spec.
type Kind int

const (
	KindObject Kind = iota
	KindArray
	KindLiteral
)

// Spec is the root of one extraction call.
//
// Exactly one of Object, Array or Literal is set, matching Kind.
type Spec struct {
	Kind    Kind
	Object  *ObjectSpec
	Array   *ArraySpec
	Literal *Literal
}

// ObjectSpec describes one output object.
//
// Scope, when non-nil, selects the element every field is evaluated against.
// Field keys are output keys with any trailing "?" already stripped.
type ObjectSpec struct {
	Scope  *SelectorExpr
	Fields map[string]Field
}

// Field is one entry of an ObjectSpec.
type Field struct {
	Spec     FieldSpec
	Optional bool
}

// ArraySpec describes an output array. Item.Scope selects the elements that
// become array items.
type ArraySpec struct {
	Item ObjectSpec
}

// FieldKind identifies the FieldSpec variant.
type FieldKind int

const (
	FieldSelector FieldKind = iota
	FieldFallback
	FieldNested
	FieldNestedArray
	FieldLiteral
)

func (k FieldKind) String() string {
	switch k {
	case FieldSelector:
		return "selector"
	case FieldFallback:
		return "fallback"
	case FieldNested:
		return "nested"
	case FieldNestedArray:
		return "nested_array"
	case FieldLiteral:
		return "literal"
	default:
		return "unknown"
	}
}

// FieldSpec is the tagged union of field forms.
//
//   - FieldSelector:    Selector is set.
//   - FieldFallback:    Alternatives holds at least two selectors, in order.
//   - FieldNested:      Nested is set.
//   - FieldNestedArray: Array is set.
//   - FieldLiteral:     Literal is set.
type FieldSpec struct {
	Kind         FieldKind
	Selector     *PipedSelector
	Alternatives []PipedSelector
	Nested       *ObjectSpec
	Array        *ArraySpec
	Literal      *Literal
}

// PipedSelector is a selector followed by its pipe commands.
type PipedSelector struct {
	Selector SelectorExpr
	Pipes    []PipeCommand
}

// SelectorKind is the algebraic form of a selector, decided at parse time.
type SelectorKind int

const (
	// SelfRef is "$": the scope node itself.
	SelfRef SelectorKind = iota
	// NextSibling is "+ sel": the first match inside the scope's following siblings.
	NextSibling
	// DirectChild is "> sel": a query under the scope with the marker removed.
	DirectChild
	// Plain is an ordinary CSS selector.
	Plain
)

func (k SelectorKind) String() string {
	switch k {
	case SelfRef:
		return "self"
	case NextSibling:
		return "next_sibling"
	case DirectChild:
		return "direct_child"
	case Plain:
		return "plain"
	default:
		return "unknown"
	}
}

// SelectorExpr is a selector string tagged with its algebraic form.
//
// Raw is the text as written in the spec; Query is the CSS text handed to the
// document (markers stripped and trimmed). Query is empty for SelfRef.
type SelectorExpr struct {
	Kind  SelectorKind
	Raw   string
	Query string
}

// IsSelf reports whether e is the "$" self-reference.
func (e SelectorExpr) IsSelf() bool { return e.Kind == SelfRef }

func (e SelectorExpr) String() string { return e.Raw }

// PipeOp identifies a pipe command.
type PipeOp int

const (
	PipeAttr PipeOp = iota
	PipeVoid
	PipeTrim
	PipeLower
	PipeUpper
	PipeSubstr
	PipeParseNumber
	PipeParseInt
	PipeParseFloat
	PipeRegex
)

// PipeCommand is one parsed pipe token.
//
// Arg carries the attribute name (PipeAttr) or the regex pattern (PipeRegex).
// Start and End are rune positions for PipeSubstr; HasEnd reports whether an
// end was given.
type PipeCommand struct {
	Op     PipeOp
	Arg    string
	Start  int
	End    int
	HasEnd bool
}

// IsSource reports whether p determines the starting value of a field rather
// than transforming one.
func (p PipeCommand) IsSource() bool {
	return p.Op == PipeAttr || p.Op == PipeVoid
}

func (p PipeCommand) String() string {
	switch p.Op {
	case PipeAttr:
		return "attr:" + p.Arg
	case PipeVoid:
		return "void"
	case PipeTrim:
		return "trim"
	case PipeLower:
		return "lower"
	case PipeUpper:
		return "upper"
	case PipeSubstr:
		return "substr"
	case PipeParseNumber:
		return "parseAs:number"
	case PipeParseInt:
		return "parseAs:int"
	case PipeParseFloat:
		return "parseAs:float"
	case PipeRegex:
		return "regex:" + p.Arg
	default:
		return "unknown"
	}
}

// LiteralKind identifies the Literal variant.
type LiteralKind int

const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralBool
	LiteralNull
)

// Literal is a constant value embedded in the spec.
type Literal struct {
	Kind   LiteralKind
	String string
	Number float64
	Bool   bool
}

// Value returns the literal as a JSON-ready Go value.
func (l Literal) Value() any {
	switch l.Kind {
	case LiteralString:
		return l.String
	case LiteralNumber:
		return l.Number
	case LiteralBool:
		return l.Bool
	default:
		return nil
	}
}
