package semantic

// ContentStream is a sequence of operations on a page or form.
type ContentStream struct {
	Operations []Operation
}

// Operation represents a PDF operator and operands.
type Operation struct {
	Operator string
	Operands []Operand
}

// Op is shorthand for building an operation.
func Op(operator string, operands ...Operand) Operation {
	return Operation{Operator: operator, Operands: operands}
}

// Operand is a type-safe operand value.
type Operand interface {
	operand()
	Type() string
}

type NumberOperand struct{ Value float64 }

func (NumberOperand) operand()     {}
func (NumberOperand) Type() string { return "number" }

type NameOperand struct{ Value string }

func (NameOperand) operand()     {}
func (NameOperand) Type() string { return "name" }

// StringOperand is written as a literal string, or as a hex string when Hex is set.
type StringOperand struct {
	Value []byte
	Hex   bool
}

func (StringOperand) operand()     {}
func (StringOperand) Type() string { return "string" }

type ArrayOperand struct{ Values []Operand }

func (ArrayOperand) operand()     {}
func (ArrayOperand) Type() string { return "array" }

type DictOperand struct{ Values map[string]Operand }

func (DictOperand) operand()     {}
func (DictOperand) Type() string { return "dict" }

// Num converts values into number operands.
func Num(vals ...float64) []Operand {
	out := make([]Operand, len(vals))
	for i, v := range vals {
		out[i] = NumberOperand{Value: v}
	}
	return out
}

func Name(v string) Operand { return NameOperand{Value: v} }
