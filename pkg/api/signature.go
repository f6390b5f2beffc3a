package api

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strings"
)

// Field is one named slot of a Signature.
type Field struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// F is shorthand for a Field.
func F(name, description string) Field {
	return Field{Name: name, Description: description}
}

// Signature is the data contract of a sealed unit: which state keys it reads
// and which it writes.
type Signature struct {
	Inputs  []Field `json:"inputs" yaml:"inputs"`
	Outputs []Field `json:"outputs" yaml:"outputs"`
}

// NewSignature builds a Signature from field names with empty descriptions.
func NewSignature(inputs, outputs []string) Signature {
	sig := Signature{
		Inputs:  make([]Field, 0, len(inputs)),
		Outputs: make([]Field, 0, len(outputs)),
	}
	for _, n := range inputs {
		sig.Inputs = append(sig.Inputs, Field{Name: n})
	}
	for _, n := range outputs {
		sig.Outputs = append(sig.Outputs, Field{Name: n})
	}
	return sig
}

// InputNames returns the input field names in declaration order.
func (s Signature) InputNames() []string { return fieldNames(s.Inputs) }

// OutputNames returns the output field names in declaration order.
func (s Signature) OutputNames() []string { return fieldNames(s.Outputs) }

func fieldNames(fs []Field) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

// signatureSeparator keeps ["a","b"]->[] distinct from ["a"]->["b"].
const signatureSeparator = "input_separator"

// StructuralHash hashes field names only. Descriptions do not participate and
// field order does.
func (s Signature) StructuralHash() string {
	h := NewHasher()
	for _, f := range s.Inputs {
		h.WriteString(f.Name)
	}
	h.WriteString(signatureSeparator)
	for _, f := range s.Outputs {
		h.WriteString(f.Name)
	}
	return h.Sum()
}

// StructurallyEqual reports whether both signatures have the same field names
// in the same order.
func (s Signature) StructurallyEqual(other Signature) bool {
	return equalNames(s.Inputs, other.Inputs) && equalNames(s.Outputs, other.Outputs)
}

func equalNames(a, b []Field) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}

func (s Signature) String() string {
	return strings.Join(s.InputNames(), ", ") + " -> " + strings.Join(s.OutputNames(), ", ")
}

// ParseSignature parses the shorthand "a, b -> c". It requires exactly one
// arrow; names are trimmed and empty names are dropped.
func ParseSignature(spec string) (Signature, error) {
	parts := strings.Split(spec, "->")
	if len(parts) != 2 {
		return Signature{}, fmt.Errorf("%w: %q must contain exactly one '->'", ErrInvalidSignature, spec)
	}
	return NewSignature(splitNames(parts[0]), splitNames(parts[1])), nil
}

// MustParseSignature is like ParseSignature but panics on error. It is meant
// for package-level declarations.
func MustParseSignature(spec string) Signature {
	sig, err := ParseSignature(spec)
	if err != nil {
		panic(err)
	}
	return sig
}

func splitNames(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// InstructionHash hashes an instruction together with every field
// description of the signature, inputs first.
func InstructionHash(instruction string, sig Signature) string {
	h := NewHasher()
	h.WriteString(instruction)
	for _, f := range sig.Inputs {
		h.WriteString(f.Description)
	}
	for _, f := range sig.Outputs {
		h.WriteString(f.Description)
	}
	return h.Sum()
}

// ParamsHash hashes params by sorted key and the string form of each value.
// It stands in for InstructionHash on logic without an instruction.
func ParamsHash(p Params) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := NewHasher()
	for _, k := range keys {
		h.WriteString(k)
		h.WriteString(fmt.Sprint(p[k]))
	}
	return h.Sum()
}

// Hasher is a sha256 digest over length-prefixed fields, so that the
// concatenation of two fields cannot collide with a single field.
type Hasher struct {
	h hash.Hash
}

func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

func (h *Hasher) WriteString(s string) {
	n := uint64(len(s))
	h.h.Write([]byte{
		byte(n >> 56), byte(n >> 48), byte(n >> 40), byte(n >> 32),
		byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n),
	})
	h.h.Write([]byte(s))
}

// Sum returns the hex digest.
func (h *Hasher) Sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}
