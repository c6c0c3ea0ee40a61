package field

// Bit is an element of the two-element field GF(2).
// Addition is XOR and multiplication is AND.
type Bit uint8

const (
	Zero Bit = 0
	One  Bit = 1
)

// Add returns b + o in GF(2) (XOR operation)
func (b Bit) Add(o Bit) Bit {
	return (b ^ o) & 1
}

// Mul returns b * o in GF(2) (AND operation)
func (b Bit) Mul(o Bit) Bit {
	return b & o & 1
}

// IsZero returns true if b is the additive identity
func (b Bit) IsZero() bool {
	return b&1 == 0
}

// Uint32 returns the stored representation of b
func (b Bit) Uint32() uint32 {
	return uint32(b & 1)
}

// String returns "0" or "1"
func (b Bit) String() string {
	if b.IsZero() {
		return "0"
	}
	return "1"
}

// ScalarMultiply returns (a * b) mod 2.
// The operands may be raw generator states rather than bits, so the product
// is formed in 64 bits before the reduction.
func ScalarMultiply(a, b uint32) Bit {
	product := uint64(a) * uint64(b)
	return Bit(product % 2)
}

// ScalarAdd returns (a + b) mod 2, using the same widening as ScalarMultiply.
func ScalarAdd(a, b uint32) Bit {
	sum := uint64(a) + uint64(b)
	return Bit(sum % 2)
}
