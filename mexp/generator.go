package mexp

import (
	"github.com/ppopth/gf2-exponent/field"
)

const (
	// StepMultiplier is the multiplier of the congruential generator
	StepMultiplier = 15807
	// StepModulus is the Mersenne prime 2^31 - 1
	StepModulus = 2147483647
)

// Step advances the generator state: next = (15807 * x) mod (2^31 - 1).
// The product needs more than 32 bits, so it is formed in 64 bits before reducing.
func Step(x uint32) uint32 {
	tmp := StepMultiplier * uint64(x)
	return uint32(tmp % StepModulus)
}

// GenerateMatrix fills an n×n matrix in row-major order with consecutive
// generator states starting from seed itself. The entries are raw states, not
// bits; reduction to GF(2) happens only inside the field arithmetic.
// The returned state is the one reached after emitting the last cell, for
// callers continuing the stream.
func GenerateMatrix(n uint32, seed uint32) (field.Matrix, uint32) {
	size := int(n) * int(n)
	res := make(field.Matrix, size)
	for r := 0; r < int(n); r++ {
		for c := 0; c < int(n); c++ {
			res[field.Index(int(n), r, c)] = seed
			seed = Step(seed)
		}
	}
	return res, seed
}
