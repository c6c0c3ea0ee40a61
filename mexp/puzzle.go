package mexp

import (
	"errors"
	"fmt"
	"math"
	mrand "math/rand"

	"github.com/ppopth/gf2-exponent/field"
)

// Name identifies this puzzle to harnesses and on-disk files
const Name = "matrix_exponent"

var (
	// ErrInvalidScale is returned when an input is requested with a negative scale
	ErrInvalidScale = errors.New("scale must be between 0 and 2^32-1")
	// ErrMatrixSize is returned when an input's matrix does not have n*n entries
	ErrMatrixSize = errors.New("matrix size does not match dimension")
)

// Input is a matrix-exponent problem instance.
// The matrix is generated once and never modified by executors, so one input
// can be executed any number of times.
type Input struct {
	N      uint32       // matrix side length
	Steps  uint32       // number of trace entries to produce
	Seed   uint32       // generator seed the matrix was derived from
	Matrix field.Matrix // row-major, N*N raw generator states
}

// NewInput builds an input whose matrix is generated from seed
func NewInput(n, steps, seed uint32) *Input {
	matrix, _ := GenerateMatrix(n, seed)
	return &Input{
		N:      n,
		Steps:  steps,
		Seed:   seed,
		Matrix: matrix,
	}
}

// CreateInput builds an input of the given scale (n = steps = scale) from a
// freshly drawn seed. Entropy is consumed only here, never during execution.
func CreateInput(scale int) (*Input, error) {
	if scale < 0 || uint64(scale) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidScale, scale)
	}
	seed := mrand.Uint32()
	log.Debugf("creating input with scale %d and seed %d", scale, seed)
	return NewInput(uint32(scale), uint32(scale), seed), nil
}

// Validate checks that the matrix holds exactly N*N entries
func (in *Input) Validate() error {
	want := uint64(in.N) * uint64(in.N)
	if uint64(len(in.Matrix)) != want {
		return fmt.Errorf("%w: n=%d needs %d entries, got %d", ErrMatrixSize, in.N, want, len(in.Matrix))
	}
	return nil
}

// Output is the hash trace produced by executing an Input
type Output struct {
	Hashes []uint32
}

// Equals reports whether both traces have the same length and entries.
// This is the only acceptance criterion for candidate implementations.
func (out *Output) Equals(other *Output) bool {
	if out == nil || other == nil {
		return out == other
	}
	if len(out.Hashes) != len(other.Hashes) {
		return false
	}
	for i := range out.Hashes {
		if out.Hashes[i] != other.Hashes[i] {
			return false
		}
	}
	return true
}

// FirstMismatch returns the index of the first differing trace entry, or -1 if
// the outputs are equal. When one trace is a prefix of the other, the index is
// the length of the shorter one.
func FirstMismatch(a, b *Output) int {
	if a.Equals(b) {
		return -1
	}
	if a == nil || b == nil {
		return 0
	}
	n := min(len(a.Hashes), len(b.Hashes))
	for i := 0; i < n; i++ {
		if a.Hashes[i] != b.Hashes[i] {
			return i
		}
	}
	return n
}
