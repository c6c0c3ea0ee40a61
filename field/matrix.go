package field

import (
	"fmt"
)

// Matrix operations over GF(2)
//
// A Matrix is a flat row-major slice: for an n×n matrix the cell at row r,
// column c lives at index r*n+c. Optimized implementations compared against
// this package assume the same layout, so it is kept explicit instead of
// using nested slices.

// Matrix is an n×n matrix stored in row-major order
type Matrix []uint32

// Index returns the flat index of cell (r, c) in an n×n matrix
func Index(n, r, c int) int {
	return r*n + c
}

// Identity returns the n×n identity matrix
func Identity(n int) Matrix {
	res := make(Matrix, n*n)
	for i := 0; i < n; i++ {
		res[Index(n, i, i)] = One.Uint32()
	}
	return res
}

// Multiply computes A × B over GF(2) for n×n matrices.
// Entries of A and B are reduced only through ScalarMultiply and ScalarAdd,
// never beforehand. The result is a fresh matrix; A and B are not modified.
func Multiply(n int, A, B Matrix) Matrix {
	if len(A) != n*n || len(B) != n*n {
		panic(fmt.Sprintf("matrix dimensions mismatch: want %d entries, A has %d, B has %d", n*n, len(A), len(B)))
	}

	C := make(Matrix, n*n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			sum := Zero
			for i := 0; i < n; i++ {
				product := ScalarMultiply(A[Index(n, r, i)], B[Index(n, i, c)])
				sum = ScalarAdd(sum.Uint32(), product.Uint32())
			}
			C[Index(n, r, c)] = sum.Uint32()
		}
	}
	return C
}

// Weight returns the plain integer sum of all n×n entries of A (not reduced mod 2)
func Weight(n int, A Matrix) uint32 {
	var res uint32
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			res += A[Index(n, r, c)]
		}
	}
	return res
}

// IsBoolean returns true if every entry of A is 0 or 1
func IsBoolean(A Matrix) bool {
	for _, v := range A {
		if v > 1 {
			return false
		}
	}
	return true
}

// Equal returns true if A and B have the same length and entries
func Equal(A, B Matrix) bool {
	if len(A) != len(B) {
		return false
	}
	for i := range A {
		if A[i] != B[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of A
func (A Matrix) Clone() Matrix {
	return append(Matrix(nil), A...)
}
