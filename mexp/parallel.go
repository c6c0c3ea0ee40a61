package mexp

import (
	"fmt"
	"math/bits"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ParallelName is the registry name of the parallel executor
const ParallelName = "parallel"

// ParallelOption configures a Parallel executor during construction
type ParallelOption func(*Parallel) error

// WithWorkers sets the maximum number of goroutines used per multiplication
func WithWorkers(workers int) ParallelOption {
	return func(p *Parallel) error {
		if workers < 1 {
			return fmt.Errorf("workers must be positive, got %d", workers)
		}
		p.workers = workers
		return nil
	}
}

// Parallel is a candidate executor. It reduces A to bits once, keeps every
// row as a packed bitset and computes each accumulator row as the XOR of the
// rows of A selected by the set bits of the previous row. Rows of one
// multiplication are computed concurrently; iterations stay sequential.
type Parallel struct {
	workers int
}

var _ Executor = (*Parallel)(nil)

// NewParallel creates a parallel executor and applies options.
// Invalid options are ignored in favour of defaults; use NewParallelWithOptions
// to observe option errors.
func NewParallel(opts ...ParallelOption) *Parallel {
	p, err := NewParallelWithOptions(opts...)
	if err != nil {
		log.Warnf("invalid parallel executor option, using defaults: %v", err)
		p, _ = NewParallelWithOptions()
	}
	return p
}

// NewParallelWithOptions creates a parallel executor, failing on invalid options
func NewParallelWithOptions(opts ...ParallelOption) (*Parallel, error) {
	p := &Parallel{
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Name returns the registry name of the executor
func (p *Parallel) Name() string {
	return ParallelName
}

// Workers returns the concurrency limit of one multiplication
func (p *Parallel) Workers() int {
	return p.workers
}

// bitMatrix is an n×n GF(2) matrix with each row packed into 64-bit words
type bitMatrix struct {
	n     int
	words int // words per row
	rows  []uint64
}

func newBitMatrix(n int) *bitMatrix {
	words := (n + 63) / 64
	return &bitMatrix{
		n:     n,
		words: words,
		rows:  make([]uint64, n*words),
	}
}

func (m *bitMatrix) row(r int) []uint64 {
	return m.rows[r*m.words : (r+1)*m.words]
}

func (m *bitMatrix) set(r, c int) {
	m.rows[r*m.words+c/64] |= 1 << (c % 64)
}

func (m *bitMatrix) get(r, c int) bool {
	return m.rows[r*m.words+c/64]&(1<<(c%64)) != 0
}

func (m *bitMatrix) weight() uint32 {
	var res uint32
	for _, w := range m.rows {
		res += uint32(bits.OnesCount64(w))
	}
	return res
}

// packMatrix reduces every raw entry to its low bit, which is its value in GF(2)
func packMatrix(n int, src []uint32) *bitMatrix {
	m := newBitMatrix(n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if src[r*n+c]&1 == 1 {
				m.set(r, c)
			}
		}
	}
	return m
}

func identityBitMatrix(n int) *bitMatrix {
	m := newBitMatrix(n)
	for i := 0; i < n; i++ {
		m.set(i, i)
	}
	return m
}

// multiplyInto writes acc × a into dst, splitting rows across goroutines
func (p *Parallel) multiplyInto(dst, acc, a *bitMatrix) error {
	n := acc.n
	chunk := (n + p.workers - 1) / p.workers
	if chunk < 1 {
		chunk = 1
	}

	var g errgroup.Group
	g.SetLimit(p.workers)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			for r := start; r < end; r++ {
				out := dst.row(r)
				clear(out)
				for i := 0; i < n; i++ {
					if !acc.get(r, i) {
						continue
					}
					for w, v := range a.row(i) {
						out[w] ^= v
					}
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// Execute computes the hash trace of in
func (p *Parallel) Execute(in *Input) (*Output, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	hash := make([]uint32, in.Steps)
	if in.Steps == 0 {
		return &Output{Hashes: hash}, nil
	}

	n := int(in.N)
	log.Infof("packing A into %d-word rows with %d workers", (n+63)/64, p.workers)
	a := packMatrix(n, in.Matrix)
	acc := identityBitMatrix(n)
	next := newBitMatrix(n)

	if n > 0 && acc.get(0, 0) {
		hash[0] = 1
	}
	for i := 1; i < int(in.Steps); i++ {
		if err := p.multiplyInto(next, acc, a); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		acc, next = next, acc
		hash[i] = acc.weight()
		log.Debugf("iteration %d hash=%d", i, hash[i])
	}
	log.Infof("done")

	return &Output{Hashes: hash}, nil
}
