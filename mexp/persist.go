package mexp

import (
	"fmt"
)

// PersistContext moves puzzle fields to or from an external representation.
// The same call sequence is used in both directions: an encoding context
// reads the pointee, a decoding context overwrites it.
type PersistContext interface {
	SendOrRecvUint32(*uint32) error
	SendOrRecvUint32s(*[]uint32) error
}

// Persist visits the input fields in their stable order: n, steps, seed, matrix
func (in *Input) Persist(ctx PersistContext) error {
	if err := ctx.SendOrRecvUint32(&in.N); err != nil {
		return fmt.Errorf("n: %w", err)
	}
	if err := ctx.SendOrRecvUint32(&in.Steps); err != nil {
		return fmt.Errorf("steps: %w", err)
	}
	if err := ctx.SendOrRecvUint32(&in.Seed); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	matrix := []uint32(in.Matrix)
	if err := ctx.SendOrRecvUint32s(&matrix); err != nil {
		return fmt.Errorf("matrix: %w", err)
	}
	in.Matrix = matrix
	return nil
}

// Persist visits the output fields: hashes
func (out *Output) Persist(ctx PersistContext) error {
	if err := ctx.SendOrRecvUint32s(&out.Hashes); err != nil {
		return fmt.Errorf("hashes: %w", err)
	}
	return nil
}
