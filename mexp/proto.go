package mexp

import (
	"github.com/ppopth/gf2-exponent/field"
	"github.com/ppopth/gf2-exponent/pb"
)

// ToProto converts the input into its wire message
func (in *Input) ToProto() *pb.Input {
	return &pb.Input{
		N:      in.N,
		Steps:  in.Steps,
		Seed:   in.Seed,
		Matrix: in.Matrix,
	}
}

// InputFromProto converts a wire message into an input. The result is not
// validated; call Validate before executing it.
func InputFromProto(m *pb.Input) *Input {
	return &Input{
		N:      m.GetN(),
		Steps:  m.GetSteps(),
		Seed:   m.GetSeed(),
		Matrix: field.Matrix(m.GetMatrix()),
	}
}

// ToProto converts the output into its wire message
func (out *Output) ToProto() *pb.Output {
	return &pb.Output{Hashes: out.Hashes}
}

// OutputFromProto converts a wire message into an output.
// Proto3 does not distinguish an empty trace from an absent one; both decode
// to an empty, non-nil trace.
func OutputFromProto(m *pb.Output) *Output {
	hashes := m.GetHashes()
	if hashes == nil {
		hashes = []uint32{}
	}
	return &Output{Hashes: hashes}
}
