package mexp

import (
	"github.com/ppopth/gf2-exponent/field"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("mexp")

// ReferenceName is the registry name of the reference executor
const ReferenceName = "reference"

// Reference is the oracle implementation: a plain sequential recurrence
// acc_i = acc_{i-1} × A starting from the identity, recording the weight of
// every accumulator. Other executors must reproduce its trace exactly.
type Reference struct{}

var _ Executor = Reference{}

// Name returns the registry name of the executor
func (Reference) Name() string {
	return ReferenceName
}

// Execute runs the reference computation. It fails only for malformed inputs.
func (Reference) Execute(in *Input) (*Output, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return ReferenceExecute(in), nil
}

// ReferenceExecute computes the hash trace of in.
//
// trace[0] is the top-left entry of the identity accumulator and trace[i] for
// i >= 1 is the weight after i multiplications by A. A trace of steps == 0 is
// empty; with n == 0 every entry is 0.
func ReferenceExecute(in *Input) *Output {
	hash := make([]uint32, in.Steps)
	if in.Steps == 0 {
		log.Infof("no steps requested")
		return &Output{Hashes: hash}
	}

	n := int(in.N)

	log.Infof("setting up A and identity")
	A := in.Matrix
	acc := field.Identity(n)

	log.Infof("beginning multiplication")
	if n > 0 {
		hash[0] = acc[field.Index(n, 0, 0)]
	}
	for i := 1; i < int(in.Steps); i++ {
		log.Debugf("iteration %d", i)
		acc = field.Multiply(n, acc, A)
		hash[i] = field.Weight(n, acc)
		log.Debugf("  hash=%d", hash[i])
	}
	log.Infof("done")

	return &Output{Hashes: hash}
}
