// Package persist implements the binary field-by-field transport for puzzle
// inputs and outputs.
//
// Scalars are little-endian uint32. Vectors are a little-endian uint64 element
// count followed by the elements. Files start with a 4-byte magic naming
// their kind.
package persist

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ppopth/gf2-exponent/mexp"
)

// DefaultMaxVectorLen bounds decoded vectors so a corrupt length prefix cannot
// trigger a huge allocation
const DefaultMaxVectorLen = 1 << 28

var (
	ErrBadMagic = errors.New("unexpected file magic")
	ErrTooLarge = errors.New("vector length exceeds limit")
)

var (
	inputMagic  = [4]byte{'M', 'X', 'I', '1'}
	outputMagic = [4]byte{'M', 'X', 'O', '1'}
)

// Encoder writes fields to an io.Writer
type Encoder struct {
	w *bufio.Writer
}

var _ mexp.PersistContext = (*Encoder)(nil)

// NewEncoder creates an encoder. Flush must be called after the last field.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

func (e *Encoder) SendOrRecvUint32(v *uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], *v)
	_, err := e.w.Write(buf[:])
	return err
}

func (e *Encoder) SendOrRecvUint32s(v *[]uint32) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(*v)))
	if _, err := e.w.Write(buf[:]); err != nil {
		return err
	}
	for i := range *v {
		if err := e.SendOrRecvUint32(&(*v)[i]); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes any buffered data to the underlying writer
func (e *Encoder) Flush() error {
	return e.w.Flush()
}

// Decoder reads fields from an io.Reader
type Decoder struct {
	r            *bufio.Reader
	maxVectorLen uint64
}

var _ mexp.PersistContext = (*Decoder)(nil)

// NewDecoder creates a decoder accepting vectors up to DefaultMaxVectorLen
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:            bufio.NewReader(r),
		maxVectorLen: DefaultMaxVectorLen,
	}
}

// SetMaxVectorLen changes the largest vector the decoder accepts
func (d *Decoder) SetMaxVectorLen(n uint64) {
	d.maxVectorLen = n
}

func (d *Decoder) SendOrRecvUint32(v *uint32) error {
	var buf [4]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return err
	}
	*v = binary.LittleEndian.Uint32(buf[:])
	return nil
}

func (d *Decoder) SendOrRecvUint32s(v *[]uint32) error {
	var buf [8]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return err
	}
	length := binary.LittleEndian.Uint64(buf[:])
	if length > d.maxVectorLen {
		return fmt.Errorf("%w: %d > %d", ErrTooLarge, length, d.maxVectorLen)
	}

	res := make([]uint32, length)
	for i := range res {
		if err := d.SendOrRecvUint32(&res[i]); err != nil {
			return err
		}
	}
	*v = res
	return nil
}

func writeMagic(w io.Writer, magic [4]byte) error {
	_, err := w.Write(magic[:])
	return err
}

func readMagic(r io.Reader, want [4]byte) error {
	var got [4]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: want %q, got %q", ErrBadMagic, want[:], got[:])
	}
	return nil
}

// WriteInput writes a magic-prefixed input
func WriteInput(w io.Writer, in *mexp.Input) error {
	if err := writeMagic(w, inputMagic); err != nil {
		return err
	}
	enc := NewEncoder(w)
	if err := in.Persist(enc); err != nil {
		return fmt.Errorf("failed to encode input: %w", err)
	}
	return enc.Flush()
}

// ReadInput reads a magic-prefixed input and validates its matrix size
func ReadInput(r io.Reader) (*mexp.Input, error) {
	if err := readMagic(r, inputMagic); err != nil {
		return nil, err
	}
	in := &mexp.Input{}
	if err := in.Persist(NewDecoder(r)); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

// WriteOutput writes a magic-prefixed output
func WriteOutput(w io.Writer, out *mexp.Output) error {
	if err := writeMagic(w, outputMagic); err != nil {
		return err
	}
	enc := NewEncoder(w)
	if err := out.Persist(enc); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return enc.Flush()
}

// ReadOutput reads a magic-prefixed output
func ReadOutput(r io.Reader) (*mexp.Output, error) {
	if err := readMagic(r, outputMagic); err != nil {
		return nil, err
	}
	out := &mexp.Output{}
	if err := out.Persist(NewDecoder(r)); err != nil {
		return nil, fmt.Errorf("failed to decode output: %w", err)
	}
	return out, nil
}
