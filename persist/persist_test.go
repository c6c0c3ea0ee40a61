package persist

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ppopth/gf2-exponent/field"
	"github.com/ppopth/gf2-exponent/mexp"
)

func TestInputFieldOrder(t *testing.T) {
	in := &mexp.Input{N: 1, Steps: 2, Seed: 3, Matrix: field.Matrix{4}}

	var buf bytes.Buffer
	if err := WriteInput(&buf, in); err != nil {
		t.Fatal(err)
	}

	// magic, n, steps, seed, matrix length, matrix
	expected := []byte("MXI1")
	expected = binary.LittleEndian.AppendUint32(expected, 1)
	expected = binary.LittleEndian.AppendUint32(expected, 2)
	expected = binary.LittleEndian.AppendUint32(expected, 3)
	expected = binary.LittleEndian.AppendUint64(expected, 1)
	expected = binary.LittleEndian.AppendUint32(expected, 4)
	if !bytes.Equal(buf.Bytes(), expected) {
		t.Fatalf("expected %x, got %x", expected, buf.Bytes())
	}
}

func TestInputOutputTransport(t *testing.T) {
	in := mexp.NewInput(9, 9, 77)
	out := mexp.ReferenceExecute(in)

	var buf bytes.Buffer
	if err := WriteInput(&buf, in); err != nil {
		t.Fatal(err)
	}
	gotIn, err := ReadInput(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if gotIn.N != in.N || gotIn.Steps != in.Steps || gotIn.Seed != in.Seed || !field.Equal(gotIn.Matrix, in.Matrix) {
		t.Fatalf("input differs after transport: %+v", gotIn)
	}

	buf.Reset()
	if err := WriteOutput(&buf, out); err != nil {
		t.Fatal(err)
	}
	gotOut, err := ReadOutput(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !gotOut.Equals(out) {
		t.Fatalf("output differs after transport: %v", gotOut.Hashes)
	}

	// The decoded input executes to the same trace.
	if !mexp.ReferenceExecute(gotIn).Equals(out) {
		t.Fatal("decoded input produced a different trace")
	}
}

func TestReadWrongMagic(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteOutput(&buf, &mexp.Output{Hashes: []uint32{1}}); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadInput(&buf); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestReadTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteInput(&buf, mexp.NewInput(3, 3, 1)); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	if _, err := ReadInput(bytes.NewReader(data[:len(data)-2])); err == nil {
		t.Fatal("expected an error for truncated input")
	}
}

func TestReadInconsistentMatrix(t *testing.T) {
	var buf bytes.Buffer
	bad := &mexp.Input{N: 3, Steps: 3, Matrix: field.Matrix{1, 2}}
	if err := WriteInput(&buf, bad); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadInput(&buf); !errors.Is(err, mexp.ErrMatrixSize) {
		t.Fatalf("expected ErrMatrixSize, got %v", err)
	}
}

func TestDecoderVectorLimit(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	hashes := []uint32{1, 2, 3, 4}
	if err := enc.SendOrRecvUint32s(&hashes); err != nil {
		t.Fatal(err)
	}
	if err := enc.Flush(); err != nil {
		t.Fatal(err)
	}

	dec := NewDecoder(&buf)
	dec.SetMaxVectorLen(3)
	var got []uint32
	if err := dec.SendOrRecvUint32s(&got); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	in := mexp.NewInput(4, 4, 1)
	out := mexp.ReferenceExecute(in)

	inPath := filepath.Join(dir, "input.bin")
	outPath := filepath.Join(dir, "output.bin")
	if err := SaveInput(inPath, in); err != nil {
		t.Fatal(err)
	}
	if err := SaveOutput(outPath, out); err != nil {
		t.Fatal(err)
	}

	gotIn, err := LoadInput(inPath)
	if err != nil {
		t.Fatal(err)
	}
	gotOut, err := LoadOutput(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !mexp.ReferenceExecute(gotIn).Equals(gotOut) {
		t.Fatal("loaded input and output do not match")
	}
	if _, err := LoadInput(filepath.Join(dir, "missing.bin")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
