package mexp

import (
	"testing"

	"github.com/gogo/protobuf/proto"

	"github.com/ppopth/gf2-exponent/field"
	"github.com/ppopth/gf2-exponent/pb"
)

func TestProtoTransport(t *testing.T) {
	in := NewInput(5, 5, 0xFFFFFFFF)
	out := ReferenceExecute(in)

	rpc := &pb.RPC{
		Request:  &pb.Request{Id: "job-1", Input: in.ToProto()},
		Response: &pb.Response{Id: "job-1", Output: out.ToProto()},
	}
	data, err := proto.Marshal(rpc)
	if err != nil {
		t.Fatal(err)
	}

	decoded := &pb.RPC{}
	if err := proto.Unmarshal(data, decoded); err != nil {
		t.Fatal(err)
	}

	gotIn := InputFromProto(decoded.GetRequest().GetInput())
	if gotIn.N != in.N || gotIn.Steps != in.Steps || gotIn.Seed != in.Seed {
		t.Fatalf("scalar fields differ: %+v", gotIn)
	}
	if !field.Equal(gotIn.Matrix, in.Matrix) {
		t.Fatal("matrix differs after transport")
	}
	if !OutputFromProto(decoded.GetResponse().GetOutput()).Equals(out) {
		t.Fatal("output differs after transport")
	}
}

func TestOutputFromProtoEmpty(t *testing.T) {
	out := OutputFromProto(nil)
	if out.Hashes == nil || len(out.Hashes) != 0 {
		t.Fatalf("expected empty non-nil trace, got %v", out.Hashes)
	}
}
