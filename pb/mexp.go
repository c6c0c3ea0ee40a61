// Package pb holds the wire messages described in mexp.proto.
//
// The messages are plain proto3 structs tagged for reflection-based
// marshalling by github.com/gogo/protobuf/proto.
package pb

import (
	proto "github.com/gogo/protobuf/proto"
)

type Input struct {
	N      uint32   `protobuf:"varint,1,opt,name=n,proto3" json:"n,omitempty"`
	Steps  uint32   `protobuf:"varint,2,opt,name=steps,proto3" json:"steps,omitempty"`
	Seed   uint32   `protobuf:"varint,3,opt,name=seed,proto3" json:"seed,omitempty"`
	Matrix []uint32 `protobuf:"varint,4,rep,packed,name=matrix,proto3" json:"matrix,omitempty"`
}

func (m *Input) Reset()         { *m = Input{} }
func (m *Input) String() string { return proto.CompactTextString(m) }
func (*Input) ProtoMessage()    {}

func (m *Input) GetN() uint32 {
	if m != nil {
		return m.N
	}
	return 0
}

func (m *Input) GetSteps() uint32 {
	if m != nil {
		return m.Steps
	}
	return 0
}

func (m *Input) GetSeed() uint32 {
	if m != nil {
		return m.Seed
	}
	return 0
}

func (m *Input) GetMatrix() []uint32 {
	if m != nil {
		return m.Matrix
	}
	return nil
}

type Output struct {
	Hashes []uint32 `protobuf:"varint,1,rep,packed,name=hashes,proto3" json:"hashes,omitempty"`
}

func (m *Output) Reset()         { *m = Output{} }
func (m *Output) String() string { return proto.CompactTextString(m) }
func (*Output) ProtoMessage()    {}

func (m *Output) GetHashes() []uint32 {
	if m != nil {
		return m.Hashes
	}
	return nil
}

type Request struct {
	Id    string `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Input *Input `protobuf:"bytes,2,opt,name=input,proto3" json:"input,omitempty"`
}

func (m *Request) Reset()         { *m = Request{} }
func (m *Request) String() string { return proto.CompactTextString(m) }
func (*Request) ProtoMessage()    {}

func (m *Request) GetId() string {
	if m != nil {
		return m.Id
	}
	return ""
}

func (m *Request) GetInput() *Input {
	if m != nil {
		return m.Input
	}
	return nil
}

type Response struct {
	Id       string  `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Output   *Output `protobuf:"bytes,2,opt,name=output,proto3" json:"output,omitempty"`
	Error    string  `protobuf:"bytes,3,opt,name=error,proto3" json:"error,omitempty"`
	Executor string  `protobuf:"bytes,4,opt,name=executor,proto3" json:"executor,omitempty"`
}

func (m *Response) Reset()         { *m = Response{} }
func (m *Response) String() string { return proto.CompactTextString(m) }
func (*Response) ProtoMessage()    {}

func (m *Response) GetId() string {
	if m != nil {
		return m.Id
	}
	return ""
}

func (m *Response) GetOutput() *Output {
	if m != nil {
		return m.Output
	}
	return nil
}

func (m *Response) GetError() string {
	if m != nil {
		return m.Error
	}
	return ""
}

func (m *Response) GetExecutor() string {
	if m != nil {
		return m.Executor
	}
	return ""
}

type RPC struct {
	Request  *Request  `protobuf:"bytes,1,opt,name=request,proto3" json:"request,omitempty"`
	Response *Response `protobuf:"bytes,2,opt,name=response,proto3" json:"response,omitempty"`
}

func (m *RPC) Reset()         { *m = RPC{} }
func (m *RPC) String() string { return proto.CompactTextString(m) }
func (*RPC) ProtoMessage()    {}

func (m *RPC) GetRequest() *Request {
	if m != nil {
		return m.Request
	}
	return nil
}

func (m *RPC) GetResponse() *Response {
	if m != nil {
		return m.Response
	}
	return nil
}
