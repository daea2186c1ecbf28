package mpi

import "github.com/sugawarayuuta/sonnet"

// envelope is the unit the grpc transport carries.
type envelope struct {
	Src     int
	Tag     int
	Code    int    `json:",omitempty"`
	Payload []byte `json:",omitempty"`
}

type ack struct{}

// jsonCodec replaces protobuf on the wire.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return sonnet.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return sonnet.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "json"
}
