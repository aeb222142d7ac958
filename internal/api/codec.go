package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// codecName is registered with grpc's encoding package in place of the
// default "proto" codec, since this build carries no protoc-generated
// marshalers for the messages in messages.go.
const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("api: marshal %T: %w", v, err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("api: unmarshal %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CodecName is the name passed to grpc.CallContentSubtype / used to select
// this codec on the client dial options.
const CodecName = codecName

// ServerCodecOption forces the server to use the JSON codec for every call
// on this service, instead of grpc's default protobuf codec.
func ServerCodecOption() grpc.ServerOption {
	return grpc.ForceServerCodec(jsonCodec{})
}

// DialCallOption selects the JSON codec on the client side; combine with
// grpc.WithDefaultCallOptions when dialing.
func DialCallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}
