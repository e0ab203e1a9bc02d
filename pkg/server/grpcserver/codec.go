// Package grpcserver mirrors api/proto/ukv.proto's transactional subset
// (begin/commit/read/write) over google.golang.org/grpc, grounded on the
// teacher's pkg/api gRPC control plane (pkg/api/server.go registers a
// generated WarrenAPIServer against a grpc.Server the same way this package
// registers a hand-built ServiceDesc). Messages are encoded with the
// jsonCodec below instead of protoc-gen-go bindings, so the wire contract
// documented in ukv.proto is served without a code-generation step.
package grpcserver

import (
	"encoding/json"
	"fmt"
)

// jsonCodec implements google.golang.org/grpc/encoding.Codec over plain Go
// structs via encoding/json, used in place of protoc-generated
// proto.Message marshaling.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ukv: argument-wrong: decoding grpc payload: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return "json" }
