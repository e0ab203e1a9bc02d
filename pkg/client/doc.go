/*
Package client provides a Go client library for the ukv transactional gRPC
surface (pkg/server/grpcserver), adapted from the teacher's pkg/client
wrapper shape: a single Client type owning one grpc.ClientConn, one method
per RPC, connection teardown via Close.

Unlike the teacher's mTLS-secured control plane, this client dials with
insecure transport credentials (authentication is out of scope per
spec.md's non-goals) and forces the JSON wire codec
pkg/server/grpcserver registers, since the service is hand-implemented
against that codec rather than protoc-generated bindings.
*/
package client
