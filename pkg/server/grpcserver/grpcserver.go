package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"github.com/unum-cloud/ukvdb/pkg/engine"
	"github.com/unum-cloud/ukvdb/pkg/kv"
	"github.com/unum-cloud/ukvdb/pkg/log"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Wire message shapes, mirroring api/proto/ukv.proto.

type BeginTransactionRequest struct{}
type BeginTransactionResponse struct {
	Transaction uint64 `json:"transaction"`
}

type CommitTransactionRequest struct {
	Transaction uint64 `json:"transaction"`
}
type CommitTransactionResponse struct {
	Generation uint64 `json:"generation"`
}

type AbortTransactionRequest struct {
	Transaction uint64 `json:"transaction"`
}
type AbortTransactionResponse struct{}

type ReadRequest struct {
	Transaction uint64  `json:"transaction"`
	Collection  uint64  `json:"collection"`
	Keys        []int64 `json:"keys"`
	DontWatch   bool    `json:"dont_watch"`
}

type Entry struct {
	Key     int64  `json:"key"`
	Value   []byte `json:"value"`
	Present bool   `json:"present"`
}

type ReadResponse struct {
	Entries []Entry `json:"entries"`
}

type Write struct {
	Key   int64  `json:"key"`
	Value []byte `json:"value"`
}

type WriteRequest struct {
	Transaction uint64  `json:"transaction"`
	Collection  uint64  `json:"collection"`
	Writes      []Write `json:"writes"`
}

type WriteResponse struct{}

// Server implements the UKV gRPC service against a *engine.Database.
type Server struct {
	db   *engine.Database
	grpc *grpc.Server
}

// NewServer builds a Server bound to db and registers it on a fresh
// grpc.Server.
func NewServer(db *engine.Database) *Server {
	// recoverUnary turns a handler panic into ErrUnknown, as pkg/server's
	// HTTP middleware does.
	recoverUnary := func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithComponent("grpcserver").Error().Interface("panic", rec).Msg("recovered in grpc handler")
				resp, err = nil, toStatusErr(engine.Wrap(engine.ErrUnknown, fmt.Sprintf("%v", rec)))
			}
		}()
		return handler(ctx, req)
	}
	s := &Server{db: db, grpc: grpc.NewServer(grpc.UnaryInterceptor(recoverUnary))}
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Start listens on addr and serves until Stop is called or Serve errors.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ukv: network: %w", err)
	}
	return s.ServeOn(lis)
}

// ServeOn serves on an already-bound listener, used by Start and by tests
// that need the ephemeral port a "tcp", "127.0.0.1:0" listener picks.
func (s *Server) ServeOn(lis net.Listener) error {
	log.WithComponent("grpcserver").Info().Str("addr", lis.Addr().String()).Msg("transactional gRPC server listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

func toStatusErr(err error) error {
	if err == nil {
		return nil
	}
	code := codes.Internal
	var kindErr *engine.KindError
	if errors.As(err, &kindErr) {
		switch kindErr.Kind {
		case engine.KindArgumentWrong, engine.KindArgsCombo, engine.KindOutOfRange:
			code = codes.InvalidArgument
		case engine.KindUninitialized:
			code = codes.NotFound
		case engine.KindMissingFeature:
			code = codes.Unimplemented
		case engine.KindTransactionConflict:
			code = codes.Aborted
		case engine.KindNetwork:
			code = codes.Unavailable
		}
	}
	return status.Error(code, err.Error())
}

func (s *Server) beginTransaction(ctx context.Context, req *BeginTransactionRequest) (*BeginTransactionResponse, error) {
	h := s.db.BeginTransaction()
	return &BeginTransactionResponse{Transaction: uint64(h)}, nil
}

func (s *Server) commitTransaction(ctx context.Context, req *CommitTransactionRequest) (*CommitTransactionResponse, error) {
	gen, err := s.db.CommitTransaction(engine.TxnHandle(req.Transaction))
	if err != nil {
		return nil, toStatusErr(err)
	}
	return &CommitTransactionResponse{Generation: gen}, nil
}

func (s *Server) abortTransaction(ctx context.Context, req *AbortTransactionRequest) (*AbortTransactionResponse, error) {
	if err := s.db.AbortTransaction(engine.TxnHandle(req.Transaction)); err != nil {
		return nil, toStatusErr(err)
	}
	return &AbortTransactionResponse{}, nil
}

func (s *Server) read(ctx context.Context, req *ReadRequest) (*ReadResponse, error) {
	var opts engine.Options
	if req.DontWatch {
		opts |= engine.OptDontWatch
	}

	var entries []kv.Entry
	var err error
	if req.Transaction != 0 {
		entries, err = s.db.TxnRead(engine.TxnHandle(req.Transaction), kv.Handle(req.Collection), req.Keys, opts)
	} else {
		entries, err = s.db.Read(kv.Handle(req.Collection), req.Keys)
	}
	if err != nil {
		return nil, toStatusErr(err)
	}

	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Entry{Key: e.Key, Value: e.Value, Present: e.Present}
	}
	return &ReadResponse{Entries: out}, nil
}

func (s *Server) write(ctx context.Context, req *WriteRequest) (*WriteResponse, error) {
	writes := make([]kv.Write, len(req.Writes))
	for i, w := range req.Writes {
		writes[i] = kv.Write{Key: w.Key, Value: w.Value}
	}

	if req.Transaction != 0 {
		if err := s.db.TxnWrite(engine.TxnHandle(req.Transaction), kv.Handle(req.Collection), writes); err != nil {
			return nil, toStatusErr(err)
		}
		return &WriteResponse{}, nil
	}

	if _, err := s.db.Write(kv.Handle(req.Collection), writes); err != nil {
		return nil, toStatusErr(err)
	}
	return &WriteResponse{}, nil
}

// unaryHandler adapts one of the typed methods above into grpc's untyped
// handler signature, decoding the request with the codec grpc selected for
// this call (jsonCodec, forced by every client in this repo).
func unaryHandler[Req, Resp any](handle func(*Server, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		s := srv.(*Server)
		if interceptor == nil {
			return handle(s, ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv}
		return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
			return handle(s, ctx, req.(*Req))
		})
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "ukv.UKV",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "BeginTransaction", Handler: unaryHandler((*Server).beginTransaction)},
		{MethodName: "CommitTransaction", Handler: unaryHandler((*Server).commitTransaction)},
		{MethodName: "AbortTransaction", Handler: unaryHandler((*Server).abortTransaction)},
		{MethodName: "Read", Handler: unaryHandler((*Server).read)},
		{MethodName: "Write", Handler: unaryHandler((*Server).write)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/proto/ukv.proto",
}
