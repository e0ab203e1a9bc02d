package client

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/unum-cloud/ukvdb/pkg/server/grpcserver"
)

// Client wraps a connection to a ukv transactional gRPC server.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient dials addr and returns a ready-to-use Client.
func NewClient(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.conn.Invoke(ctx, "/ukv.UKV/"+method, req, resp, grpc.CallContentSubtype("json"))
}

// BeginTransaction starts a new transaction and returns its handle.
func (c *Client) BeginTransaction(ctx context.Context) (uint64, error) {
	resp := new(grpcserver.BeginTransactionResponse)
	if err := c.invoke(ctx, "BeginTransaction", &grpcserver.BeginTransactionRequest{}, resp); err != nil {
		return 0, err
	}
	return resp.Transaction, nil
}

// CommitTransaction stages and commits a transaction, returning the
// generation it committed at.
func (c *Client) CommitTransaction(ctx context.Context, txn uint64) (uint64, error) {
	resp := new(grpcserver.CommitTransactionResponse)
	req := &grpcserver.CommitTransactionRequest{Transaction: txn}
	if err := c.invoke(ctx, "CommitTransaction", req, resp); err != nil {
		return 0, err
	}
	return resp.Generation, nil
}

// AbortTransaction discards a transaction's buffered writes.
func (c *Client) AbortTransaction(ctx context.Context, txn uint64) error {
	req := &grpcserver.AbortTransactionRequest{Transaction: txn}
	return c.invoke(ctx, "AbortTransaction", req, new(grpcserver.AbortTransactionResponse))
}

// Read fetches keys from collection, optionally through txn (0 for HEAD).
func (c *Client) Read(ctx context.Context, txn, collection uint64, keys []int64, dontWatch bool) ([]grpcserver.Entry, error) {
	req := &grpcserver.ReadRequest{Transaction: txn, Collection: collection, Keys: keys, DontWatch: dontWatch}
	resp := new(grpcserver.ReadResponse)
	if err := c.invoke(ctx, "Read", req, resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Write applies writes to collection, optionally buffered through txn (0
// for HEAD, applied immediately).
func (c *Client) Write(ctx context.Context, txn, collection uint64, writes []grpcserver.Write) error {
	req := &grpcserver.WriteRequest{Transaction: txn, Collection: collection, Writes: writes}
	return c.invoke(ctx, "Write", req, new(grpcserver.WriteResponse))
}
