package client

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/alfredjeanlab/tombstone/internal/api"
	"github.com/alfredjeanlab/tombstone/internal/model"
)

// GRPCClient implements Client using gRPC with the JSON codec.
type GRPCClient struct {
	conn *grpc.ClientConn
	md   metadata.MD
}

// NewGRPCClient creates a new gRPC client connected to the given address.
// Extra dial options are appended after the default insecure credentials.
func NewGRPCClient(addr string, opts Options, dialOpts ...grpc.DialOption) (*GRPCClient, error) {
	dialOpts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, dialOpts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, err
	}
	md := metadata.MD{}
	if opts.Token != "" {
		md.Set("authorization", "Bearer "+opts.Token)
	}
	if opts.TenantID != "" {
		md.Set("x-tenant-id", opts.TenantID)
	}
	return &GRPCClient{conn: conn, md: md}, nil
}

// invoke calls method with the client's metadata attached.
func (c *GRPCClient) invoke(ctx context.Context, method string, in, out any) error {
	if len(c.md) > 0 {
		ctx = metadata.NewOutgoingContext(ctx, c.md)
	}
	return api.Invoke(ctx, c.conn, method, in, out)
}

func (c *GRPCClient) CreateRecord(ctx context.Context, typ, id string, fields json.RawMessage) (*model.Record, error) {
	var rec model.Record
	if err := c.invoke(ctx, api.MethodCreateRecord, &api.CreateRecordRequest{Type: typ, ID: id, Fields: fields}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *GRPCClient) GetRecord(ctx context.Context, key model.Key) (*model.Record, error) {
	var rec model.Record
	if err := c.invoke(ctx, api.MethodGetRecord, &api.GetRecordRequest{Key: key}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *GRPCClient) ListRecords(ctx context.Context, typ string, limit int) ([]*model.Record, error) {
	var resp api.ListResponse
	if err := c.invoke(ctx, api.MethodListRecords, &api.ListRequest{Type: typ, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (c *GRPCClient) UpdateFields(ctx context.Context, key model.Key, fields json.RawMessage, version int64) (*model.Record, error) {
	var rec model.Record
	req := &api.UpdateFieldsRequest{Key: key, Fields: fields, Version: version}
	if err := c.invoke(ctx, api.MethodUpdateFields, req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *GRPCClient) SoftDelete(ctx context.Context, keys ...model.Key) (model.Result, error) {
	return c.keys(ctx, api.MethodSoftDelete, keys)
}

func (c *GRPCClient) ResetSoftDelete(ctx context.Context, keys ...model.Key) (model.Result, error) {
	return c.keys(ctx, api.MethodResetSoftDelete, keys)
}

func (c *GRPCClient) HardDeleteIfSoftDeleted(ctx context.Context, keys ...model.Key) (model.Result, error) {
	return c.keys(ctx, api.MethodHardDeleteIfSoftDeleted, keys)
}

// keys runs one of the soft-delete operations. Their Results travel in-band.
func (c *GRPCClient) keys(ctx context.Context, method string, keys []model.Key) (model.Result, error) {
	var res model.Result
	if err := c.invoke(ctx, method, &api.KeysRequest{Keys: keys}, &res); err != nil {
		return model.Result{}, err
	}
	return res, nil
}

func (c *GRPCClient) ListSoftDeleted(ctx context.Context, typ string, limit int) ([]*model.Record, error) {
	var resp api.ListResponse
	if err := c.invoke(ctx, api.MethodListSoftDeleted, &api.ListRequest{Type: typ, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (c *GRPCClient) Relationships(ctx context.Context) ([]model.Relationship, error) {
	var resp api.RelationshipsResponse
	if err := c.invoke(ctx, api.MethodRelationships, &api.RelationshipsRequest{}, &resp); err != nil {
		return nil, err
	}
	return resp.Relationships, nil
}

func (c *GRPCClient) Health(ctx context.Context) (string, error) {
	var resp api.HealthResponse
	if err := c.invoke(ctx, api.MethodHealth, &api.HealthRequest{}, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (c *GRPCClient) Close() error {
	return c.conn.Close()
}

var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*GRPCClient)(nil)
)
