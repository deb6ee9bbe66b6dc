package api

import (
	"context"

	"google.golang.org/grpc"

	"github.com/alfredjeanlab/tombstone/internal/model"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "tombstone.v1.Tombstone"

// Method names on ServiceName.
const (
	MethodCreateRecord            = "CreateRecord"
	MethodGetRecord               = "GetRecord"
	MethodListRecords             = "ListRecords"
	MethodUpdateFields            = "UpdateFields"
	MethodSoftDelete              = "SoftDelete"
	MethodResetSoftDelete         = "ResetSoftDelete"
	MethodHardDeleteIfSoftDeleted = "HardDeleteIfSoftDeleted"
	MethodListSoftDeleted         = "ListSoftDeleted"
	MethodRelationships           = "Relationships"
	MethodHealth                  = "Health"
)

// FullMethod returns the "/service/method" path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// TombstoneServer is the server API for the Tombstone service.
type TombstoneServer interface {
	CreateRecord(context.Context, *CreateRecordRequest) (*model.Record, error)
	GetRecord(context.Context, *GetRecordRequest) (*model.Record, error)
	ListRecords(context.Context, *ListRequest) (*ListResponse, error)
	UpdateFields(context.Context, *UpdateFieldsRequest) (*model.Record, error)
	SoftDelete(context.Context, *KeysRequest) (*model.Result, error)
	ResetSoftDelete(context.Context, *KeysRequest) (*model.Result, error)
	HardDeleteIfSoftDeleted(context.Context, *KeysRequest) (*model.Result, error)
	ListSoftDeleted(context.Context, *ListRequest) (*ListResponse, error)
	Relationships(context.Context, *RelationshipsRequest) (*RelationshipsResponse, error)
	Health(context.Context, *HealthRequest) (*HealthResponse, error)
}

// ServiceDesc describes the Tombstone service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TombstoneServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodCreateRecord, TombstoneServer.CreateRecord),
		unary(MethodGetRecord, TombstoneServer.GetRecord),
		unary(MethodListRecords, TombstoneServer.ListRecords),
		unary(MethodUpdateFields, TombstoneServer.UpdateFields),
		unary(MethodSoftDelete, TombstoneServer.SoftDelete),
		unary(MethodResetSoftDelete, TombstoneServer.ResetSoftDelete),
		unary(MethodHardDeleteIfSoftDeleted, TombstoneServer.HardDeleteIfSoftDeleted),
		unary(MethodListSoftDeleted, TombstoneServer.ListSoftDeleted),
		unary(MethodRelationships, TombstoneServer.Relationships),
		unary(MethodHealth, TombstoneServer.Health),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tombstone/v1",
}

// RegisterTombstoneServer registers srv on s.
func RegisterTombstoneServer(s grpc.ServiceRegistrar, srv TombstoneServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary adapts a TombstoneServer method to a grpc.MethodDesc, running it
// through the server's interceptor chain.
func unary[Req, Resp any](method string, call func(TombstoneServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TombstoneServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(TombstoneServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Invoke calls method on conn with JSON-encoded messages.
func Invoke(ctx context.Context, conn grpc.ClientConnInterface, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return conn.Invoke(ctx, FullMethod(method), in, out, opts...)
}
