// Package grpc serves the NIRV query API over gRPC. Messages are
// google.protobuf.Struct values shaped like the HTTP API's JSON bodies.
package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "nirv.v1.QueryService"

const (
	queryMethod       = "/" + ServiceName + "/Query"
	listSourcesMethod = "/" + ServiceName + "/ListSources"
	getSchemaMethod   = "/" + ServiceName + "/GetSchema"
)

// QueryServiceServer is the server API for nirv.v1.QueryService.
type QueryServiceServer interface {
	Query(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSources(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSchema(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterQueryServiceServer registers srv on s.
func RegisterQueryServiceServer(s grpc.ServiceRegistrar, srv QueryServiceServer) {
	s.RegisterService(&QueryServiceDesc, srv)
}

func unaryHandler(method string, call func(QueryServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(QueryServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(QueryServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// QueryServiceDesc describes nirv.v1.QueryService.
var QueryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QueryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Query",
			Handler:    unaryHandler(queryMethod, QueryServiceServer.Query),
		},
		{
			MethodName: "ListSources",
			Handler:    unaryHandler(listSourcesMethod, QueryServiceServer.ListSources),
		},
		{
			MethodName: "GetSchema",
			Handler:    unaryHandler(getSchemaMethod, QueryServiceServer.GetSchema),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nirv/v1/query.proto",
}

// Client calls nirv.v1.QueryService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Query runs sql on the server.
func (c *Client) Query(ctx context.Context, sql string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]interface{}{"sql": sql})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, queryMethod, req, opts...)
}

// ListSources lists the registered object types.
func (c *Client) ListSources(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, listSourcesMethod, &structpb.Struct{}, opts...)
}

// GetSchema describes source, given as "type.identifier".
func (c *Client) GetSchema(ctx context.Context, source string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(map[string]interface{}{"source": source})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, getSchemaMethod, req, opts...)
}

func (c *Client) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
