package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const BookingsServiceName = "roombooker.v1.BookingsService"

// BookingsServiceServer exchanges google.protobuf.Struct messages that carry
// the booking JSON documents.
type BookingsServiceServer interface {
	SaveBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	DeleteBooking(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListOverlaps(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	CalculateOverlaps(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetUpdates(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(srv BookingsServiceServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

var BookingsServiceDesc = grpc.ServiceDesc{
	ServiceName: BookingsServiceName,
	HandlerType: (*BookingsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SaveBooking", Handler: unaryHandler("SaveBooking", BookingsServiceServer.SaveBooking)},
		{MethodName: "DeleteBooking", Handler: unaryHandler("DeleteBooking", BookingsServiceServer.DeleteBooking)},
		{MethodName: "ListOverlaps", Handler: unaryHandler("ListOverlaps", BookingsServiceServer.ListOverlaps)},
		{MethodName: "CalculateOverlaps", Handler: unaryHandler("CalculateOverlaps", BookingsServiceServer.CalculateOverlaps)},
		{MethodName: "GetUpdates", Handler: unaryHandler("GetUpdates", BookingsServiceServer.GetUpdates)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "roombooker/v1/bookings.proto",
}

func RegisterBookingsServiceServer(s grpc.ServiceRegistrar, srv BookingsServiceServer) {
	s.RegisterService(&BookingsServiceDesc, srv)
}

// FullMethod returns the invocation path of a BookingsService method.
func FullMethod(method string) string {
	return "/" + BookingsServiceName + "/" + method
}

func unaryHandler(method string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	fullMethod := FullMethod(method)
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BookingsServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BookingsServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// BookingsClient calls BookingsService over an existing connection.
type BookingsClient struct {
	cc grpc.ClientConnInterface
}

func NewBookingsClient(cc grpc.ClientConnInterface) *BookingsClient {
	return &BookingsClient{cc: cc}
}

func (c *BookingsClient) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
