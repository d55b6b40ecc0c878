package storefrontv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const OrderServiceName = "storefront.v1.OrderService"

const (
	OrderService_PlaceOrders_FullMethodName       = "/storefront.v1.OrderService/PlaceOrders"
	OrderService_GetOrder_FullMethodName          = "/storefront.v1.OrderService/GetOrder"
	OrderService_ListOrders_FullMethodName        = "/storefront.v1.OrderService/ListOrders"
	OrderService_UpdateOrderStatus_FullMethodName = "/storefront.v1.OrderService/UpdateOrderStatus"
	OrderService_DeleteOrder_FullMethodName       = "/storefront.v1.OrderService/DeleteOrder"
)

// OrderServiceClient — клиент storefront.v1.OrderService.
type OrderServiceClient interface {
	PlaceOrders(ctx context.Context, in *PlaceOrdersRequest, opts ...grpc.CallOption) (*PlaceOrdersResponse, error)
	GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error)
	ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error)
	UpdateOrderStatus(ctx context.Context, in *UpdateOrderStatusRequest, opts ...grpc.CallOption) (*UpdateOrderStatusResponse, error)
	DeleteOrder(ctx context.Context, in *DeleteOrderRequest, opts ...grpc.CallOption) (*DeleteOrderResponse, error)
}

type orderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) OrderServiceClient {
	return &orderServiceClient{cc: cc}
}

func (c *orderServiceClient) PlaceOrders(ctx context.Context, in *PlaceOrdersRequest, opts ...grpc.CallOption) (*PlaceOrdersResponse, error) {
	return invoke[PlaceOrdersRequest, PlaceOrdersResponse](ctx, c.cc, OrderService_PlaceOrders_FullMethodName, in, opts)
}

func (c *orderServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	return invoke[GetOrderRequest, GetOrderResponse](ctx, c.cc, OrderService_GetOrder_FullMethodName, in, opts)
}

func (c *orderServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersRequest, ListOrdersResponse](ctx, c.cc, OrderService_ListOrders_FullMethodName, in, opts)
}

func (c *orderServiceClient) UpdateOrderStatus(ctx context.Context, in *UpdateOrderStatusRequest, opts ...grpc.CallOption) (*UpdateOrderStatusResponse, error) {
	return invoke[UpdateOrderStatusRequest, UpdateOrderStatusResponse](ctx, c.cc, OrderService_UpdateOrderStatus_FullMethodName, in, opts)
}

func (c *orderServiceClient) DeleteOrder(ctx context.Context, in *DeleteOrderRequest, opts ...grpc.CallOption) (*DeleteOrderResponse, error) {
	return invoke[DeleteOrderRequest, DeleteOrderResponse](ctx, c.cc, OrderService_DeleteOrder_FullMethodName, in, opts)
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	if in == nil {
		in = new(Req)
	}
	envelope, err := Encode(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, method, envelope, out, opts...); err != nil {
		return nil, err
	}
	resp := new(Resp)
	if err := Decode(out, resp); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// OrderServiceServer — серверная часть storefront.v1.OrderService.
// Реализации должны встраивать UnimplementedOrderServiceServer.
type OrderServiceServer interface {
	PlaceOrders(context.Context, *PlaceOrdersRequest) (*PlaceOrdersResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	UpdateOrderStatus(context.Context, *UpdateOrderStatusRequest) (*UpdateOrderStatusResponse, error)
	DeleteOrder(context.Context, *DeleteOrderRequest) (*DeleteOrderResponse, error)
	mustEmbedUnimplementedOrderServiceServer()
}

// UnimplementedOrderServiceServer возвращает codes.Unimplemented для всех методов.
type UnimplementedOrderServiceServer struct{}

func (UnimplementedOrderServiceServer) PlaceOrders(context.Context, *PlaceOrdersRequest) (*PlaceOrdersResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method PlaceOrders not implemented")
}
func (UnimplementedOrderServiceServer) GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetOrder not implemented")
}
func (UnimplementedOrderServiceServer) ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListOrders not implemented")
}
func (UnimplementedOrderServiceServer) UpdateOrderStatus(context.Context, *UpdateOrderStatusRequest) (*UpdateOrderStatusResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method UpdateOrderStatus not implemented")
}
func (UnimplementedOrderServiceServer) DeleteOrder(context.Context, *DeleteOrderRequest) (*DeleteOrderResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method DeleteOrder not implemented")
}
func (UnimplementedOrderServiceServer) mustEmbedUnimplementedOrderServiceServer() {}

// RegisterOrderServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderService_ServiceDesc, srv)
}

// unaryHandler распаковывает конверт запроса в типизированное сообщение и упаковывает ответ.
// Интерсепторы видят запрос и ответ в виде *structpb.Struct.
func unaryHandler[Req, Resp any](
	method string,
	call func(OrderServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}

		handler := func(ctx context.Context, req any) (any, error) {
			envelope, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Errorf(codes.Internal, "unexpected request type %T", req)
			}
			typed := new(Req)
			if err := Decode(envelope, typed); err != nil {
				return nil, status.Error(codes.InvalidArgument, err.Error())
			}
			resp, err := call(srv.(OrderServiceServer), ctx, typed)
			if err != nil {
				return nil, err
			}
			out, err := Encode(resp)
			if err != nil {
				return nil, status.Error(codes.Internal, err.Error())
			}
			return out, nil
		}

		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		return interceptor(ctx, in, info, handler)
	}
}

// OrderService_ServiceDesc — дескриптор сервиса для grpc.ServiceRegistrar.
var OrderService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: OrderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PlaceOrders",
			Handler: unaryHandler(OrderService_PlaceOrders_FullMethodName,
				func(s OrderServiceServer, ctx context.Context, in *PlaceOrdersRequest) (*PlaceOrdersResponse, error) {
					return s.PlaceOrders(ctx, in)
				}),
		},
		{
			MethodName: "GetOrder",
			Handler: unaryHandler(OrderService_GetOrder_FullMethodName,
				func(s OrderServiceServer, ctx context.Context, in *GetOrderRequest) (*GetOrderResponse, error) {
					return s.GetOrder(ctx, in)
				}),
		},
		{
			MethodName: "ListOrders",
			Handler: unaryHandler(OrderService_ListOrders_FullMethodName,
				func(s OrderServiceServer, ctx context.Context, in *ListOrdersRequest) (*ListOrdersResponse, error) {
					return s.ListOrders(ctx, in)
				}),
		},
		{
			MethodName: "UpdateOrderStatus",
			Handler: unaryHandler(OrderService_UpdateOrderStatus_FullMethodName,
				func(s OrderServiceServer, ctx context.Context, in *UpdateOrderStatusRequest) (*UpdateOrderStatusResponse, error) {
					return s.UpdateOrderStatus(ctx, in)
				}),
		},
		{
			MethodName: "DeleteOrder",
			Handler: unaryHandler(OrderService_DeleteOrder_FullMethodName,
				func(s OrderServiceServer, ctx context.Context, in *DeleteOrderRequest) (*DeleteOrderResponse, error) {
					return s.DeleteOrder(ctx, in)
				}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/v1/order_service.proto",
}
