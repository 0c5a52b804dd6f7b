// Package gateway is the gRPC service a device gateway exposes: device
// info, service status and synchronous job execution. Messages travel as
// google.protobuf.Struct.
package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "bitorder.gateway.v1.GatewayService"

const (
	methodGetDeviceInfo    = "GetDeviceInfo"
	methodGetServiceStatus = "GetServiceStatus"
	methodCallJob          = "CallJob"
)

func fullMethod(m string) string {
	return "/" + ServiceName + "/" + m
}

// Handler is implemented by the device side.
type Handler interface {
	GetDeviceInfo(context.Context) (*DeviceInfo, error)
	GetServiceStatus(context.Context) (*ServiceStatusResponse, error)
	CallJob(context.Context, *JobRequest) (*JobResponse, error)
}

type wireService interface {
	getDeviceInfo(context.Context, *structpb.Struct) (*structpb.Struct, error)
	getServiceStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	callJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type wireServer struct {
	h Handler
}

func (s *wireServer) getDeviceInfo(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	di, err := s.h.GetDeviceInfo(ctx)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return di.toStruct()
}

func (s *wireServer) getServiceStatus(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st, err := s.h.GetServiceStatus(ctx)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return st.toStruct()
}

func (s *wireServer) callJob(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := jobRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, err := s.h.CallJob(ctx, req)
	if err != nil {
		zap.L().Error(fmt.Sprintf("failed to call job(%s)/reason:%s", req.JobID, err))
		return nil, status.Error(codes.Internal, err.Error())
	}
	return res.toStruct()
}

func unaryHandler(method string, call func(wireService, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(wireService), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(method),
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(wireService), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*wireService)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(methodGetDeviceInfo, wireService.getDeviceInfo),
		unaryHandler(methodGetServiceStatus, wireService.getServiceStatus),
		unaryHandler(methodCallJob, wireService.callJob),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bitorder/gateway/v1/gateway.proto",
}

func Register(s grpc.ServiceRegistrar, h Handler) {
	s.RegisterService(&ServiceDesc, &wireServer{h: h})
}

type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) GetDeviceInfo(ctx context.Context) (*DeviceInfo, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(methodGetDeviceInfo), &structpb.Struct{}, out); err != nil {
		return nil, err
	}
	return deviceInfoFromStruct(out), nil
}

func (c *Client) GetServiceStatus(ctx context.Context) (*ServiceStatusResponse, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(methodGetServiceStatus), &structpb.Struct{}, out); err != nil {
		return nil, err
	}
	return serviceStatusFromStruct(out), nil
}

func (c *Client) CallJob(ctx context.Context, req *JobRequest) (*JobResponse, error) {
	in, err := req.toStruct()
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(methodCallJob), in, out); err != nil {
		return nil, err
	}
	return jobResponseFromStruct(out), nil
}
