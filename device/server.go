package device

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/oqtopus-team/bitorder/core"
	"github.com/oqtopus-team/bitorder/gateway"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const (
	HTTPServerName = "device_http"
	GRPCServerName = "device_grpc"
)

// HTTPServer runs the remote device API in a run group.
type HTTPServer struct {
	Address string `toml:"address"`

	device *Device
	srv    *http.Server
}

func NewHTTPServer(d *Device) *HTTPServer {
	return &HTTPServer{Address: "localhost:8080", device: d}
}

func (s *HTTPServer) GetEmptyParams() interface{} {
	return s
}

func (s *HTTPServer) SetParams(p interface{}) error {
	if _, ok := p.(*HTTPServer); !ok {
		return fmt.Errorf("unexpected params for %s: %T", HTTPServerName, p)
	}
	return nil
}

func (s *HTTPServer) Setup() error {
	if s.device == nil {
		return fmt.Errorf("%s has no device", HTTPServerName)
	}
	s.srv = &http.Server{
		Addr:              s.Address,
		Handler:           s.device.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func (s *HTTPServer) Serve() error {
	zap.L().Info(fmt.Sprintf("serving the device API on http://%s/api", s.Address))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		zap.L().Error(fmt.Sprintf("failed to shut down %s/reason:%s", HTTPServerName, err))
	}
}

// GRPCServer runs the gateway service of the device in a run group.
type GRPCServer struct {
	Address string `toml:"address"`

	device *Device
	srv    *grpc.Server
}

func NewGRPCServer(d *Device) *GRPCServer {
	return &GRPCServer{Address: "localhost:50051", device: d}
}

func (s *GRPCServer) GetEmptyParams() interface{} {
	return s
}

func (s *GRPCServer) SetParams(p interface{}) error {
	if _, ok := p.(*GRPCServer); !ok {
		return fmt.Errorf("unexpected params for %s: %T", GRPCServerName, p)
	}
	return nil
}

func (s *GRPCServer) Setup() error {
	if s.device == nil {
		return fmt.Errorf("%s has no device", GRPCServerName)
	}
	s.srv = grpc.NewServer()
	gateway.Register(s.srv, s.device.GatewayHandler())
	return nil
}

func (s *GRPCServer) Serve() error {
	lis, err := net.Listen("tcp", s.Address)
	if err != nil {
		return err
	}
	return s.ServeListener(lis)
}

// ServeListener is Serve on an existing listener.
func (s *GRPCServer) ServeListener(lis net.Listener) error {
	zap.L().Info(fmt.Sprintf("serving the gateway service on %s", lis.Addr()))
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *GRPCServer) Shutdown() {
	s.srv.GracefulStop()
}

// ImplMap lists the API servers of the device for the run group.
func (d *Device) ImplMap() core.APIServerImplMap {
	return core.APIServerImplMap{
		HTTPServerName: NewHTTPServer(d),
		GRPCServerName: NewGRPCServer(d),
	}
}
