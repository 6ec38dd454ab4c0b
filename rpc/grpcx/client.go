package grpcx

import (
	"context"
	"sync"

	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/resolver"

	"eproxy/internal/errs"
	"eproxy/rpc"
	_ "eproxy/rpc/grpcx/p2c"
	"eproxy/rpc/message"
)

// Method is the single gRPC method every framed call goes through.
const Method = "/eproxy.Invoker/Invoke"

var _ rpc.Proxy = (*Client)(nil)

// Client sends framed requests over gRPC. Calls go to the balanced connection
// of the target unless the context pins an address.
type Client struct {
	target      string
	policy      string
	builder     resolver.Builder
	dialOptions []grpc.DialOption
	logger      *zap.Logger

	mutex sync.Mutex
	conns map[string]*grpc.ClientConn
}

// ClientWithResolver resolves the target through the builder, the target then
// looks like "registry:///Order".
func ClientWithResolver(builder resolver.Builder) option.Option[Client] {
	return func(c *Client) {
		c.builder = builder
	}
}

// ClientWithPolicy sets the gRPC load balancing policy, round_robin by default.
// p2c.Name is registered as well.
func ClientWithPolicy(policy string) option.Option[Client] {
	return func(c *Client) {
		c.policy = policy
	}
}

func ClientWithDialOptions(opts ...grpc.DialOption) option.Option[Client] {
	return func(c *Client) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

func ClientWithLogger(logger *zap.Logger) option.Option[Client] {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(target string, opts ...option.Option[Client]) *Client {
	c := &Client{
		target: target,
		policy: "round_robin",
		logger: zap.NewNop(),
		conns:  make(map[string]*grpc.ClientConn, 4),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Invoke(ctx context.Context, req *message.Request) (*message.Response, error) {
	target := c.target
	if addr, ok := rpc.AddressFrom(ctx); ok {
		target = addr
	}
	cc, err := c.conn(target)
	if err != nil {
		return nil, errs.ClientConnDeaded(err)
	}
	resp := &message.Response{}
	err = cc.Invoke(ctx, Method, req, resp, grpc.ForceCodec(Codec{}))
	if err != nil {
		c.logger.Debug("grpcx: invoke failed", zap.String("target", target), zap.Error(err))
		return nil, err
	}
	if req.Meta[rpc.MetaOneway] == "true" {
		return nil, errs.OnewayError
	}
	return resp, nil
}

func (c *Client) conn(target string) (*grpc.ClientConn, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if cc, ok := c.conns[target]; ok {
		return cc, nil
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultServiceConfig(`{"loadBalancingPolicy":"` + c.policy + `"}`),
	}
	// pinned addresses are plain host:port, only the target is resolved
	if c.builder != nil && target == c.target {
		opts = append(opts, grpc.WithResolvers(c.builder))
	}
	opts = append(opts, c.dialOptions...)
	cc, err := grpc.Dial(target, opts...)
	if err != nil {
		return nil, err
	}
	c.conns[target] = cc
	return cc, nil
}

func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var err error
	for target, cc := range c.conns {
		if er := cc.Close(); er != nil {
			err = er
		}
		delete(c.conns, target)
	}
	return err
}

// Handler answers framed requests on a gRPC server, register it with
// grpc.UnknownServiceHandler next to grpc.ForceServerCodec(Codec{}).
func Handler(fn func(ctx context.Context, req *message.Request) (*message.Response, error)) grpc.StreamHandler {
	return func(srv any, stream grpc.ServerStream) error {
		req := &message.Request{}
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		resp, err := fn(stream.Context(), req)
		if err != nil {
			resp = &message.Response{MessageId: req.MessageId, Error: []byte(err.Error())}
		}
		return stream.SendMsg(resp)
	}
}
