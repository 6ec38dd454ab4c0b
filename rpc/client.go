package rpc

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	"github.com/silenceper/pool"
	"go.uber.org/zap"

	"eproxy/internal/errs"
	"eproxy/rpc/message"
)

const (
	MetaOneway   = "one-way"
	MetaDeadline = "deadline"
)

var _ Proxy = (*Client)(nil)

// Client -> tcp conn client, keeps one connection pool per remote address
type Client struct {
	address     string
	mutex       sync.Mutex
	pools       map[string]pool.Pool
	initialCap  int
	maxIdle     int
	maxCap      int
	idleTimeout time.Duration
	dialTimeout time.Duration
	logger      *zap.Logger
}

func ClientWithPoolSize(initialCap, maxIdle, maxCap int) option.Option[Client] {
	return func(client *Client) {
		client.initialCap = initialCap
		client.maxIdle = maxIdle
		client.maxCap = maxCap
	}
}

func ClientWithIdleTimeout(timeout time.Duration) option.Option[Client] {
	return func(client *Client) {
		client.idleTimeout = timeout
	}
}

func ClientWithDialTimeout(timeout time.Duration) option.Option[Client] {
	return func(client *Client) {
		client.dialTimeout = timeout
	}
}

func ClientWithLogger(logger *zap.Logger) option.Option[Client] {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient -> create Client, address is used when the context does not pin one
func NewClient(address string, opts ...option.Option[Client]) *Client {
	client := &Client{
		address:     address,
		pools:       make(map[string]pool.Pool, 4),
		initialCap:  1,
		maxIdle:     20,
		maxCap:      30,
		idleTimeout: time.Minute,
		dialTimeout: 3 * time.Second,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Invoke -> invoke rpc service
func (c *Client) Invoke(ctx context.Context, req *message.Request) (*message.Response, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	address := c.address
	if addr, ok := AddressFrom(ctx); ok {
		address = addr
	}
	var (
		resp *message.Response
		err  error
	)
	ch := make(chan struct{})
	go func() {
		resp, err = c.doInvoke(ctx, address, req)
		close(ch)
	}()
	select {
	case <-ch:
		if err != nil && ctx.Err() != nil {
			// the read deadline and the context expired together
			return nil, ctx.Err()
		}
		return resp, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) doInvoke(ctx context.Context, address string, req *message.Request) (*message.Response, error) {
	p, err := c.pool(address)
	if err != nil {
		return nil, errs.ClientConnDeaded(err)
	}
	val, err := p.Get()
	if err != nil {
		return nil, errs.ClientConnDeaded(err)
	}
	conn := val.(net.Conn)
	encode := message.EncodeReq(req)
	l, err := conn.Write(encode)
	if err != nil {
		// the connection state is unknown, do not put it back
		_ = p.Close(conn)
		return nil, err
	}
	if l != len(encode) {
		_ = p.Close(conn)
		return nil, errs.ClientNotAllWritten
	}
	if req.Meta[MetaOneway] == "true" {
		_ = p.Put(conn)
		return nil, errs.OnewayError
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	data, err := ReadMsg(conn)
	if err != nil {
		_ = p.Close(conn)
		c.logger.Debug("rpc: read response failed",
			zap.String("address", address), zap.Error(err))
		return nil, errs.ReadRespFailError
	}
	_ = conn.SetReadDeadline(time.Time{})
	_ = p.Put(conn)
	return message.DecodeResp(data), nil
}

func (c *Client) pool(address string) (pool.Pool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if p, ok := c.pools[address]; ok {
		return p, nil
	}
	p, err := pool.NewChannelPool(&pool.Config{
		InitialCap: c.initialCap,
		MaxIdle:    c.maxIdle,
		MaxCap:     c.maxCap,
		Factory: func() (interface{}, error) {
			return net.DialTimeout("tcp", address, c.dialTimeout)
		},
		Close: func(i interface{}) error {
			return i.(net.Conn).Close()
		},
		IdleTimeout: c.idleTimeout,
	})
	if err != nil {
		return nil, err
	}
	c.pools[address] = p
	return p, nil
}

// Close releases every pooled connection.
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for address, p := range c.pools {
		p.Release()
		delete(c.pools, address)
	}
	return nil
}
