package rpc

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"

	"eproxy/internal/errs"
	"eproxy/rpc/compress"
	"eproxy/rpc/compress/gzip"
	"eproxy/rpc/compress/lz4"
	"eproxy/rpc/compress/snappy"
	"eproxy/rpc/compress/zlib"
	"eproxy/rpc/message"
	"eproxy/rpc/serialize"
	"eproxy/rpc/serialize/json"
	"eproxy/rpc/serialize/proto"
)

// HandlerFunc serves one service id. params is the decoded request body and
// the returned value is encoded with the serializer of the request.
type HandlerFunc func(ctx context.Context, params map[string]any) (any, error)

var _ Proxy = (*Server)(nil)

// Server -> tcp conn server answering framed requests
type Server struct {
	listener    net.Listener
	mutex       sync.RWMutex
	handlers    map[string]HandlerFunc
	serializers map[byte]serialize.Serializer
	compressors map[byte]compress.Compressor
	logger      *zap.Logger
}

func ServerWithLogger(logger *zap.Logger) option.Option[Server] {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(opts ...option.Option[Server]) *Server {
	s := &Server{
		handlers:    make(map[string]HandlerFunc, 8),
		serializers: make(map[byte]serialize.Serializer, 2),
		compressors: make(map[byte]compress.Compressor, 5),
		logger:      zap.NewNop(),
	}
	for _, sl := range []serialize.Serializer{json.Serializer{}, proto.Serializer{}} {
		s.serializers[sl.Code()] = sl
	}
	for _, c := range []compress.Compressor{compress.DoNothingCompressor{}, gzip.Compressor{},
		lz4.Compressor{}, snappy.Compressor{}, zlib.Compressor{}} {
		s.compressors[c.Code()] = c
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Register(serviceID string, handler HandlerFunc) {
	s.mutex.Lock()
	s.handlers[serviceID] = handler
	s.mutex.Unlock()
}

// Start -> listen on address and serve until Close
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

func (s *Server) Serve(listener net.Listener) error {
	s.mutex.Lock()
	s.listener = listener
	s.mutex.Unlock()
	for {
		conn, err := listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		if err != nil {
			s.logger.Warn("rpc: accept connection failed", zap.Error(err))
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()
	for {
		bs, err := ReadMsg(conn)
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("rpc: read request failed", zap.Error(err))
			}
			return
		}
		req := message.DecodeReq(bs)
		ctx, cancel := requestContext(req)
		resp, _ := s.Invoke(ctx, req)
		cancel()
		if req.Meta[MetaOneway] == "true" {
			continue
		}
		resp.CalculateHeaderLength()
		resp.CalculateBodyLength()
		if _, err = conn.Write(message.EncodeResp(resp)); err != nil {
			s.logger.Warn("rpc: sending response failed", zap.Error(err))
			return
		}
	}
}

func requestContext(req *message.Request) (context.Context, context.CancelFunc) {
	deadline, err := strconv.ParseInt(req.Meta[MetaDeadline], 10, 64)
	if err != nil {
		return context.WithCancel(context.Background())
	}
	return context.WithDeadline(context.Background(), time.UnixMilli(deadline))
}

// Invoke runs the handler of the request in process. Failures are reported
// inside the response, the error is always nil.
func (s *Server) Invoke(ctx context.Context, req *message.Request) (*message.Response, error) {
	resp := &message.Response{
		MessageId:  req.MessageId,
		Version:    req.Version,
		Compresser: req.Compresser,
		Serializer: req.Serializer,
	}
	data, err := s.handle(ctx, req)
	if err != nil {
		resp.Error = []byte(err.Error())
		return resp, nil
	}
	resp.Data = data
	return resp, nil
}

func (s *Server) handle(ctx context.Context, req *message.Request) ([]byte, error) {
	s.mutex.RLock()
	handler, ok := s.handlers[req.ServiceID]
	s.mutex.RUnlock()
	if !ok {
		return nil, errs.InvalidServiceID
	}
	serializer, ok := s.serializers[req.Serializer]
	if !ok {
		return nil, errs.UnknownSerializer
	}
	compressor, ok := s.compressors[req.Compresser]
	if !ok {
		return nil, errs.UnknownCompressor
	}
	params := make(map[string]any)
	if len(req.Data) > 0 {
		data, err := compressor.UnCompress(req.Data)
		if err != nil {
			return nil, err
		}
		if err = serializer.Decode(data, &params); err != nil {
			return nil, err
		}
	}
	res, err := handler(ctx, params)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	data, err := serializer.Encode(res)
	if err != nil {
		return nil, err
	}
	return compressor.Compress(data)
}

func (s *Server) Close() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
