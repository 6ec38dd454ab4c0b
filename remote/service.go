package remote

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/gotomicro/ekit/bean/option"
	"go.uber.org/zap"

	"eproxy/internal/errs"
	"eproxy/rpc"
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

// Service turns a call into a framed request, sends it through the proxy and
// turns the response back into a result message.
type Service struct {
	proxy       rpc.Proxy
	serializer  serialize.Serializer
	compressor  compress.Compressor
	serializers map[byte]serialize.Serializer
	compressors map[byte]compress.Compressor
	version     uint8
	messageId   atomic.Uint32
	logger      *zap.Logger
}

// ServiceWithSerializer sets the serializer of outgoing requests.
func ServiceWithSerializer(s serialize.Serializer) option.Option[Service] {
	return func(service *Service) {
		service.serializer = s
		service.serializers[s.Code()] = s
	}
}

func ServiceWithCompressor(c compress.Compressor) option.Option[Service] {
	return func(service *Service) {
		service.compressor = c
		service.compressors[c.Code()] = c
	}
}

func ServiceWithVersion(version uint8) option.Option[Service] {
	return func(service *Service) {
		service.version = version
	}
}

func ServiceWithLogger(logger *zap.Logger) option.Option[Service] {
	return func(service *Service) {
		service.logger = logger
	}
}

func NewService(proxy rpc.Proxy, opts ...option.Option[Service]) *Service {
	s := &Service{
		proxy:      proxy,
		serializer: json.Serializer{},
		compressor: compress.DoNothingCompressor{},
		serializers: map[byte]serialize.Serializer{
			json.Serializer{}.Code():  json.Serializer{},
			proto.Serializer{}.Code(): proto.Serializer{},
		},
		compressors: map[byte]compress.Compressor{
			compress.DoNothingCompressor{}.Code(): compress.DoNothingCompressor{},
			gzip.Compressor{}.Code():              gzip.Compressor{},
			lz4.Compressor{}.Code():               lz4.Compressor{},
			snappy.Compressor{}.Code():            snappy.Compressor{},
			zlib.Compressor{}.Code():              zlib.Compressor{},
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Invoke performs one remote call. With decodeRaw the response body is decoded
// into a generic value, otherwise it is kept as a message.Payload for a typed
// decode later. A delivered one-way call answers an empty result.
func (s *Service) Invoke(ctx context.Context, parameters map[string]any,
	serviceID, serviceKey string, decodeRaw bool) (*message.ResultMessage, error) {
	req, err := s.newRequest(ctx, parameters, serviceID, serviceKey)
	if err != nil {
		return nil, err
	}
	resp, err := s.proxy.Invoke(ctx, req)
	if errors.Is(err, errs.OnewayError) {
		return &message.ResultMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(resp.Error) > 0 {
		return nil, errs.RemoteError(serviceID, string(resp.Error))
	}
	if len(resp.Data) == 0 {
		return &message.ResultMessage{}, nil
	}
	c, ok := s.compressors[resp.Compresser]
	if !ok {
		return nil, errs.UnknownCompressor
	}
	data, err := c.UnCompress(resp.Data)
	if err != nil {
		return nil, err
	}
	serializer, ok := s.serializers[resp.Serializer]
	if !ok {
		return nil, errs.UnknownSerializer
	}
	if !decodeRaw {
		return &message.ResultMessage{Result: message.Payload{Data: data, Serializer: serializer}}, nil
	}
	var val any
	if err = serializer.Decode(data, &val); err != nil {
		return nil, err
	}
	return &message.ResultMessage{Result: val}, nil
}

func (s *Service) newRequest(ctx context.Context, parameters map[string]any,
	serviceID, serviceKey string) (*message.Request, error) {
	if serviceID == "" {
		return nil, errs.InvalidServiceID
	}
	data, err := s.serializer.Encode(parameters)
	if err != nil {
		return nil, err
	}
	data, err = s.compressor.Compress(data)
	if err != nil {
		return nil, err
	}
	var meta map[string]string
	if extra := rpc.MetaFrom(ctx); len(extra) > 0 {
		meta = make(map[string]string, len(extra)+2)
		for k, v := range extra {
			meta[k] = v
		}
	}
	setMeta := func(k, v string) {
		if meta == nil {
			meta = make(map[string]string, 2)
		}
		meta[k] = v
	}
	if deadline, ok := ctx.Deadline(); ok {
		setMeta(rpc.MetaDeadline, strconv.FormatInt(deadline.UnixMilli(), 10))
	}
	if rpc.IsOneway(ctx) {
		setMeta(rpc.MetaOneway, "true")
	}
	req := &message.Request{
		MessageId:  s.messageId.Add(1),
		Version:    s.version,
		Compresser: s.compressor.Code(),
		Serializer: s.serializer.Code(),
		ServiceID:  serviceID,
		ServiceKey: serviceKey,
		Meta:       meta,
		Data:       data,
	}
	req.CalculateHeaderLength()
	req.CalculateBodyLength()
	s.logger.Debug("remote: request built",
		zap.String("service_id", serviceID),
		zap.Uint32("message_id", req.MessageId),
		zap.Int("body", len(data)))
	return req, nil
}
