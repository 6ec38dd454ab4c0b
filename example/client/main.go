package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/go-redis/redis/v9"
	"github.com/prometheus/client_golang/prometheus"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"eproxy"
	"eproxy/breaker"
	"eproxy/cluster"
	"eproxy/command"
	cmdetcd "eproxy/command/etcd"
	"eproxy/config"
	"eproxy/convert"
	"eproxy/interceptor"
	"eproxy/interceptor/cache"
	"eproxy/interceptor/ratelimit"
	"eproxy/observability/logging"
	promobs "eproxy/observability/metrics/prometheus"
	"eproxy/observability/opentelemetry"
	"eproxy/recovery"
	"eproxy/registry"
	regetcd "eproxy/registry/etcd"
	"eproxy/remote"
	"eproxy/rpc"
	"eproxy/rpc/grpcx"
)

// OrderService is filled by eproxy.InitServiceProxy.
type OrderService struct {
	Cancel func(ctx context.Context, req *CancelReq) error
}

func (s *OrderService) ServiceName() string {
	return "Order"
}

type CancelReq struct {
	ID int64 `json:"id"`
}

func main() {
	configPath := flag.String("config", "example/client/eproxy.yaml", "config file")
	serviceID := flag.String("service", "Order.Get", "service id to call")
	params := flag.String("params", `{"id":1}`, "call parameters as a JSON object")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	if err = run(cfg, logger, *serviceID, *params); err != nil {
		logger.Fatal("eproxy: call failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger, serviceID, rawParams string) error {
	var parameters map[string]any
	if err := json.Unmarshal([]byte(rawParams), &parameters); err != nil {
		return fmt.Errorf("parameters: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		commands command.Provider = command.NewStaticProvider(cfg.ServiceCommands()...)
		reg      registry.Registry
	)
	if len(cfg.Etcd.Endpoints) > 0 {
		etcdClient, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.Etcd.DialTimeout,
		})
		if err != nil {
			return err
		}
		defer func() {
			_ = etcdClient.Close()
		}()
		provider, err := cmdetcd.NewProvider(ctx, etcdClient,
			cmdetcd.ProviderWithPrefix(cfg.Etcd.CommandPrefix),
			cmdetcd.ProviderWithLogger(logger))
		if err != nil {
			return err
		}
		defer func() {
			_ = provider.Close()
		}()
		commands = provider
		r, err := regetcd.NewRegistry(etcdClient,
			regetcd.RegistryWithPrefix(cfg.Etcd.RegistryPrefix),
			regetcd.RegistryWithLogger(logger))
		if err != nil {
			return err
		}
		defer func() {
			_ = r.Close()
		}()
		reg = r
	}
	commands = command.NewCachedProvider(commands, cfg.Breaker.CommandTTL)

	proxy, closeProxy := transport(cfg, reg, logger)
	defer func() {
		_ = closeProxy()
	}()
	service := remote.NewService(proxy,
		remote.ServiceWithSerializer(cfg.Transport.SerializerCodec()),
		remote.ServiceWithCompressor(cfg.Transport.CompressorCodec()),
		remote.ServiceWithLogger(logger))
	invoker := breaker.NewRemoteInvoker(service, commands, breaker.InvokerWithLogger(logger))

	clusters := cluster.NewRegistry(cluster.Dependencies{
		Invoker:  invoker,
		Commands: commands,
		Registry: reg,
		Logger:   logger,
	})
	fallbacks := recovery.NewRegistry()
	fallbacks.Register("OrderFallback", recovery.StaticFallback{
		Value: map[string]any{"id": 0, "name": "unavailable"},
	})

	interceptors, shutdown, err := interceptorRegistry(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = shutdown(context.Background())
	}()

	d := eproxy.NewDispatcher(commands, invoker, recovery.NewSelector(fallbacks, clusters, logger),
		eproxy.DispatcherWithServiceKey(cfg.ServiceKey),
		eproxy.DispatcherWithInterceptors(interceptors),
		eproxy.DispatcherWithLogger(logger))

	res, err := d.CallInvoke(ctx, parameters, serviceID, convert.RawType)
	if err != nil {
		return err
	}
	out, err := json.Marshal(res)
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	orders := &OrderService{}
	if err = eproxy.InitServiceProxy(d, orders); err != nil {
		return err
	}
	return orders.Cancel(ctx, &CancelReq{ID: 1})
}

func transport(cfg *config.Config, reg registry.Registry, logger *zap.Logger) (rpc.Proxy, func() error) {
	if cfg.Transport.Kind == "grpc" {
		if reg != nil {
			client := grpcx.NewClient(grpcx.Scheme+":///"+cfg.Transport.Service,
				grpcx.ClientWithResolver(grpcx.NewResolverBuilder(reg, cfg.Transport.Timeout, logger)),
				grpcx.ClientWithPolicy(cfg.Transport.Policy),
				grpcx.ClientWithLogger(logger))
			return client, client.Close
		}
		client := grpcx.NewClient(cfg.Transport.Address, grpcx.ClientWithLogger(logger))
		return client, client.Close
	}
	client := rpc.NewClient(cfg.Transport.Address,
		rpc.ClientWithPoolSize(cfg.Transport.InitialCap, cfg.Transport.MaxIdle, cfg.Transport.MaxCap),
		rpc.ClientWithIdleTimeout(cfg.Transport.IdleTimeout),
		rpc.ClientWithDialTimeout(cfg.Transport.Timeout),
		rpc.ClientWithLogger(logger))
	return client, client.Close
}

// interceptorRegistry builds the cache slot and the generic interceptors.
// The limiter goes first, it must run before anything proceeds.
func interceptorRegistry(cfg *config.Config,
	logger *zap.Logger) (*interceptor.Registry, func(context.Context) error, error) {
	var (
		store       cache.Store = cache.NewMemoryStore()
		redisClient *redis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = cache.NewRedisStore(redisClient, cfg.Redis.Prefix)
	}
	interceptors := interceptor.NewRegistry(cache.NewInterceptor(store,
		cache.InterceptorWithExpiration(cfg.Redis.CacheTTL),
		cache.InterceptorWithLogger(logger)))

	if limiter, err := newLimiter(cfg.RateLimit, redisClient); err != nil {
		return nil, nil, err
	} else if limiter != nil {
		interceptors.Add(ratelimit.NewInterceptor(limiter,
			ratelimit.InterceptorWithServices(cfg.RateLimit.Services...),
			ratelimit.InterceptorWithLogger(logger)))
	}

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	interceptors.Add(
		logging.NewInterceptor(logger, zap.DebugLevel),
		opentelemetry.NewInterceptorBuilder(0, tp.Tracer("eproxy"), propagation.TraceContext{}).Build(),
		(&promobs.InterceptorBuilder{
			Namespace:  cfg.Metrics.Namespace,
			Subsystem:  cfg.Metrics.Subsystem,
			Name:       "invoke",
			Help:       "remote invocations made by the dispatcher",
			Registerer: prometheus.DefaultRegisterer,
		}).Build(),
	)
	return interceptors, func(ctx context.Context) error {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return tp.Shutdown(ctx)
	}, nil
}

func newLimiter(cfg config.RateLimitConfig, redisClient *redis.Client) (ratelimit.Limiter, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "fixed":
		return ratelimit.NewFixWindowLimiter(cfg.Interval, int64(cfg.Rate)), nil
	case "slide":
		return ratelimit.NewSlideWindowLimiter(cfg.Rate, cfg.Interval), nil
	case "token_bucket":
		return ratelimit.NewTokenBucketLimiter(cfg.Rate, cfg.Interval), nil
	}
	if redisClient == nil {
		return nil, fmt.Errorf("eproxy: rate limiter %s needs redis", cfg.Kind)
	}
	if cfg.Kind == "redis_fixed" {
		return ratelimit.NewRedisFixWindowLimiter(redisClient, "eproxy:limit", cfg.Rate, cfg.Interval), nil
	}
	return ratelimit.NewRedisSlideWindowLimiter(redisClient, "eproxy:limit", cfg.Rate, cfg.Interval), nil
}
