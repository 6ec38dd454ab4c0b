package main

import (
	"context"
	"flag"
	"net"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"eproxy/registry"
	regetcd "eproxy/registry/etcd"
	"eproxy/rpc"
	"eproxy/rpc/grpcx"
)

func main() {
	address := flag.String("address", "127.0.0.1:8081", "listen address")
	kind := flag.String("transport", "tcp", "tcp or grpc")
	endpoints := flag.String("etcd", "", "etcd endpoint to register with, empty to skip")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	server := rpc.NewServer(rpc.ServerWithLogger(logger))
	server.Register("Order.Get", func(ctx context.Context, params map[string]any) (any, error) {
		return map[string]any{"id": params["id"], "name": "book", "address": *address}, nil
	})
	server.Register("Order.List", func(ctx context.Context, params map[string]any) (any, error) {
		return []any{map[string]any{"id": 1, "name": "book"}}, nil
	})
	server.Register("Order.Cancel", func(ctx context.Context, params map[string]any) (any, error) {
		logger.Info("order cancelled", zap.Any("id", params["id"]))
		return nil, nil
	})

	if *endpoints != "" {
		etcdClient, er := clientv3.New(clientv3.Config{
			Endpoints:   []string{*endpoints},
			DialTimeout: 5 * time.Second,
		})
		if er != nil {
			logger.Fatal("etcd", zap.Error(er))
		}
		r, er := regetcd.NewRegistry(etcdClient, regetcd.RegistryWithLogger(logger))
		if er != nil {
			logger.Fatal("registry", zap.Error(er))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		er = r.Register(ctx, registry.ServiceInstance{Name: "Order", Address: *address, Weight: 10})
		cancel()
		if er != nil {
			logger.Fatal("register", zap.Error(er))
		}
		defer func() {
			_ = r.Close()
		}()
	}

	if *kind == "grpc" {
		listener, er := net.Listen("tcp", *address)
		if er != nil {
			logger.Fatal("listen", zap.Error(er))
		}
		gs := grpc.NewServer(grpc.ForceServerCodec(grpcx.Codec{}),
			grpc.UnknownServiceHandler(grpcx.Handler(server.Invoke)))
		logger.Info("serving grpc", zap.String("address", *address))
		if er = gs.Serve(listener); er != nil {
			logger.Fatal("serve", zap.Error(er))
		}
		return
	}
	logger.Info("serving tcp", zap.String("address", *address))
	if err = server.Start(*address); err != nil {
		logger.Fatal("serve", zap.Error(err))
	}
}
