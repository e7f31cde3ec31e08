package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/anvil-platform/semverx/internal/catalog"
	"github.com/anvil-platform/semverx/internal/events"
	"github.com/anvil-platform/semverx/internal/hotswap"
	"github.com/anvil-platform/semverx/internal/manifest"
	"github.com/anvil-platform/semverx/internal/resolver"
	"github.com/anvil-platform/semverx/internal/store"
	"github.com/anvil-platform/semverx/internal/transport"
)

func main() {
	var listenAddr string
	var manifestPath string
	var storePath string
	var signingKey string
	flag.StringVar(&listenAddr, "listen", ":50051", "address to listen on")
	flag.StringVar(&manifestPath, "manifest", "", "YAML manifest registered at startup when the store is empty")
	flag.StringVar(&storePath, "store", "", "component store directory; empty keeps state in memory")
	flag.StringVar(&signingKey, "signing-key", os.Getenv("SEMVERX_SIGNING_KEY"), "HMAC key used to sign swapped payloads")

	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()
	log := zap.New(zap.UseFlagOptions(&opts)).WithName("swapcore")

	cat := catalog.New()
	var serverOpts []transport.ServerOption
	if storePath != "" {
		st, err := store.Open(store.Config{Path: storePath, Log: log.WithName("store")})
		if err != nil {
			panic(fmt.Errorf("open store %s: %w", storePath, err))
		}
		defer st.Close()
		records, err := st.Load()
		if err != nil {
			panic(fmt.Errorf("load store: %w", err))
		}
		if err := cat.Import(records); err != nil {
			panic(fmt.Errorf("restore catalog: %w", err))
		}
		serverOpts = append(serverOpts, transport.WithPersister(st))
		if len(records) == 0 && manifestPath != "" {
			if err := loadManifest(cat, manifestPath); err != nil {
				panic(err)
			}
			if err := st.SaveAll(cat.Export()); err != nil {
				panic(fmt.Errorf("save store: %w", err))
			}
		}
	} else if manifestPath != "" {
		if err := loadManifest(cat, manifestPath); err != nil {
			panic(err)
		}
	}
	log.Info("catalog ready", "components", cat.Registry().Len(), "pending", cat.Pending())

	sink := events.LogSink{Log: log.WithName("events")}
	res, err := resolver.NewDefault(cat, resolver.WithSink(sink))
	if err != nil {
		panic(fmt.Errorf("resolver: %w", err))
	}
	engineOpts := []hotswap.Option{hotswap.WithSink(sink), hotswap.WithLogger(log.WithName("hotswap"))}
	if signingKey != "" {
		engineOpts = append(engineOpts, hotswap.WithSigner(hotswap.HMACSigner{Key: []byte(signingKey)}))
	}
	engine := hotswap.New(cat, engineOpts...)

	srv := transport.NewServer(cat, res, engine, append(serverOpts, transport.WithLogger(log.WithName("grpc")))...)

	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		panic(fmt.Errorf("listen %s: %w", listenAddr, err))
	}

	grpcServer := grpc.NewServer()
	srv.Register(grpcServer)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		srv.Shutdown()
		grpcServer.GracefulStop()
	}()

	log.Info("serving", "address", listenAddr)
	if err := grpcServer.Serve(lis); err != nil {
		panic(fmt.Errorf("grpc serve: %w", err))
	}
}

func loadManifest(cat *catalog.Catalog, path string) error {
	m, err := manifest.Load(path)
	if err != nil {
		return fmt.Errorf("load manifest %s: %w", path, err)
	}
	if err := cat.Import(m.Records()); err != nil {
		return fmt.Errorf("manifest %s: %w", path, err)
	}
	return nil
}
