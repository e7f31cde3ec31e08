package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/anvil-platform/semverx/internal/registry"
	"github.com/anvil-platform/semverx/internal/transport"
)

func main() {
	var target string
	var name string
	var version string
	var payloadFile string
	var swap bool
	flag.StringVar(&target, "target", "127.0.0.1:50051", "gRPC server address")
	flag.StringVar(&name, "component", "", "component name")
	flag.StringVar(&version, "version", "", "version to resolve or swap to; empty resolves the live version")
	flag.StringVar(&payloadFile, "payload", "", "file holding the candidate payload (with -swap)")
	flag.BoolVar(&swap, "swap", false, "swap the component instead of resolving it")
	flag.Parse()

	os.Exit(run(target, name, version, payloadFile, swap))
}

// run returns the process exit code: 1 for transport errors, 2 for an error
// result from the service.
func run(target, name, version, payloadFile string, swap bool) int {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Printf("Dial %s: %v\n", target, err)
		return 1
	}
	defer conn.Close()

	health, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: transport.ServiceName})
	if err != nil {
		fmt.Printf("Health error: %v\n", err)
		return 1
	}
	fmt.Printf("Health: %s\n", health.GetStatus())
	if name == "" {
		return 0
	}

	c := transport.NewClient(conn)

	if !swap {
		resp, err := c.Resolve(ctx, &transport.ResolveRequest{Name: name, Version: version})
		if err != nil {
			fmt.Printf("Resolve error: %v\n", err)
			return 1
		}
		if resp.Error != nil {
			fmt.Printf("Resolve error result: code=%s message=%q\n", resp.Error.Code, resp.Error.Message)
			return 2
		}
		for i, id := range resp.Order {
			fmt.Printf("%d. %s\n", i+1, id)
		}
		for _, u := range resp.UnresolvedOptional {
			fmt.Printf("skipped optional: %s\n", u)
		}
		return 0
	}

	var payload []byte
	if payloadFile != "" {
		if payload, err = os.ReadFile(payloadFile); err != nil {
			fmt.Printf("Read payload: %v\n", err)
			return 1
		}
	}
	resp, err := c.Swap(ctx, &transport.SwapRequest{
		Name:     name,
		Version:  version,
		Payload:  payload,
		Checksum: registry.Checksum(payload).String(),
	})
	if err != nil {
		fmt.Printf("Swap error: %v\n", err)
		return 1
	}
	fmt.Printf("Swap %s: phase=%s history=%v\n", resp.TransactionID, resp.Phase, resp.History)
	if resp.Error != nil {
		fmt.Printf("Swap error result: code=%s message=%q\n", resp.Error.Code, resp.Error.Message)
		return 2
	}
	return 0
}
