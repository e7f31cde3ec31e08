package transport

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls SwapService over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Resolve(ctx context.Context, req *ResolveRequest, opts ...grpc.CallOption) (*ResolveResponse, error) {
	out := new(ResolveResponse)
	if err := c.invoke(ctx, "Resolve", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Swap(ctx context.Context, req *SwapRequest, opts ...grpc.CallOption) (*SwapResponse, error) {
	out := new(SwapResponse)
	if err := c.invoke(ctx, "Swap", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, req *GetRequest, opts ...grpc.CallOption) (*GetResponse, error) {
	out := new(GetResponse)
	if err := c.invoke(ctx, "Get", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CanSwap(ctx context.Context, req *CanSwapRequest, opts ...grpc.CallOption) (*CanSwapResponse, error) {
	out := new(CanSwapResponse)
	if err := c.invoke(ctx, "CanSwap", req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}
