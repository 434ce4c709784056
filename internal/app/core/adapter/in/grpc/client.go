package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client LedgerService 的客戶端，搭配 pkg/grpc 連線池使用
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.conn.Invoke(ctx, fullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetBalance(ctx context.Context, req *GetBalanceRequest, opts ...grpc.CallOption) (*BalanceResponse, error) {
	return invoke[BalanceResponse](ctx, c, "GetBalance", req, opts...)
}

func (c *Client) AccrueYield(ctx context.Context, req *AccrueYieldRequest, opts ...grpc.CallOption) (*AccrueYieldResponse, error) {
	return invoke[AccrueYieldResponse](ctx, c, "AccrueYield", req, opts...)
}

func (c *Client) CreateDeposit(ctx context.Context, req *CreateDepositRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "CreateDeposit", req, opts...)
}

func (c *Client) UpdateDepositStatus(ctx context.Context, req *UpdateStatusRequest, opts ...grpc.CallOption) (*UpdateStatusResponse, error) {
	return invoke[UpdateStatusResponse](ctx, c, "UpdateDepositStatus", req, opts...)
}

func (c *Client) CreateWithdrawal(ctx context.Context, req *CreateWithdrawalRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	return invoke[OrderResponse](ctx, c, "CreateWithdrawal", req, opts...)
}

func (c *Client) UpdateWithdrawalStatus(ctx context.Context, req *UpdateStatusRequest, opts ...grpc.CallOption) (*UpdateStatusResponse, error) {
	return invoke[UpdateStatusResponse](ctx, c, "UpdateWithdrawalStatus", req, opts...)
}

func (c *Client) Credit(ctx context.Context, req *CreditRequest, opts ...grpc.CallOption) (*BalanceResponse, error) {
	return invoke[BalanceResponse](ctx, c, "Credit", req, opts...)
}

func (c *Client) ListSnapshots(ctx context.Context, req *ListSnapshotsRequest, opts ...grpc.CallOption) (*ListSnapshotsResponse, error) {
	return invoke[ListSnapshotsResponse](ctx, c, "ListSnapshots", req, opts...)
}
