package grpc

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/domain"
)

// ServiceName gRPC 服務全名
const ServiceName = "ledger.v1.LedgerService"

// 金額一律以字串傳遞，避免浮點誤差

type GetBalanceRequest struct {
	AccountID int64 `json:"account_id"`
}

type AccrueYieldRequest struct {
	AccountID int64 `json:"account_id"`
}

// AccrueYieldResponse 帳戶不存在時 Balance 為空
type AccrueYieldResponse struct {
	Balance *BalanceResponse `json:"balance,omitempty"`
}

type BalanceResponse struct {
	AccountID   int64      `json:"account_id"`
	TotalValue  string     `json:"total_value"`
	ActiveStake string     `json:"active_stake"`
	Rewards     string     `json:"rewards"`
	QuoteValue  string     `json:"quote_value"`
	LastYieldAt *time.Time `json:"last_yield_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Version     int64      `json:"version"`
}

type CreateDepositRequest struct {
	AccountID int64  `json:"account_id"`
	Amount    string `json:"amount"`
}

type CreateWithdrawalRequest struct {
	AccountID int64  `json:"account_id"`
	Amount    string `json:"amount"`
	Address   string `json:"address"`
}

type OrderResponse struct {
	ID                  string    `json:"id"`
	AccountID           int64     `json:"account_id"`
	AmountRequested     string    `json:"amount_requested"`
	AmountInLedgerUnits string    `json:"amount_in_ledger_units"`
	Price               string    `json:"price"`
	Status              string    `json:"status"`
	Address             string    `json:"address,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type UpdateStatusRequest struct {
	AccountID int64  `json:"account_id"`
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
}

// UpdateStatusResponse Balance 在帳戶尚無餘額時為空
type UpdateStatusResponse struct {
	Order   OrderResponse    `json:"order"`
	Balance *BalanceResponse `json:"balance,omitempty"`
}

type CreditRequest struct {
	AccountID int64  `json:"account_id"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
}

type ListSnapshotsRequest struct {
	AccountID int64     `json:"account_id"`
	Since     time.Time `json:"since"`
}

type SnapshotResponse struct {
	ID         string    `json:"id"`
	TotalValue string    `json:"total_value"`
	CapturedAt time.Time `json:"captured_at"`
}

type ListSnapshotsResponse struct {
	AccountID int64              `json:"account_id"`
	Snapshots []SnapshotResponse `json:"snapshots"`
}

// LedgerService 服務端介面
type LedgerService interface {
	GetBalance(ctx context.Context, req *GetBalanceRequest) (*BalanceResponse, error)
	AccrueYield(ctx context.Context, req *AccrueYieldRequest) (*AccrueYieldResponse, error)
	CreateDeposit(ctx context.Context, req *CreateDepositRequest) (*OrderResponse, error)
	UpdateDepositStatus(ctx context.Context, req *UpdateStatusRequest) (*UpdateStatusResponse, error)
	CreateWithdrawal(ctx context.Context, req *CreateWithdrawalRequest) (*OrderResponse, error)
	UpdateWithdrawalStatus(ctx context.Context, req *UpdateStatusRequest) (*UpdateStatusResponse, error)
	Credit(ctx context.Context, req *CreditRequest) (*BalanceResponse, error)
	ListSnapshots(ctx context.Context, req *ListSnapshotsRequest) (*ListSnapshotsResponse, error)
}

// unary 產生單一請求的 MethodDesc
func unary[Req, Resp any](method string, call func(LedgerService, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LedgerService), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(method),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LedgerService), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerService)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetBalance", LedgerService.GetBalance),
		unary("AccrueYield", LedgerService.AccrueYield),
		unary("CreateDeposit", LedgerService.CreateDeposit),
		unary("UpdateDepositStatus", LedgerService.UpdateDepositStatus),
		unary("CreateWithdrawal", LedgerService.CreateWithdrawal),
		unary("UpdateWithdrawalStatus", LedgerService.UpdateWithdrawalStatus),
		unary("Credit", LedgerService.Credit),
		unary("ListSnapshots", LedgerService.ListSnapshots),
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterLedgerService 註冊服務
func RegisterLedgerService(s grpc.ServiceRegistrar, srv LedgerService) {
	s.RegisterService(&serviceDesc, srv)
}

func toBalanceResponse(b *domain.Balance, price decimal.Decimal) *BalanceResponse {
	if b == nil {
		return nil
	}
	return &BalanceResponse{
		AccountID:   b.AccountID,
		TotalValue:  b.TotalValue.String(),
		ActiveStake: b.ActiveStake.String(),
		Rewards:     b.Rewards.String(),
		QuoteValue:  b.QuoteValue(price).String(),
		LastYieldAt: b.LastYieldAt,
		UpdatedAt:   b.UpdatedAt,
		Version:     b.Version,
	}
}

func toOrderResponse(o domain.Order, address string) OrderResponse {
	return OrderResponse{
		ID:                  o.ID.String(),
		AccountID:           o.AccountID,
		AmountRequested:     o.AmountRequested.String(),
		AmountInLedgerUnits: o.AmountInLedgerUnits.String(),
		Price:               o.Price.String(),
		Status:              string(o.Status),
		Address:             address,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
	}
}
