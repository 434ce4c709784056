package grpc

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-yield-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-yield-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-yield-ledger/pkg/logger"
)

type GrpcServer struct {
	engine *usecase.LedgerEngine
	log    *logger.Logger
}

func NewGrpcServer(engine *usecase.LedgerEngine, log *logger.Logger) *GrpcServer {
	if log == nil {
		log = logger.Discard()
	}
	return &GrpcServer{
		engine: engine,
		log:    log,
	}
}

// UnaryLogger 記錄每個請求的結果，非預期錯誤以 Error 等級輸出
func UnaryLogger(log *logger.Logger) grpc.UnaryServerInterceptor {
	entry := log.Component("grpc")
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		code := status.Code(err)
		fields := entry.WithField("method", info.FullMethod).WithField("code", code.String())
		switch code {
		case codes.OK:
			fields.Debug("rpc handled")
		case codes.Internal, codes.Unknown:
			fields.WithError(err).Error("rpc failed")
		default:
			fields.WithError(err).Info("rpc rejected")
		}
		return resp, err
	}
}

func (s *GrpcServer) GetBalance(ctx context.Context, req *GetBalanceRequest) (*BalanceResponse, error) {
	b, err := s.engine.Balance(ctx, req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.balanceResponse(ctx, b), nil
}

func (s *GrpcServer) AccrueYield(ctx context.Context, req *AccrueYieldRequest) (*AccrueYieldResponse, error) {
	b, err := s.engine.AccrueYield(ctx, req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AccrueYieldResponse{Balance: s.balanceResponse(ctx, b)}, nil
}

func (s *GrpcServer) CreateDeposit(ctx context.Context, req *CreateDepositRequest) (*OrderResponse, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	d, err := s.engine.CreateDeposit(ctx, req.AccountID, amount)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := toOrderResponse(d.Order, "")
	return &resp, nil
}

func (s *GrpcServer) UpdateDepositStatus(ctx context.Context, req *UpdateStatusRequest) (*UpdateStatusResponse, error) {
	id, next, err := parseStatusRequest(req)
	if err != nil {
		return nil, err
	}
	d, b, err := s.engine.UpdateDepositStatus(ctx, req.AccountID, id, next)
	if err != nil {
		return nil, toStatus(err)
	}
	return &UpdateStatusResponse{
		Order:   toOrderResponse(d.Order, ""),
		Balance: s.balanceResponse(ctx, b),
	}, nil
}

func (s *GrpcServer) CreateWithdrawal(ctx context.Context, req *CreateWithdrawalRequest) (*OrderResponse, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	w, err := s.engine.CreateWithdrawal(ctx, req.AccountID, amount, req.Address)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := toOrderResponse(w.Order, w.Address)
	return &resp, nil
}

func (s *GrpcServer) UpdateWithdrawalStatus(ctx context.Context, req *UpdateStatusRequest) (*UpdateStatusResponse, error) {
	id, next, err := parseStatusRequest(req)
	if err != nil {
		return nil, err
	}
	w, b, err := s.engine.UpdateWithdrawalStatus(ctx, req.AccountID, id, next)
	if err != nil {
		return nil, toStatus(err)
	}
	return &UpdateStatusResponse{
		Order:   toOrderResponse(w.Order, w.Address),
		Balance: s.balanceResponse(ctx, b),
	}, nil
}

func (s *GrpcServer) Credit(ctx context.Context, req *CreditRequest) (*BalanceResponse, error) {
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	b, err := s.engine.Credit(ctx, req.AccountID, amount, req.Reason)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.balanceResponse(ctx, b), nil
}

func (s *GrpcServer) ListSnapshots(ctx context.Context, req *ListSnapshotsRequest) (*ListSnapshotsResponse, error) {
	snaps, err := s.engine.Snapshots(ctx, req.AccountID, req.Since)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ListSnapshotsResponse{
		AccountID: req.AccountID,
		Snapshots: make([]SnapshotResponse, 0, len(snaps)),
	}
	for _, snap := range snaps {
		resp.Snapshots = append(resp.Snapshots, SnapshotResponse{
			ID:         snap.ID.String(),
			TotalValue: snap.TotalValue.String(),
			CapturedAt: snap.CapturedAt,
		})
	}
	return resp, nil
}

// balanceResponse 匯率查詢失敗時 quote_value 留空，不影響主要回應
func (s *GrpcServer) balanceResponse(ctx context.Context, b *domain.Balance) *BalanceResponse {
	if b == nil {
		return nil
	}
	price, err := s.engine.Price(ctx)
	if err != nil {
		s.log.WithError(err).WithField("account_id", b.AccountID).Warn("price lookup failed")
		resp := toBalanceResponse(b, decimal.Zero)
		resp.QuoteValue = ""
		return resp
	}
	return toBalanceResponse(b, price)
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "invalid amount %q", raw)
	}
	return amount, nil
}

func parseStatusRequest(req *UpdateStatusRequest) (uuid.UUID, domain.Status, error) {
	id, err := uuid.Parse(req.OrderID)
	if err != nil {
		return uuid.Nil, "", status.Error(codes.InvalidArgument, "invalid order_id: "+err.Error())
	}
	next, err := domain.ParseStatus(req.Status)
	if err != nil {
		return uuid.Nil, "", status.Error(codes.InvalidArgument, err.Error())
	}
	return id, next, nil
}

// toStatus 將 domain 錯誤轉為 gRPC status
func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrDepositNotFound),
		errors.Is(err, domain.ErrWithdrawalNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrAmountMustBePositive),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidPrice):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrInsufficientRewards),
		errors.Is(err, domain.ErrInsufficientPrincipal),
		errors.Is(err, domain.ErrInsufficientFunds):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

var _ LedgerService = (*GrpcServer)(nil)
