package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"cdr.dev/slog/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"ecoleafdrive/internal/auth"
	"ecoleafdrive/internal/domain"
	"ecoleafdrive/internal/service"
)

// LedgerAdminServiceName административные операции над учетом места.
// Выполняются в работающем сервере, чтобы изменения сразу видели отчеты
// и допуск по квоте.
const LedgerAdminServiceName = "ecoleaf.ledger.v1.LedgerAdmin"

type LedgerAdminServer interface {
	Reconcile(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var LedgerAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: LedgerAdminServiceName,
	HandlerType: (*LedgerAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Reconcile", Handler: unaryHandler(LedgerAdminServiceName, "Reconcile", LedgerAdminServer.Reconcile)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ecoleaf/ledger/v1/ledger_admin.proto",
}

func RegisterLedgerAdminServer(s grpc.ServiceRegistrar, srv LedgerAdminServer) {
	s.RegisterService(&LedgerAdminServiceDesc, srv)
}

type AdminHandler struct {
	quotaService *service.StorageQuotaService
	logger       slog.Logger
}

var _ LedgerAdminServer = (*AdminHandler)(nil)

func NewAdminHandler(quotaService *service.StorageQuotaService, logger slog.Logger) *AdminHandler {
	return &AdminHandler{
		quotaService: quotaService,
		logger:       logger.Named("grpc.admin"),
	}
}

// Reconcile сверяет агрегаты пользователя с леджером, с fix исправляет их
func (h *AdminHandler) Reconcile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := auth.RequireService(ctx); err != nil {
		return nil, err
	}
	owner, err := requiredString(req, "owner_id")
	if err != nil {
		return nil, err
	}
	fix := req.GetFields()["fix"].GetBoolValue()

	report, err := h.quotaService.Reconcile(ctx, owner, fix)
	if err != nil {
		return nil, statusError(ctx, h.logger, err)
	}

	h.logger.Info(ctx, "reconcile finished",
		slog.F("owner_id", owner),
		slog.F("drift", report.Drift),
		slog.F("fixed", report.Fixed),
	)

	data, err := json.Marshal(report)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// LedgerAdminClient клиент административных операций, используется CLI
type LedgerAdminClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerAdminClient(cc grpc.ClientConnInterface) *LedgerAdminClient {
	return &LedgerAdminClient{cc: cc}
}

func (c *LedgerAdminClient) Reconcile(ctx context.Context, ownerID string, fix bool, opts ...grpc.CallOption) (*domain.ReconcileReport, error) {
	out, err := invoke(ctx, c.cc, LedgerAdminServiceName, "Reconcile", map[string]interface{}{
		"owner_id": ownerID,
		"fix":      fix,
	}, opts...)
	if err != nil {
		return nil, err
	}

	data, err := out.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode reconcile report: %w", err)
	}
	var report domain.ReconcileReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode reconcile report: %w", err)
	}
	return &report, nil
}
