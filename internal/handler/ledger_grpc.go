package handler

import (
	"context"
	"errors"
	"fmt"
	"math"

	"cdr.dev/slog/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"ecoleafdrive/internal/accounting"
	"ecoleafdrive/internal/auth"
	"ecoleafdrive/internal/domain"
)

// LedgerEventsServiceName gRPC сервис, через который другие сервисы
// сообщают о создании, изменении и удалении объектов
const LedgerEventsServiceName = "ecoleaf.ledger.v1.LedgerEvents"

type LedgerEventsServer interface {
	OnFileCreated(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OnFileDeleted(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OnObjectCreated(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OnObjectUpdated(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OnObjectDeleted(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// unaryHandler обработчик метода для grpc.ServiceDesc, запрос и ответ
// всегда structpb.Struct
func unaryHandler[S any](serviceName, method string, call func(S, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + serviceName + "/" + method,
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(S), ctx, req.(*structpb.Struct))
		})
	}
}

var LedgerEventsServiceDesc = grpc.ServiceDesc{
	ServiceName: LedgerEventsServiceName,
	HandlerType: (*LedgerEventsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OnFileCreated", Handler: unaryHandler(LedgerEventsServiceName, "OnFileCreated", LedgerEventsServer.OnFileCreated)},
		{MethodName: "OnFileDeleted", Handler: unaryHandler(LedgerEventsServiceName, "OnFileDeleted", LedgerEventsServer.OnFileDeleted)},
		{MethodName: "OnObjectCreated", Handler: unaryHandler(LedgerEventsServiceName, "OnObjectCreated", LedgerEventsServer.OnObjectCreated)},
		{MethodName: "OnObjectUpdated", Handler: unaryHandler(LedgerEventsServiceName, "OnObjectUpdated", LedgerEventsServer.OnObjectUpdated)},
		{MethodName: "OnObjectDeleted", Handler: unaryHandler(LedgerEventsServiceName, "OnObjectDeleted", LedgerEventsServer.OnObjectDeleted)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ecoleaf/ledger/v1/ledger_events.proto",
}

func RegisterLedgerEventsServer(s grpc.ServiceRegistrar, srv LedgerEventsServer) {
	s.RegisterService(&LedgerEventsServiceDesc, srv)
}

// LedgerHandler принимает события леджера по gRPC. Владелец берется из
// запроса, поэтому вызывать методы могут только служебные клиенты.
type LedgerHandler struct {
	ledger *accounting.Service
	logger slog.Logger
}

var _ LedgerEventsServer = (*LedgerHandler)(nil)

func NewLedgerHandler(ledger *accounting.Service, logger slog.Logger) *LedgerHandler {
	return &LedgerHandler{
		ledger: ledger,
		logger: logger.Named("grpc.ledger"),
	}
}

func (h *LedgerHandler) OnFileCreated(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := auth.RequireService(ctx); err != nil {
		return nil, err
	}
	owner, err := requiredString(req, "owner_id")
	if err != nil {
		return nil, err
	}
	fileID, err := requiredString(req, "file_id")
	if err != nil {
		return nil, err
	}
	size, err := requiredSize(req)
	if err != nil {
		return nil, err
	}
	category, err := domain.ParseCategory(stringField(req, "category"))
	if err != nil {
		return nil, statusError(ctx, h.logger, err)
	}

	entryID, err := h.ledger.OnFileCreated(ctx, owner, fileID, size, category)
	if err != nil {
		return nil, statusError(ctx, h.logger, err)
	}
	return entryResponse(entryID)
}

func (h *LedgerHandler) OnFileDeleted(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := auth.RequireService(ctx); err != nil {
		return nil, err
	}
	owner, err := requiredString(req, "owner_id")
	if err != nil {
		return nil, err
	}
	fileID, err := requiredString(req, "file_id")
	if err != nil {
		return nil, err
	}

	if err := h.ledger.OnFileDeleted(ctx, owner, fileID); err != nil {
		return nil, statusError(ctx, h.logger, err)
	}
	return &structpb.Struct{}, nil
}

func (h *LedgerHandler) OnObjectCreated(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := auth.RequireService(ctx); err != nil {
		return nil, err
	}
	owner, err := requiredString(req, "owner_id")
	if err != nil {
		return nil, err
	}
	objectID, err := requiredString(req, "object_id")
	if err != nil {
		return nil, err
	}
	kind, err := domain.ParseObjectKind(stringField(req, "kind"))
	if err != nil {
		return nil, statusError(ctx, h.logger, err)
	}
	size, err := requiredSize(req)
	if err != nil {
		return nil, err
	}

	entryID, err := h.ledger.OnObjectCreated(ctx, owner, objectID, kind, size)
	if err != nil {
		return nil, statusError(ctx, h.logger, err)
	}
	return entryResponse(entryID)
}

func (h *LedgerHandler) OnObjectUpdated(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := auth.RequireService(ctx); err != nil {
		return nil, err
	}
	owner, err := requiredString(req, "owner_id")
	if err != nil {
		return nil, err
	}
	objectID, err := requiredString(req, "object_id")
	if err != nil {
		return nil, err
	}
	size, err := requiredSize(req)
	if err != nil {
		return nil, err
	}

	if err := h.ledger.OnObjectUpdated(ctx, owner, objectID, size); err != nil {
		return nil, statusError(ctx, h.logger, err)
	}
	return &structpb.Struct{}, nil
}

func (h *LedgerHandler) OnObjectDeleted(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := auth.RequireService(ctx); err != nil {
		return nil, err
	}
	owner, err := requiredString(req, "owner_id")
	if err != nil {
		return nil, err
	}
	objectID, err := requiredString(req, "object_id")
	if err != nil {
		return nil, err
	}

	if err := h.ledger.OnObjectDeleted(ctx, owner, objectID); err != nil {
		return nil, statusError(ctx, h.logger, err)
	}
	return &structpb.Struct{}, nil
}

// statusError переводит ошибки домена в коды gRPC
func statusError(ctx context.Context, logger slog.Logger, err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, domain.ErrQuotaExceeded):
		code = codes.ResourceExhausted
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrEntryExists):
		code = codes.AlreadyExists
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidSize),
		errors.Is(err, domain.ErrInvalidCategory),
		errors.Is(err, domain.ErrInvalidKind):
		code = codes.InvalidArgument
	default:
		logger.Error(ctx, "ledger call failed", slog.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

func entryResponse(entryID string) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(map[string]interface{}{"entry_id": entryID})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

func stringField(req *structpb.Struct, name string) string {
	return req.GetFields()[name].GetStringValue()
}

func requiredString(req *structpb.Struct, name string) (string, error) {
	v := stringField(req, name)
	if v == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	return v, nil
}

// requiredSize size_bytes приходит как число JSON, допускаются только
// неотрицательные целые
func requiredSize(req *structpb.Struct) (int64, error) {
	field, ok := req.GetFields()["size_bytes"]
	if !ok {
		return 0, status.Error(codes.InvalidArgument, "size_bytes is required")
	}
	if _, isNumber := field.GetKind().(*structpb.Value_NumberValue); !isNumber {
		return 0, status.Error(codes.InvalidArgument, "size_bytes must be a number")
	}
	v := field.GetNumberValue()
	if v < 0 || v != math.Trunc(v) || v > float64(1<<53) {
		return 0, status.Error(codes.InvalidArgument, fmt.Sprintf("size_bytes must be a non-negative integer, got %v", v))
	}
	return int64(v), nil
}

// LedgerEventsClient клиент для сервисов, сообщающих о своих объектах
type LedgerEventsClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerEventsClient(cc grpc.ClientConnInterface) *LedgerEventsClient {
	return &LedgerEventsClient{cc: cc}
}

func (c *LedgerEventsClient) Call(ctx context.Context, method string, req map[string]interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke(ctx, c.cc, LedgerEventsServiceName, method, req, opts...)
}

func invoke(ctx context.Context, cc grpc.ClientConnInterface, serviceName, method string, req map[string]interface{}, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
