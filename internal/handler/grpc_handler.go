package handler

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/pesio-ai/be-hr-approvals/internal/domain"
	"github.com/pesio-ai/be-hr-approvals/internal/errors"
	"github.com/pesio-ai/be-hr-approvals/internal/middleware"
	"github.com/pesio-ai/be-hr-approvals/internal/service"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "approvals.v1.ApprovalLineService"

// ApprovalLineServer is the gRPC surface of the engine. Requests and
// responses are google.protobuf.Struct carrying the same JSON shapes as the
// REST API.
type ApprovalLineServer interface {
	ResolveLine(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Act(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Recall(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Summary(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ApprovalLineServiceDesc registers an ApprovalLineServer on a grpc.Server.
var ApprovalLineServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ApprovalLineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ResolveLine", Handler: unary("ResolveLine", ApprovalLineServer.ResolveLine)},
		{MethodName: "Submit", Handler: unary("Submit", ApprovalLineServer.Submit)},
		{MethodName: "Act", Handler: unary("Act", ApprovalLineServer.Act)},
		{MethodName: "Recall", Handler: unary("Recall", ApprovalLineServer.Recall)},
		{MethodName: "GetDocument", Handler: unary("GetDocument", ApprovalLineServer.GetDocument)},
		{MethodName: "Summary", Handler: unary("Summary", ApprovalLineServer.Summary)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "approvals/v1/approval_line.proto",
}

func unary(method string, call func(ApprovalLineServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ApprovalLineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(ApprovalLineServer), ctx, req.(*structpb.Struct))
		})
	}
}

// GRPCHandler implements ApprovalLineServer.
type GRPCHandler struct {
	resolver *service.LineResolver
	workflow *service.DocumentWorkflow
	logger   zerolog.Logger
}

// NewGRPCHandler creates a new gRPC handler
func NewGRPCHandler(resolver *service.LineResolver, workflow *service.DocumentWorkflow, logger zerolog.Logger) *GRPCHandler {
	return &GRPCHandler{
		resolver: resolver,
		workflow: workflow,
		logger:   logger.With().Str("handler", "grpc").Logger(),
	}
}

// Register attaches h to s.
func (h *GRPCHandler) Register(s *grpc.Server) {
	s.RegisterService(&ApprovalLineServiceDesc, h)
}

// ResolveLine previews the line for {docType, deptCode}.
func (h *GRPCHandler) ResolveLine(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		DocType  string `json:"docType"`
		DeptCode string `json:"deptCode"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}

	res, err := h.resolver.Preview(ctx, in.DocType, in.DeptCode)
	if err != nil {
		return nil, h.fail("ResolveLine", err)
	}
	return toStruct(res)
}

// Submit submits {documentId, expectedVersion, manualLine} as the caller.
func (h *GRPCHandler) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		DocumentID string `json:"documentId"`
		service.SubmitRequest
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}

	doc, err := h.workflow.Submit(ctx, in.DocumentID, middleware.ActorFrom(ctx), &in.SubmitRequest)
	if err != nil {
		return nil, h.fail("Submit", err)
	}
	return toStruct(doc)
}

// Act records {documentId, decision, expectedVersion, comment} as the caller.
func (h *GRPCHandler) Act(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		DocumentID string `json:"documentId"`
		service.ActRequest
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}

	doc, action, err := h.workflow.Act(ctx, in.DocumentID, middleware.ActorFrom(ctx), &in.ActRequest)
	if err != nil {
		return nil, h.fail("Act", err)
	}
	return toStruct(map[string]any{"document": doc, "action": action})
}

// Recall recalls {documentId} as the caller.
func (h *GRPCHandler) Recall(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		DocumentID string `json:"documentId"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}

	doc, err := h.workflow.Recall(ctx, in.DocumentID, middleware.ActorFrom(ctx))
	if err != nil {
		return nil, h.fail("Recall", err)
	}
	return toStruct(doc)
}

// GetDocument returns {documentId} with its action log.
func (h *GRPCHandler) GetDocument(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in struct {
		DocumentID string `json:"documentId"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, err
	}

	doc, err := h.workflow.Get(ctx, in.DocumentID)
	if err != nil {
		return nil, h.fail("GetDocument", err)
	}
	actions, err := h.workflow.History(ctx, in.DocumentID)
	if err != nil {
		return nil, h.fail("GetDocument", err)
	}
	if actions == nil {
		actions = []*domain.ApprovalAction{}
	}
	return toStruct(map[string]any{"document": doc, "actions": actions})
}

// Summary returns document counts by status.
func (h *GRPCHandler) Summary(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	s, err := h.workflow.Summary(ctx)
	if err != nil {
		return nil, h.fail("Summary", err)
	}
	return toStruct(s)
}

func (h *GRPCHandler) fail(method string, err error) error {
	ev := h.logger.Warn()
	if errors.CodeOf(err) == errors.ErrCodeInternal {
		ev = h.logger.Error()
	}
	ev.Err(err).Str("method", method).Msg("gRPC call failed")
	return mapErrorToGRPC(err)
}

func fromStruct(in *structpb.Struct, dst any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// mapErrorToGRPC converts application errors to gRPC status errors carrying
// an ErrorInfo detail with the machine-readable reason.
func mapErrorToGRPC(err error) error {
	if err == nil {
		return nil
	}

	reason := errors.ReasonOf(err)
	var code codes.Code
	switch errors.CodeOf(err) {
	case errors.ErrCodeNotFound:
		code = codes.NotFound
	case errors.ErrCodeInvalidInput:
		code = codes.InvalidArgument
	case errors.ErrCodeUnprocessable:
		if errors.Is(err, domain.ErrNoMatchingPolicy) {
			code = codes.FailedPrecondition
		} else {
			code = codes.InvalidArgument
		}
	case errors.ErrCodeConflict:
		if errors.Is(err, domain.ErrVersionConflict) {
			code = codes.Aborted
		} else {
			code = codes.FailedPrecondition
		}
	case errors.ErrCodeForbidden:
		code = codes.PermissionDenied
	case errors.ErrCodeUnauthorized:
		code = codes.Unauthenticated
	default:
		return status.Error(codes.Internal, "internal error")
	}

	st := status.New(code, err.Error())
	if reason != "" {
		if detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: reason, Domain: "approvals"}); derr == nil {
			st = detailed
		}
	}
	return st.Err()
}
