package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "lfras.v1.Compliance"

// ComplianceServer is the handler set behind ServiceDesc.
type ComplianceServer interface {
	Ping(context.Context, *Empty) (*PingResponse, error)

	StartActivity(context.Context, *StartActivityRequest) (*Activity, error)
	GetActivity(context.Context, *ActivityRequest) (*Activity, error)
	CancelActivity(context.Context, *ActivityRequest) (*Activity, error)
	CompleteActivity(context.Context, *ActivityRequest) (*Activity, error)
	GetCoverage(context.Context, *ActivityRequest) (*CoverageResponse, error)
	GetArchiveURL(context.Context, *ActivityRequest) (*URLResponse, error)

	ListFiles(context.Context, *ActivityRequest) (*ListFilesResponse, error)
	RequestUpload(context.Context, *RequestUploadRequest) (*UploadTask, error)
	ConfirmUpload(context.Context, *ConfirmUploadRequest) (*File, error)
	DeleteFile(context.Context, *FileRequest) (*Empty, error)

	CreateRule(context.Context, *Rule) (*Rule, error)
	UpdateRule(context.Context, *Rule) (*Rule, error)
	DeleteRule(context.Context, *RuleRequest) (*Empty, error)
	ListRules(context.Context, *SupplierRequest) (*ListRulesResponse, error)
	ImportRules(context.Context, *ImportRulesRequest) (*ListRulesResponse, error)

	PreviewReminders(context.Context, *PreviewRequest) (*PreviewResponse, error)
}

// FullMethod returns the "/service/method" path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary[Req, Resp any](method string, call func(ComplianceServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				r := new(Req)
				if err := fromStruct(req.(*structpb.Struct), r); err != nil {
					return nil, status.Error(codes.InvalidArgument, err.Error())
				}
				resp, err := call(srv.(ComplianceServer), ctx, r)
				if err != nil {
					return nil, err
				}
				out, err := toStruct(resp)
				if err != nil {
					return nil, status.Error(codes.Internal, "internal error")
				}
				return out, nil
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the compliance API for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ComplianceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", ComplianceServer.Ping),
		unary("StartActivity", ComplianceServer.StartActivity),
		unary("GetActivity", ComplianceServer.GetActivity),
		unary("CancelActivity", ComplianceServer.CancelActivity),
		unary("CompleteActivity", ComplianceServer.CompleteActivity),
		unary("GetCoverage", ComplianceServer.GetCoverage),
		unary("GetArchiveURL", ComplianceServer.GetArchiveURL),
		unary("ListFiles", ComplianceServer.ListFiles),
		unary("RequestUpload", ComplianceServer.RequestUpload),
		unary("ConfirmUpload", ComplianceServer.ConfirmUpload),
		unary("DeleteFile", ComplianceServer.DeleteFile),
		unary("CreateRule", ComplianceServer.CreateRule),
		unary("UpdateRule", ComplianceServer.UpdateRule),
		unary("DeleteRule", ComplianceServer.DeleteRule),
		unary("ListRules", ComplianceServer.ListRules),
		unary("ImportRules", ComplianceServer.ImportRules),
		unary("PreviewReminders", ComplianceServer.PreviewReminders),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lfras/v1/compliance",
}
