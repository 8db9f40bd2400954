package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/server/services"
	"github.com/dmitrijs2005/lfras/internal/timex"
)

// toStatus maps domain errors onto gRPC codes. Anything unrecognised is
// logged and reported as Internal without details.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	var missing *common.MissingRequiredError

	switch {
	case errors.Is(err, common.ErrRuleInvalid),
		errors.Is(err, common.ErrRuleImportFormat),
		errors.Is(err, common.ErrInvalidFileName):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.As(err, &missing),
		errors.Is(err, common.ErrActivityEnded),
		errors.Is(err, common.ErrActivityNotInProgress),
		errors.Is(err, common.ErrFailedFilesPresent),
		errors.Is(err, common.ErrInvalidTransition),
		errors.Is(err, common.ErrValidatedFileImmutable),
		errors.Is(err, common.ErrArchiveUnavailable):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, common.ErrRuleExists),
		errors.Is(err, common.ErrVersionConflict):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, common.ErrorForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, "unauthorized")
	}

	s.logger.Error(ctx, "request failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}

func (s *GRPCServer) Ping(ctx context.Context, _ *Empty) (*PingResponse, error) {
	return &PingResponse{Status: "OK"}, nil
}

func (s *GRPCServer) StartActivity(ctx context.Context, req *StartActivityRequest) (*Activity, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.activities.Start(ctx, actor, req.EvaluatorID, req.SupplierID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	s.logger.Info(ctx, "activity started", "activity_id", a.ID, "user_id", actor.UserID)
	return toActivity(a), nil
}

func (s *GRPCServer) GetActivity(ctx context.Context, req *ActivityRequest) (*Activity, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.activities.Get(ctx, actor, req.ActivityID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return toActivity(a), nil
}

func (s *GRPCServer) CancelActivity(ctx context.Context, req *ActivityRequest) (*Activity, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.activities.Cancel(ctx, actor, req.ActivityID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return toActivity(a), nil
}

func (s *GRPCServer) CompleteActivity(ctx context.Context, req *ActivityRequest) (*Activity, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.activities.Complete(ctx, actor, req.ActivityID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	s.logger.Info(ctx, "activity completed", "activity_id", a.ID, "user_id", actor.UserID)
	return toActivity(a), nil
}

func (s *GRPCServer) GetCoverage(ctx context.Context, req *ActivityRequest) (*CoverageResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	report, err := s.activities.Coverage(ctx, actor, req.ActivityID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &report, nil
}

func (s *GRPCServer) GetArchiveURL(ctx context.Context, req *ActivityRequest) (*URLResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	url, err := s.activities.ArchiveURL(ctx, actor, req.ActivityID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &URLResponse{URL: url}, nil
}

func (s *GRPCServer) ListFiles(ctx context.Context, req *ActivityRequest) (*ListFilesResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	files, err := s.activities.ListFiles(ctx, actor, req.ActivityID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out := make([]File, 0, len(files))
	for i := range files {
		out = append(out, toFile(&files[i]))
	}
	return &ListFilesResponse{Files: out}, nil
}

func (s *GRPCServer) RequestUpload(ctx context.Context, req *RequestUploadRequest) (*UploadTask, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	task, err := s.activities.RequestUpload(ctx, actor, services.UploadRequest{
		ActivityID: req.ActivityID,
		Name:       req.Name,
		Size:       req.Size,
		ReuploadOf: req.ReuploadOf,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &UploadTask{FileID: task.FileID, Version: task.Version, StorageKey: task.StorageKey, URL: task.URL}, nil
}

func (s *GRPCServer) ConfirmUpload(ctx context.Context, req *ConfirmUploadRequest) (*File, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	f, err := s.activities.ConfirmUpload(ctx, actor, req.FileID, req.OK)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out := toFile(f)
	return &out, nil
}

func (s *GRPCServer) DeleteFile(ctx context.Context, req *FileRequest) (*Empty, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.activities.DeleteFile(ctx, actor, req.FileID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) CreateRule(ctx context.Context, req *Rule) (*Rule, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.rules.Create(ctx, actor, fromRule(req))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out := toRule(r)
	return &out, nil
}

func (s *GRPCServer) UpdateRule(ctx context.Context, req *Rule) (*Rule, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.rules.Update(ctx, actor, fromRule(req))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out := toRule(r)
	return &out, nil
}

func (s *GRPCServer) DeleteRule(ctx context.Context, req *RuleRequest) (*Empty, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.rules.Delete(ctx, actor, req.RuleID); err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &Empty{}, nil
}

func (s *GRPCServer) ListRules(ctx context.Context, req *SupplierRequest) (*ListRulesResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.List(ctx, actor, req.SupplierID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ListRulesResponse{Rules: toRules(rules)}, nil
}

func (s *GRPCServer) ImportRules(ctx context.Context, req *ImportRulesRequest) (*ListRulesResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.ImportCSV(ctx, actor, req.SupplierID, strings.NewReader(req.CSV))
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	s.logger.Info(ctx, "rules imported", "supplier_id", req.SupplierID, "count", len(rules))
	return &ListRulesResponse{Rules: toRules(rules)}, nil
}

// PreviewReminders is restricted to evaluator users and covers the caller's
// tenant.
func (s *GRPCServer) PreviewReminders(ctx context.Context, req *PreviewRequest) (*PreviewResponse, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if actor.SupplierID != nil {
		return nil, status.Error(codes.PermissionDenied, "forbidden")
	}

	runDate := s.reminders.RunDate(s.now())
	if req.Date != "" {
		if runDate, err = timex.ParseDate(req.Date); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}
	planned, err := s.reminders.Preview(ctx, actor, runDate, req.Job)
	if err != nil {
		if errors.Is(err, services.ErrUnknownJob) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, s.toStatus(ctx, err)
	}
	return &PreviewResponse{RunDate: runDate.Format(time.DateOnly), Reminders: planned}, nil
}
