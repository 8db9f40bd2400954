// Package grpc exposes the LFRAS services over gRPC. Messages are carried
// as google.protobuf.Struct values.
// Every method except Ping requires an access_token metadata entry.
package grpc

import (
	"context"
	"io"
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/dmitrijs2005/lfras/internal/logging"
	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/dmitrijs2005/lfras/internal/server/services"
	"github.com/dmitrijs2005/lfras/internal/server/validation"
)

type activitySvc interface {
	Start(ctx context.Context, actor models.Actor, evaluatorID, supplierID int64) (*models.Activity, error)
	Get(ctx context.Context, actor models.Actor, activityID int64) (*models.Activity, error)
	ListFiles(ctx context.Context, actor models.Actor, activityID int64) ([]models.UploadedFile, error)
	RequestUpload(ctx context.Context, actor models.Actor, req services.UploadRequest) (*models.FileUploadTask, error)
	ConfirmUpload(ctx context.Context, actor models.Actor, fileID int64, ok bool) (*models.UploadedFile, error)
	DeleteFile(ctx context.Context, actor models.Actor, fileID int64) error
	Cancel(ctx context.Context, actor models.Actor, activityID int64) (*models.Activity, error)
	Complete(ctx context.Context, actor models.Actor, activityID int64) (*models.Activity, error)
	Coverage(ctx context.Context, actor models.Actor, activityID int64) (validation.CoverageReport, error)
	ArchiveURL(ctx context.Context, actor models.Actor, activityID int64) (string, error)
}

type ruleSvc interface {
	Create(ctx context.Context, actor models.Actor, rule models.ValidationRule) (*models.ValidationRule, error)
	Update(ctx context.Context, actor models.Actor, rule models.ValidationRule) (*models.ValidationRule, error)
	Delete(ctx context.Context, actor models.Actor, ruleID int64) error
	List(ctx context.Context, actor models.Actor, supplierID int64) ([]models.ValidationRule, error)
	ImportCSV(ctx context.Context, actor models.Actor, supplierID int64, r io.Reader) ([]models.ValidationRule, error)
}

type reminderSvc interface {
	RunDate(t time.Time) time.Time
	Preview(ctx context.Context, actor models.Actor, runDate time.Time, job string) ([]services.PlannedReminder, error)
}

type authSvc interface {
	Authenticate(ctx context.Context, token string) (models.Actor, error)
}

type GRPCServer struct {
	address    string
	activities activitySvc
	rules      ruleSvc
	reminders  reminderSvc
	auth       authSvc
	logger     logging.Logger
	now        func() time.Time
}

func NewGRPCServer(a string, l logging.Logger, as activitySvc, rs ruleSvc, ms reminderSvc, au authSvc) *GRPCServer {
	return &GRPCServer{
		address:    a,
		logger:     l.With("module", "grpc_server"),
		activities: as,
		rules:      rs,
		reminders:  ms,
		auth:       au,
		now:        time.Now,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.recoverInterceptor, s.accessTokenInterceptor))
	srv.RegisterService(&ServiceDesc, s)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}
