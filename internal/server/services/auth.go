package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/lfras/internal/common"
	"github.com/dmitrijs2005/lfras/internal/server/auth"
	"github.com/dmitrijs2005/lfras/internal/server/models"
	"github.com/dmitrijs2005/lfras/internal/server/repositories/repomanager"
)

// AuthService turns an access token into the Actor used by the other
// services. Tokens are minted by the account service that shares the
// secret; only verification happens here.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	jwtSecret   []byte
}

func NewAuthService(db *sql.DB, rm repomanager.RepositoryManager, secret string) *AuthService {
	return &AuthService{db: db, repomanager: rm, jwtSecret: []byte(secret)}
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (models.Actor, error) {
	userID, err := auth.GetUserIDFromToken(token, s.jwtSecret)
	if err != nil {
		return models.Actor{}, err
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return models.Actor{}, common.ErrorUnauthorized
		}
		return models.Actor{}, common.ErrorInternal
	}
	if !user.IsActive || user.EvaluatorID == nil {
		return models.Actor{}, common.ErrorUnauthorized
	}

	return models.Actor{
		UserID:      user.ID,
		Role:        user.Role,
		EvaluatorID: *user.EvaluatorID,
		SupplierID:  user.SupplierID,
	}, nil
}
