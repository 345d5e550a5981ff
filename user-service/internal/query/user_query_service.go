package query

import (
	"context"
	"errors"

	"github.com/receiptmaster/backend/shared/cqrs"
	"github.com/receiptmaster/backend/shared/models"
	"github.com/receiptmaster/backend/user-service/internal/repository"
	"github.com/receiptmaster/backend/user-service/internal/service"
)

// UserReader is the read side of the user store.
type UserReader interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindAll(ctx context.Context) ([]models.User, error)
}

// UserQueryService reads users from the Redis cache with a Postgres fallback.
type UserQueryService struct {
	readRepo UserReader
}

func NewUserQueryService(readRepo UserReader) *UserQueryService {
	return &UserQueryService{readRepo: readRepo}
}

func (s *UserQueryService) GetUser(ctx context.Context, q cqrs.GetUserQuery) (*models.User, error) {
	user, err := s.readRepo.FindByID(ctx, q.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, service.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// ListUsers returns every user in insertion order; the slice is empty, never
// nil, when no users exist.
func (s *UserQueryService) ListUsers(ctx context.Context, _ cqrs.ListUsersQuery) ([]models.User, error) {
	users, err := s.readRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}
