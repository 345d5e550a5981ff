package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/receiptmaster/backend/shared/cqrs"
	"github.com/receiptmaster/backend/shared/events"
	"github.com/receiptmaster/backend/shared/models"
	"github.com/receiptmaster/backend/shared/utils"
	"github.com/receiptmaster/backend/user-service/internal/repository"
	"github.com/receiptmaster/backend/user-service/internal/service"
)

// UserWriter is the write side of the user store.
type UserWriter interface {
	Insert(ctx context.Context, user *models.User) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, id int64, fields models.UserFields, updateDate string) (*models.User, error)
	Delete(ctx context.Context, id int64) error
}

// UserCache keeps the read model in step with writes.
type UserCache interface {
	CacheUser(ctx context.Context, user *models.User)
	InvalidateUser(ctx context.Context, id int64)
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// UserCommandService writes user state to PostgreSQL, keeps the Redis read
// model up to date and announces every change on the user event stream.
type UserCommandService struct {
	writeRepo UserWriter
	cache     UserCache
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewUserCommandService(
	writeRepo UserWriter,
	cache UserCache,
	publisher EventPublisher,
	logger *slog.Logger,
) *UserCommandService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserCommandService{
		writeRepo: writeRepo,
		cache:     cache,
		publisher: publisher,
		logger:    logger.With("component", "user_command_service"),
		now:       time.Now,
	}
}

// CreateUser rejects a username that is already taken, then inserts the user
// with creation_date and update_date both set to the current time.
func (s *UserCommandService) CreateUser(ctx context.Context, cmd cqrs.CreateUserCommand) (*models.User, error) {
	if strings.TrimSpace(cmd.Username) == "" {
		return nil, fmt.Errorf("%w: username is required", service.ErrInvalidInput)
	}

	_, err := s.writeRepo.FindByUsername(ctx, cmd.Username)
	switch {
	case err == nil:
		return nil, service.ErrAlreadyExists
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	stamp := utils.FormatDate(s.now())
	user := &models.User{
		Username:       cmd.Username,
		Email:          cmd.Email,
		Password:       cmd.Password,
		PhoneNumber:    cmd.PhoneNumber,
		ProfilePicture: cmd.ProfilePicture,
		CreationDate:   stamp,
		UpdateDate:     stamp,
	}
	created, err := s.writeRepo.Insert(ctx, user)
	if err != nil {
		// A concurrent create can win the race past the lookup above; the
		// unique index catches it.
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, service.ErrAlreadyExists
		}
		return nil, err
	}

	s.cache.CacheUser(ctx, created)
	s.publish(ctx, events.UserCreated, events.UserCreatedEvent{
		UserID:   created.ID,
		Username: created.Username,
		Email:    created.Email,
	})
	return created, nil
}

// UpdateUser replaces every mutable field of the user at cmd.UserID and
// refreshes update_date. The id and creation_date come from the stored row.
func (s *UserCommandService) UpdateUser(ctx context.Context, cmd cqrs.UpdateUserCommand) (*models.User, error) {
	if strings.TrimSpace(cmd.Username) == "" {
		return nil, fmt.Errorf("%w: username is required", service.ErrInvalidInput)
	}

	updated, err := s.writeRepo.Update(ctx, cmd.UserID, models.UserFields{
		Username:       cmd.Username,
		Email:          cmd.Email,
		Password:       cmd.Password,
		PhoneNumber:    cmd.PhoneNumber,
		ProfilePicture: cmd.ProfilePicture,
	}, utils.FormatDate(s.now()))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, service.ErrNotFound
		case errors.Is(err, repository.ErrDuplicateUsername):
			return nil, service.ErrAlreadyExists
		}
		return nil, err
	}

	s.cache.CacheUser(ctx, updated)
	s.publish(ctx, events.UserUpdated, events.UserUpdatedEvent{
		UserID:   updated.ID,
		Username: updated.Username,
		Email:    updated.Email,
	})
	return updated, nil
}

func (s *UserCommandService) DeleteUser(ctx context.Context, cmd cqrs.DeleteUserCommand) error {
	if err := s.writeRepo.Delete(ctx, cmd.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return service.ErrNotFound
		}
		return err
	}

	s.cache.InvalidateUser(ctx, cmd.UserID)
	s.publish(ctx, events.UserDeleted, events.UserDeletedEvent{UserID: cmd.UserID})
	return nil
}

// publish never fails the command; the write has already committed.
func (s *UserCommandService) publish(ctx context.Context, eventType string, data any) {
	if err := s.publisher.Publish(ctx, eventType, data); err != nil {
		s.logger.WarnContext(ctx, "failed to publish user event", "type", eventType, "error", err)
	}
}
