package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/receiptmaster/backend/shared/cqrs"
	"github.com/receiptmaster/backend/shared/metrics"
	"github.com/receiptmaster/backend/shared/middleware"
	"github.com/receiptmaster/backend/shared/models"
	"github.com/receiptmaster/backend/shared/utils"
	"github.com/receiptmaster/backend/user-service/internal/service"
)

// UserCommander defines the write-side operations used by UserHandler.
type UserCommander interface {
	CreateUser(context.Context, cqrs.CreateUserCommand) (*models.User, error)
	UpdateUser(context.Context, cqrs.UpdateUserCommand) (*models.User, error)
	DeleteUser(context.Context, cqrs.DeleteUserCommand) error
}

// UserQuerier defines the read-side operations used by UserHandler.
type UserQuerier interface {
	GetUser(context.Context, cqrs.GetUserQuery) (*models.User, error)
	ListUsers(context.Context, cqrs.ListUsersQuery) ([]models.User, error)
}

// OperationRecorder counts finished user operations by outcome.
type OperationRecorder interface {
	ObserveUserOperation(operation, outcome string)
}

// UserHandler routes requests to the command or query service as appropriate.
type UserHandler struct {
	commands UserCommander
	queries  UserQuerier
	recorder OperationRecorder
}

// UserRequest is the body of create and update. Any id in the body is
// ignored; updates address the user by path parameter only. Only username
// must be present; email and password are free-form text.
type UserRequest struct {
	Username       string  `json:"username" validate:"required,max=255"`
	Email          string  `json:"email" validate:"max=255"`
	Password       string  `json:"password" validate:"max=255"`
	PhoneNumber    *string `json:"phone_number" validate:"omitempty,max=20"`
	ProfilePicture *string `json:"profile_picture" validate:"omitempty,max=255"`
}

// NewUserHandler wires the handler. recorder may be nil.
func NewUserHandler(commands UserCommander, queries UserQuerier, recorder OperationRecorder) *UserHandler {
	return &UserHandler{commands: commands, queries: queries, recorder: recorder}
}

// RegisterRoutes mounts the user endpoints on group, which is expected to be
// the /users group behind the API key gate.
func (h *UserHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/user", h.CreateUser)
	group.GET("/users", h.ListUsers)
	group.GET("/user/:id", h.GetUser)
	group.PUT("/user/:id", h.UpdateUser)
	group.DELETE("/user/:id", h.DeleteUser)
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	req, ok := bindUserRequest(c)
	if !ok {
		return
	}

	user, err := h.commands.CreateUser(c.Request.Context(), cqrs.CreateUserCommand{
		Username:       req.Username,
		Email:          req.Email,
		Password:       req.Password,
		PhoneNumber:    req.PhoneNumber,
		ProfilePicture: req.ProfilePicture,
	})
	h.observe("create", err)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyExists):
			middleware.RespondWithError(c, http.StatusBadRequest, "User already exists")
		case errors.Is(err, service.ErrInvalidInput):
			middleware.RespondWithError(c, http.StatusBadRequest, "Username must not be empty")
		default:
			_ = c.Error(err)
			middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to create user")
		}
		return
	}

	c.JSON(http.StatusCreated, user)
}

func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.queries.ListUsers(c.Request.Context(), cqrs.ListUsersQuery{})
	h.observe("list", err)
	if err != nil {
		_ = c.Error(err)
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to list users")
		return
	}

	c.JSON(http.StatusOK, users)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}

	user, err := h.queries.GetUser(c.Request.Context(), cqrs.GetUserQuery{UserID: id})
	h.observe("get", err)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			middleware.RespondWithError(c, http.StatusNotFound, "User does not exist")
			return
		}
		_ = c.Error(err)
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to get user")
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	req, ok := bindUserRequest(c)
	if !ok {
		return
	}

	user, err := h.commands.UpdateUser(c.Request.Context(), cqrs.UpdateUserCommand{
		UserID:         id,
		Username:       req.Username,
		Email:          req.Email,
		Password:       req.Password,
		PhoneNumber:    req.PhoneNumber,
		ProfilePicture: req.ProfilePicture,
	})
	h.observe("update", err)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			middleware.RespondWithError(c, http.StatusNotFound, "User does not exist")
		case errors.Is(err, service.ErrAlreadyExists):
			middleware.RespondWithError(c, http.StatusBadRequest, "User already exists")
		case errors.Is(err, service.ErrInvalidInput):
			middleware.RespondWithError(c, http.StatusBadRequest, "Username must not be empty")
		default:
			_ = c.Error(err)
			middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to update user")
		}
		return
	}

	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}

	err := h.commands.DeleteUser(c.Request.Context(), cqrs.DeleteUserCommand{UserID: id})
	h.observe("delete", err)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			middleware.RespondWithError(c, http.StatusNotFound, fmt.Sprintf("User with ID %d not found.", id))
			return
		}
		_ = c.Error(err)
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to delete user")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("User with ID %d was successfully deleted.", id),
	})
}

func (h *UserHandler) observe(operation string, err error) {
	if h.recorder == nil {
		return
	}
	outcome := metrics.OutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, service.ErrNotFound):
		outcome = metrics.OutcomeNotFound
	case errors.Is(err, service.ErrAlreadyExists):
		outcome = metrics.OutcomeAlreadyExists
	case errors.Is(err, service.ErrInvalidInput):
		outcome = metrics.OutcomeInvalid
	default:
		outcome = metrics.OutcomeError
	}
	h.recorder.ObserveUserOperation(operation, outcome)
}

func bindUserRequest(c *gin.Context) (UserRequest, bool) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return req, false
	}
	return req, true
}

func userIDParam(c *gin.Context) (int64, bool) {
	id, ok := utils.ParseID(c.Param("id"))
	if !ok {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid user id")
		return 0, false
	}
	return id, true
}
