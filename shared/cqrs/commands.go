package cqrs

type CreateUserCommand struct {
	Username       string
	Email          string
	Password       string
	PhoneNumber    *string
	ProfilePicture *string
}

// UpdateUserCommand replaces every mutable field of the user at UserID.
type UpdateUserCommand struct {
	UserID         int64
	Username       string
	Email          string
	Password       string
	PhoneNumber    *string
	ProfilePicture *string
}

type DeleteUserCommand struct {
	UserID int64
}
