package models

// User is the persisted user record. Dates are stored as text, formatted with
// DateLayout.
type User struct {
	ID             int64   `json:"id"`
	Username       string  `json:"username"`
	Email          string  `json:"email"`
	Password       string  `json:"password"`
	PhoneNumber    *string `json:"phone_number"`
	ProfilePicture *string `json:"profile_picture"`
	CreationDate   string  `json:"creation_date"`
	UpdateDate     string  `json:"update_date"`
}

// UserFields are the mutable columns replaced wholesale on update.
type UserFields struct {
	Username       string
	Email          string
	Password       string
	PhoneNumber    *string
	ProfilePicture *string
}

// DateLayout is the text format of creation_date and update_date.
const DateLayout = "2006-01-02T15:04:05.000000Z07:00"
