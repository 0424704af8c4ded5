package models

// Role is the kind of account.
type Role string

const (
	RolePlayer Role = "PLAYER"
	RoleAdmin  Role = "ADMIN"
)

// User represents a user in the database.
type User struct {
	ID           int64  `db:"id" json:"id"`
	Username     string `db:"username" json:"username"`
	PasswordHash string `db:"password_hash" json:"-"`
	FirstName    string `db:"first_name" json:"first_name"`
	LastName     string `db:"last_name" json:"last_name"`
	Avatar       string `db:"avatar" json:"avatar"`
	Wins         int    `db:"wins" json:"wins"`
	Losses       int    `db:"losses" json:"losses"`
	Role         Role   `db:"role" json:"role"`
}

// IsAdmin reports whether the account observes matches instead of playing.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// RegisterRequest defines the structure for a user registration request.
type RegisterRequest struct {
	Username  string `json:"username" validate:"required,username"`
	Password  string `json:"password" validate:"required,password"`
	FirstName string `json:"first_name" validate:"max=50"`
	LastName  string `json:"last_name" validate:"max=50"`
	Avatar    string `json:"avatar" validate:"max=50"`
}

// LoginRequest defines the structure for a user login request.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse defines the structure for a successful login response.
type LoginResponse struct {
	Token  string `json:"token"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
	Role   Role   `json:"role"`
}
