package auth

import "github.com/user/memories-go/users"

// SignupRequest is the body of POST /user/signup.
type SignupRequest struct {
	FirstName       string `json:"firstName" validate:"required" example:"Ada"`
	LastName        string `json:"lastName" validate:"required" example:"Lovelace"`
	Email           string `json:"email" validate:"required" example:"ada@example.com"`
	Password        string `json:"password" validate:"required" example:"correct horse"`
	ConfirmPassword string `json:"confirmPassword" validate:"required" example:"correct horse"`
}

// SigninRequest is the body of POST /user/signin.
type SigninRequest struct {
	Email    string `json:"email" validate:"required" example:"ada@example.com"`
	Password string `json:"password" validate:"required" example:"correct horse"`
}

// AuthResponse is returned by both signup and signin.
type AuthResponse struct {
	Result users.PublicUser `json:"result"`
	Token  string           `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."`
}
