package auth

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" example:"maria"`
	Password string `json:"password" example:"securepassword123"`
}

// RegisterRequest is the request body for POST /auth/register.
type RegisterRequest struct {
	Username string `json:"username" example:"maria"`
	Email    string `json:"email" example:"maria@example.com"`
	Password string `json:"password" example:"securepassword123"`
}

// RefreshRequest is the request body for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" example:"dGhpcyBpcyBhIHJlZnJl..."`
}

// LogoutRequest is the request body for POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" example:"dGhpcyBpcyBhIHJlZnJl..."`
}
