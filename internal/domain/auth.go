package domain

// ============================================================
// Auth — Request / Response types (matches frontend API contract)
// ============================================================

// RegisterInput is the body for POST /v1/auth/register.
type RegisterInput struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// RegisterResponse is the body for 201 from POST /v1/auth/register.
type RegisterResponse struct {
	Message string `json:"message"`
}

// LoginInput is the body for POST /v1/auth/login.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the body for 200 from POST /v1/auth/login.
type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Theme        string `json:"theme"`
}

// Portuguese messages surfaced by the auth flows.
const (
	MsgBadCredentials  = "E-mail ou senha incorretos."
	MsgSignupDone      = "Cadastro realizado! Verifique seu e-mail para confirmar a conta."
	MsgPasswordShort   = "A senha deve ter pelo menos 6 caracteres."
	MsgPasswordNoMatch = "As senhas não coincidem."
)
