package models

// TokenPair bundles the credentials issued on login: a short-lived access
// token returned in the response body and a long-lived refresh token carried
// by cookie together with the session id.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// SignUpToken holds the pending user record stored in redis between the
// sign-up request and its confirmation. The pin is emailed to the user; the
// lookup key under which the token is stored is returned to the caller. Both
// are required to complete sign-up.
type SignUpToken struct {
	Pin       string `json:"pin"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// PasswordResetToken holds the temporary password deposited for a password
// reset, stored in redis keyed by user id.
type PasswordResetToken struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}
