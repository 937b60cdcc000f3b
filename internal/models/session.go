package models

// SessionEntry is one device's login instance, stored in redis under
// sessions:<user_id> keyed by session id. RefreshToken is the only value
// that validates a rotation for this session; it is replaced on every
// successful rotation along with LastAccessedAt.
type SessionEntry struct {
	RefreshToken   string `json:"refresh_token"`
	UserAgent      string `json:"user_agent,omitempty"`
	LastAccessedAt int64  `json:"last_accessed_at"`
}

// SessionInfo is the caller-facing shape of a session for the device
// management view. IsCurrent is filled in by the transport layer, which
// knows the session id of the current request.
type SessionInfo struct {
	SessionID      string `json:"session_id"`
	UserAgent      string `json:"user_agent,omitempty"`
	LastAccessedAt int64  `json:"last_accessed_at"`
	IsCurrent      bool   `json:"is_current"`
}
