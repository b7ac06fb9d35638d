package model

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Principal is the caller identity taken from a verified bearer token. The
// pipeline trusts it as-is; issuing tokens happens elsewhere.
type Principal struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
