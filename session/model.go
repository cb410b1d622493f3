package session

// Session is one signed-in device. Role is the role name recorded at sign-in.
type Session struct {
	SessionID string
	UserID    string
	Email     string
	Role      string
	Method    string

	RefreshHash [32]byte

	CreatedAt int64
	ExpiresAt int64
}

// Sign-in methods recorded in Session.Method.
const (
	MethodPassword = "password"
	MethodOAuth    = "oauth"
)
