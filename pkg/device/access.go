package device

import "github.com/google/uuid"

// Access is the capability presented with a pin operation.
// A nil Access only reaches pins no component owns.
type Access interface {
	permits(owner Token) bool
}

// Token is the opaque key a component registers its pins under.
type Token string

// NewToken mints a random token.
func NewToken() Token {
	return Token(uuid.NewString())
}

func (t Token) permits(owner Token) bool {
	return t != "" && t == owner
}

// String returns the token text.
func (t Token) String() string {
	return string(t)
}

// Override bypasses pin protection. Meant for interactive debugging and
// other privileged callers that intentionally act on owned pins.
type Override struct{}

func (Override) permits(Token) bool { return true }

var (
	_ Access = Token("")
	_ Access = Override{}
)
