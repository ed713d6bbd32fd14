// Package capability picks the hardware acceleration path used for every job of a pass.
package capability

import "fmt"

// Token names one acceleration path.
type Token string

// Supported tokens, strongest first.
const (
	// TokenNVENC is the primary class: CUDA host init with the NVENC encoder.
	TokenNVENC Token = "nvenc"
	// TokenVAAPI is the secondary class: a VAAPI render node.
	TokenVAAPI Token = "vaapi"
	// TokenSoftware encodes on the CPU and is always available.
	TokenSoftware Token = "software"
)

// String implements fmt.Stringer.
func (t Token) String() string {
	return string(t)
}

// Hardware reports whether the token needs a device.
func (t Token) Hardware() bool {
	return t == TokenNVENC || t == TokenVAAPI
}

// ParseToken converts a string into a Token.
func ParseToken(s string) (Token, error) {
	switch Token(s) {
	case TokenNVENC, TokenVAAPI, TokenSoftware:
		return Token(s), nil
	default:
		return "", fmt.Errorf("unknown capability token %q", s)
	}
}
