package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/buecherhallen-watchlist/pkg/logging"
)

// ErrMissingCredentials indicates an empty username or password.
var ErrMissingCredentials = errors.New("username and password are required")

// Credentials identify the library account: the library card number and its PIN.
type Credentials struct {
	Username string
	Password string
}

// Validate checks that both fields are set.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" || c.Password == "" {
		return ErrMissingCredentials
	}
	return nil
}

// String never reveals the password.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username: %s, Password: %s}", logging.Redact(c.Username), strings.Repeat("*", 8))
}
