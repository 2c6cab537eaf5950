package progress

import (
	"strings"
	"unicode/utf8"

	"github.com/copilot-mastery/mastery/internal/domain/shared"
)

// MinUsernameLength is the shortest accepted display name, in characters.
const MinUsernameLength = 2

// Username identifies a learner. It is a free-text display name with no
// uniqueness or authentication behind it.
type Username string

// ParseUsername trims name and checks its length.
func ParseUsername(name string) (Username, error) {
	trimmed := strings.TrimSpace(name)
	if utf8.RuneCountInString(trimmed) < MinUsernameLength {
		return "", shared.ErrInvalidUsername
	}
	return Username(trimmed), nil
}

// String returns the display name.
func (u Username) String() string {
	return string(u)
}
