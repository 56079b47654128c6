package dispatch

import (
	"strings"
	"unicode"
)

// Command is a parsed command message.
type Command struct {
	Name string
	// Addressee is the @-suffix of the command token without the @, empty
	// when the command was not addressed.
	Addressee string
	Args      string
}

// ParseCommand splits text of the form "<prefix>name[@bot] args". ok is
// false when text does not start with prefix.
func ParseCommand(text, prefix string) (Command, bool) {
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return Command{}, false
	}
	rest := text[len(prefix):]
	end := strings.IndexFunc(rest, unicode.IsSpace)
	token := rest
	args := ""
	if end >= 0 {
		token = rest[:end]
		args = strings.TrimSpace(rest[end:])
	}
	cmd := Command{Name: token, Args: args}
	if at := strings.IndexByte(token, '@'); at >= 0 {
		cmd.Name = token[:at]
		cmd.Addressee = token[at+1:]
	}
	return cmd, true
}

// Addressed reports whether the command carried an @-suffix.
func (c Command) Addressed() bool {
	return c.Addressee != ""
}

// sameAddress compares bot addresses ignoring a leading @ and case.
func sameAddress(a, b string) bool {
	a = strings.TrimPrefix(strings.TrimSpace(a), "@")
	b = strings.TrimPrefix(strings.TrimSpace(b), "@")
	return a != "" && strings.EqualFold(a, b)
}
