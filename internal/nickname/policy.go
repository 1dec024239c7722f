// Package nickname validates display names and enforces their uniqueness
// among connected sessions.
package nickname

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chat-relay/relay/internal/session"
	"github.com/go-playground/validator/v10"
)

const (
	MinLength = 2
	MaxLength = 15
)

var (
	ErrInvalidLength = errors.New("invalid length")
	ErrNameTaken     = errors.New("name taken")
)

// ValidationError reports why a requested name was rejected. Err is one of
// ErrInvalidLength or ErrNameTaken.
type ValidationError struct {
	Name string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("nickname %q: %v", e.Name, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NameLister is the view of the registry the policy needs.
type NameLister interface {
	ListDisplayNames() []string
}

type Policy struct {
	names    NameLister
	validate *validator.Validate
	rule     string
}

func NewPolicy(names NameLister) *Policy {
	return &Policy{
		names:    names,
		validate: validator.New(),
		rule:     fmt.Sprintf("min=%d,max=%d", MinLength, MaxLength),
	}
}

// Validate trims surrounding whitespace from name and checks it against the
// length bounds and the names currently in use. On success it returns the
// trimmed name.
func (p *Policy) Validate(name string) (string, error) {
	trimmed := strings.TrimSpace(name)

	// Length is counted in runes.
	if err := p.validate.Var(trimmed, p.rule); err != nil {
		return "", &ValidationError{Name: trimmed, Err: ErrInvalidLength}
	}

	if p.Taken(trimmed) {
		return "", &ValidationError{Name: trimmed, Err: ErrNameTaken}
	}
	return trimmed, nil
}

// Taken reports whether name matches an existing display name, ignoring case.
func (p *Policy) Taken(name string) bool {
	folded := session.FoldName(name)
	for _, existing := range p.names.ListDisplayNames() {
		if session.FoldName(existing) == folded {
			return true
		}
	}
	return false
}
