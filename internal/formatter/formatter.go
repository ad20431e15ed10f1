// Package formatter renders an event into a short human-readable line.
// Formatter implementations form a closed set selected by Kind; there is no
// runtime registration.
package formatter

import (
	"errors"
	"fmt"

	"github.com/house-cat/echo-notifications/internal/model"
)

// OutputFormat selects the rendering target.
type OutputFormat string

const (
	FormatText   OutputFormat = "text"
	FormatFlyout OutputFormat = "flyout"
	FormatHTML   OutputFormat = "html"
	FormatEmail  OutputFormat = "email"
)

var validFormats = map[OutputFormat]bool{
	FormatText:   true,
	FormatFlyout: true,
	FormatHTML:   true,
	FormatEmail:  true,
}

// Kind identifies one of the known formatter implementations.
type Kind string

const (
	KindBasic   Kind = "basic"
	KindEdit    Kind = "edit"
	KindComment Kind = "comment"
	KindSystem  Kind = "system"
)

var (
	ErrUnknownKind   = errors.New("unknown formatter kind")
	ErrInvalidFormat = errors.New("invalid output format")
)

// Formatter renders an event for a user in the given output format.
type Formatter interface {
	Format(event model.Event, user model.User, format OutputFormat) (string, error)
}

// kinds is the static dispatch table. KindSystem intentionally shares the
// basic formatter.
var kinds = map[Kind]Formatter{
	KindBasic:   basicFormatter{},
	KindEdit:    editFormatter{},
	KindComment: commentFormatter{},
	KindSystem:  basicFormatter{},
}

// New returns the formatter for the given kind.
func New(kind Kind) (Formatter, error) {
	f, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return f, nil
}

func checkFormat(format OutputFormat) error {
	if !validFormats[format] {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
	return nil
}

type basicFormatter struct{}

func (basicFormatter) Format(event model.Event, user model.User, format OutputFormat) (string, error) {
	if err := checkFormat(format); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: new %s notification", user.Name, event.Type), nil
}

type editFormatter struct{}

func (editFormatter) Format(event model.Event, user model.User, format OutputFormat) (string, error) {
	if err := checkFormat(format); err != nil {
		return "", err
	}
	if event.Title == "" {
		return "", errors.New("edit notification requires a title")
	}
	return fmt.Sprintf("%s: %q was edited", user.Name, event.Title), nil
}

type commentFormatter struct{}

func (commentFormatter) Format(event model.Event, user model.User, format OutputFormat) (string, error) {
	if err := checkFormat(format); err != nil {
		return "", err
	}
	if event.Title == "" {
		return "", errors.New("comment notification requires a title")
	}
	return fmt.Sprintf("%s: new comment on %q", user.Name, event.Title), nil
}
