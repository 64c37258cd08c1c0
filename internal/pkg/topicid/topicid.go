package topicid

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gosimple/slug"
)

// ErrInvalid is returned when a string is not a valid topic id.
var ErrInvalid = errors.New("invalid topic id")

var pattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ID is a single path segment of a homie topic. Decoding from text (env, yaml)
// validates the value.
type ID string

func (id ID) String() string {
	return string(id)
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// IsValid reports whether s is lowercase alphanumeric with interior hyphens only.
func IsValid(s string) bool {
	return pattern.MatchString(s)
}

// Parse validates s and returns it as an ID.
func Parse(s string) (ID, error) {
	if !IsValid(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return ID(s), nil
}

// FromName derives an ID from a free-text display name. It returns an empty ID
// if nothing usable is left after slugging.
func FromName(name string) ID {
	s := strings.Trim(slug.Make(name), "-")
	s = strings.ReplaceAll(s, "_", "-")
	if !IsValid(s) {
		return ""
	}
	return ID(s)
}
