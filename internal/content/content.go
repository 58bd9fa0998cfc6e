package content

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/microcosm-cc/bluemonday"
)

var (
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrInvalidPayload  = errors.New("invalid payload")
)

var (
	policy        = bluemonday.StrictPolicy()
	identityRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	validate      = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// Sanitize strips HTML markup from input. Bodies are shown as plain text, so
// the entities bluemonday escapes are turned back into characters.
func Sanitize(input string) string {
	return html.UnescapeString(policy.Sanitize(input))
}

// CleanBody is the text a message body is stored and shown as: markup
// stripped and surrounding whitespace trimmed. Empty means nothing to send.
// Client and relay both apply it so the two sides show the same text.
func CleanBody(body string) string {
	return NormalizeBody(Sanitize(NormalizeBody(body)))
}

// NormalizeBody trims surrounding whitespace. An empty result means
// the body must not be sent.
func NormalizeBody(body string) string {
	return strings.TrimSpace(body)
}

// ValidateIdentity checks if the identity contains only allowed characters
// (alphanumeric, dot, dash, underscore) and is not empty.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return fmt.Errorf("%w: identity cannot be empty", ErrInvalidIdentity)
	}
	if !identityRegex.MatchString(identity) {
		return fmt.Errorf("%w: %q contains invalid characters (allowed: alphanumeric, dot, dash, underscore)", ErrInvalidIdentity, identity)
	}
	return nil
}

// ValidatePayload checks the `validate` struct tags of a wire payload.
func ValidatePayload(payload any) error {
	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}
