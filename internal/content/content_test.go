package content

import (
	"errors"
	"testing"
	"time"

	"duet/internal/models"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain text", "Hello World", "Hello World"},
		{"HTML tags", "Hello <b>World</b>", "Hello World"},
		{"Ampersand", "Tom & Jerry", "Tom & Jerry"},
		{"Less than", "if a < b then", "if a < b then"},
		{"Heart", "<3 you", "<3 you"},
		{"Quotes", `say "hi" it's me`, `say "hi" it's me`},
		{"Script tag", "<script>alert('xss')</script>Hello", "Hello"},
		{"Complex HTML", "<a href='javascript:alert(1)'>Click me</a>", "Click me"},
		{"Emoji", "I am 🤖", "I am 🤖"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCleanBody(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"  hello <b>bob</b> ", "hello bob"},
		{"<b></b>", ""},
		{" <script>x</script>  ", ""},
		{"<i> spaced </i>", "spaced"},
		{"Tom & Jerry", "Tom & Jerry"},
	}

	for _, tt := range tests {
		if got := CleanBody(tt.input); got != tt.expected {
			t.Errorf("CleanBody(%q) = %q, want %q", tt.input, got, tt.expected)
		}
		if got := CleanBody(tt.expected); got != tt.expected {
			t.Errorf("CleanBody(%q) is not stable: %q", tt.expected, got)
		}
	}
}

func TestNormalizeBody(t *testing.T) {
	if got := NormalizeBody("  hi \n"); got != "hi" {
		t.Errorf("NormalizeBody() = %q, want %q", got, "hi")
	}
	if got := NormalizeBody(" \t "); got != "" {
		t.Errorf("NormalizeBody() = %q, want empty", got)
	}
}

func TestValidateIdentity(t *testing.T) {
	tests := []struct {
		name     string
		identity string
		wantErr  bool
	}{
		{"Valid simple", "uldana", false},
		{"Valid with dot", "daulet.k", false},
		{"Valid with dash and underscore", "a-b_c", false},
		{"Empty", "", true},
		{"Space", "john doe", true},
		{"HTML", "<b>x</b>", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentity(tt.identity)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentity(%q) error = %v, wantErr %v", tt.identity, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidIdentity) {
				t.Errorf("expected ErrInvalidIdentity, got %v", err)
			}
		})
	}
}

func TestValidatePayload(t *testing.T) {
	ok := models.MessagePayload{Message: "yo", Date: time.Now()}
	if err := ValidatePayload(ok); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	blank := models.MessagePayload{Message: "   ", Date: time.Now()}
	if err := ValidatePayload(blank); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload for blank message, got %v", err)
	}

	noDate := models.MessagePayload{Message: "yo"}
	if err := ValidatePayload(noDate); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload for missing date, got %v", err)
	}

	join := models.JoinPayload{ConversationID: "c1"}
	if err := ValidatePayload(join); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload for missing username, got %v", err)
	}
}
