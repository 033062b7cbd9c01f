package validation

import (
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"without country prefix", "11999999999", "5511999999999"},
		{"already prefixed", "5511999999999", "5511999999999"},
		{"formatted input", "+55 11 99999-9999", "5511999999999"},
		{"parentheses and spaces", "(11) 99999-9999", "5511999999999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePhone(tt.input); got != tt.want {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidatePhone(t *testing.T) {
	if err := ValidatePhone("11999999999"); err != nil {
		t.Errorf("valid number rejected: %v", err)
	}
	if err := ValidatePhone("123"); err == nil {
		t.Error("short number accepted")
	}
	if err := ValidatePhone("123456789012345678"); err == nil {
		t.Error("oversized number accepted")
	}
}

func TestValidateSessionID(t *testing.T) {
	valid := []string{"clinic-1", "clinic_1", "a.b.c", "ABC123"}
	for _, id := range valid {
		if err := ValidateSessionID(id); err != nil {
			t.Errorf("ValidateSessionID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"", "   ", "has space", "slash/id", "../escape", string(make([]byte, 70))}
	for _, id := range invalid {
		if err := ValidateSessionID(id); err == nil {
			t.Errorf("ValidateSessionID(%q) accepted", id)
		}
	}
}

func TestValidateWebhookURL(t *testing.T) {
	if err := ValidateWebhookURL("https://example.com/hook"); err != nil {
		t.Errorf("valid url rejected: %v", err)
	}
	if err := ValidateWebhookURL(""); err == nil {
		t.Error("empty url accepted")
	}
	if err := ValidateWebhookURL("not a url"); err == nil {
		t.Error("malformed url accepted")
	}
}
