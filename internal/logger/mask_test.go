package logger

import "testing"

func TestMaskSensitive(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "***"},
		{"short", "***"},
		{"exactly10!", "***"},
		{"abcdefghijk", "abcde***ghijk"},
		{"session-cookie-value-12345", "sessi***12345"},
	}
	for _, tt := range tests {
		if got := MaskSensitive(tt.in); got != tt.want {
			t.Errorf("MaskSensitive(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskCookiesNeverLeaksValues(t *testing.T) {
	cookies := map[string]string{
		"acw_sc__v2": "very-secret-session-value",
		"short":      "tiny",
	}
	got := MaskCookies(cookies)
	want := "acw_sc__v2=very-***value, short=***"
	if got != want {
		t.Errorf("MaskCookies = %q, want %q", got, want)
	}
}
