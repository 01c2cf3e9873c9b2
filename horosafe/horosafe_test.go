package horosafe

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr error
	}{
		{"http://127.0.0.1/admin", ErrSSRF},
		{"http://10.1.2.3/", ErrSSRF},
		{"http://192.168.0.10:8080/x", ErrSSRF},
		{"http://169.254.169.254/latest/meta-data", ErrSSRF},
		{"http://[::1]/", ErrSSRF},
		{"ftp://example.com/file", ErrUnsafeScheme},
		{"file:///etc/passwd", ErrUnsafeScheme},
		{"https://93.184.216.34/page", nil},
	}
	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if tt.wantErr == nil {
			if err != nil {
				t.Errorf("ValidateURL(%q) = %v, want nil", tt.url, err)
			}
			continue
		}
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ValidateURL(%q) = %v, want %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestValidateScheme(t *testing.T) {
	if err := ValidateScheme("http://127.0.0.1:9999/relay"); err != nil {
		t.Errorf("loopback relay should pass scheme check: %v", err)
	}
	if err := ValidateScheme("gopher://x"); !errors.Is(err, ErrUnsafeScheme) {
		t.Errorf("gopher: got %v", err)
	}
	if err := ValidateScheme("http:///nohost"); err == nil {
		t.Error("missing host should fail")
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 5)
	if err != nil || string(data) != "hello" {
		t.Fatalf("at limit: %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader("hello!"), 5); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("over limit: got %v", err)
	}
}
