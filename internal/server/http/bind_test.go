package httpserver

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"reviewedBy":"maria","reason":"duplicate"}`, ""},
		{"trims before validating", `{"reviewedBy":"  ","reason":"duplicate"}`, "reviewedBy is a required field"},
		{"trailing data", `{"reviewedBy":"maria","reason":"x"} {}`, "unexpected trailing data"},
		{"malformed", `{"reviewedBy":`, "invalid JSON request body"},
		{"too long", `{"reviewedBy":"maria","reason":"` + strings.Repeat("x", 1001) + `"}`, "reason"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("PUT", "/", strings.NewReader(tt.body))
			got, err := decodeJSON[rejectRequest](req)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.ReviewedBy != "maria" {
					t.Errorf("unexpected reviewer %q", got.ReviewedBy)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
