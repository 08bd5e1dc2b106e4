package auth

import (
	"errors"
	"testing"

	"github.com/danmuck/remotectl/internal/testutil/testlog"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "empty input denied", stored: "abc", input: "", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestParseBearer(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		header string
		want   string
		err    error
	}{
		{Bearer("s3cret"), "s3cret", nil},
		{"bearer  spaced ", "spaced", nil},
		{"", "", ErrMissingToken},
		{"Basic dXNlcjpwYXNz", "", ErrMissingToken},
		{"Bearer ", "", ErrMissingToken},
		{"Bearer", "", ErrMissingToken},
	}
	for _, tc := range tests {
		t.Run(tc.header, func(t *testing.T) {
			got, err := ParseBearer(tc.header)
			if !errors.Is(err, tc.err) || got != tc.want {
				t.Fatalf("ParseBearer(%q) = %q, %v", tc.header, got, err)
			}
		})
	}
}
