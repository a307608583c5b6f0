package session

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		code int64
		want errClass
	}{
		{2104, classInfo},
		{2106, classInfo},
		{2119, classInfo},
		{2158, classInfo},
		{1101, classInfo},
		{1102, classInfo},
		{162, classRequestDead},
		{200, classRequestDead},
		{354, classRequestDead},
		{366, classRequestDead},
		{10089, classRequestDead},
		{10168, classRequestDead},
		{502, classFatal},
		{504, classFatal},
		{1100, classFatal},
		{1300, classFatal},
		// Unknown codes must wake the waiter rather than leave it hung.
		{99999, classRequestFailed},
		{0, classRequestFailed},
	}
	for _, tt := range tests {
		if got := classify(tt.code); got != tt.want {
			t.Errorf("classify(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestPermissionCodesAreRequestScoped(t *testing.T) {
	// Every entitlement code must also resolve the request it names, or
	// the caller would block for the full timeout on each denied symbol.
	for code := range permissionCodes {
		if c := classify(code); c != classRequestDead && c != classRequestFailed {
			t.Errorf("classify(%d) = %v, want a request-scoped class", code, c)
		}
	}
}

func TestRequestErrorMessage(t *testing.T) {
	err := &RequestError{Code: 200, Msg: "No security definition has been found"}
	want := "gateway error 200: No security definition has been found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrNoSecurityDef) {
		t.Error("code 200 does not match ErrNoSecurityDef")
	}
	if errors.Is(&RequestError{Code: 321}, ErrNoSecurityDef) {
		t.Error("code 321 matched ErrNoSecurityDef")
	}
}
