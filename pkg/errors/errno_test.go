package errors

import (
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestMakeCode(t *testing.T) {
	tests := []struct {
		service  int
		category int
		sequence int
		expected int
	}{
		{0, 0, 0, 0},
		{0, 1, 1, 1001},
		{0, 2, 0, 2000},
		{20, 4, 1, 2004001},
		{20, 1, 3, 2001003},
		{90, 7, 1, 9007001},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d_%d", tt.service, tt.category, tt.sequence), func(t *testing.T) {
			got := MakeCode(tt.service, tt.category, tt.sequence)
			if got != tt.expected {
				t.Errorf("MakeCode(%d, %d, %d) = %d, want %d",
					tt.service, tt.category, tt.sequence, got, tt.expected)
			}
		})
	}
}

func TestParseCode(t *testing.T) {
	tests := []struct {
		code             int
		expectedService  int
		expectedCategory int
		expectedSequence int
	}{
		{0, 0, 0, 0},
		{1001, 0, 1, 1},
		{2004001, 20, 4, 1},
		{9007001, 90, 7, 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.code), func(t *testing.T) {
			service, category, sequence := ParseCode(tt.code)
			if service != tt.expectedService || category != tt.expectedCategory || sequence != tt.expectedSequence {
				t.Errorf("ParseCode(%d) = (%d, %d, %d), want (%d, %d, %d)",
					tt.code, service, category, sequence,
					tt.expectedService, tt.expectedCategory, tt.expectedSequence)
			}
		})
	}
}

func TestIsClientError(t *testing.T) {
	// Request errors (category 1)
	if !IsClientError(ErrQuestionInvalid.Code) {
		t.Error("IsClientError for a request error should be true")
	}
	// Rate limit errors (category 6)
	if !IsClientError(ErrSessionBusy.Code) {
		t.Error("IsClientError for a rate limit error should be true")
	}
	// Internal errors (category 7)
	if IsClientError(ErrInternal.Code) {
		t.Error("IsClientError for an internal error should be false")
	}
}

func TestIsServerError(t *testing.T) {
	if !IsServerError(ErrGeneration.Code) {
		t.Error("IsServerError for a network error should be true")
	}
	if !IsServerError(ErrAnswerTimeout.Code) {
		t.Error("IsServerError for a timeout error should be true")
	}
	if IsServerError(ErrQuestionInvalid.Code) {
		t.Error("IsServerError for a request error should be false")
	}
}

func TestErrnoError(t *testing.T) {
	err := ErrInvalidParam
	expected := "errno 1001: Invalid parameter"
	if got := err.Error(); got != expected {
		t.Errorf("Error() = %q, want %q", got, expected)
	}
}

func TestErrnoErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("underlying error")
	err := ErrEmbedding.WithCause(cause)

	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the cause")
	}

	if err.Code != ErrEmbedding.Code {
		t.Error("WithCause should preserve the code")
	}
}

func TestErrnoWithMessage(t *testing.T) {
	err := ErrQuestionInvalid.WithMessage("question is blank")

	if err.MessageEN != "question is blank" {
		t.Errorf("WithMessage should set MessageEN, got %q", err.MessageEN)
	}

	if err.Code != ErrQuestionInvalid.Code {
		t.Error("WithMessage should preserve the code")
	}
}

func TestErrnoWithMessagef(t *testing.T) {
	err := ErrQuestionInvalid.WithMessagef("question exceeds %d characters", 2000)
	expected := "question exceeds 2000 characters"

	if err.MessageEN != expected {
		t.Errorf("WithMessagef should set MessageEN to %q, got %q", expected, err.MessageEN)
	}
}

func TestErrnoMessage(t *testing.T) {
	err := &Errno{
		Code:      1001,
		MessageEN: "English message",
		MessageZH: "中文消息",
	}

	// Test English
	if got := err.Message("en"); got != "English message" {
		t.Errorf("Message(en) = %q, want %q", got, "English message")
	}

	// Test Chinese
	if got := err.Message("zh"); got != "中文消息" {
		t.Errorf("Message(zh) = %q, want %q", got, "中文消息")
	}

	if got := err.Message("zh-CN"); got != "中文消息" {
		t.Errorf("Message(zh-CN) = %q, want %q", got, "中文消息")
	}
}

func TestErrnoHTTPStatus(t *testing.T) {
	if got := ErrQuestionInvalid.HTTPStatus(); got != http.StatusBadRequest {
		t.Errorf("HTTPStatus() = %d, want %d", got, http.StatusBadRequest)
	}

	if got := ErrSessionNotFound.HTTPStatus(); got != http.StatusNotFound {
		t.Errorf("HTTPStatus() = %d, want %d", got, http.StatusNotFound)
	}

	if got := ErrAnswerTimeout.HTTPStatus(); got != http.StatusGatewayTimeout {
		t.Errorf("HTTPStatus() = %d, want %d", got, http.StatusGatewayTimeout)
	}
}

func TestErrnoGRPCStatus(t *testing.T) {
	if got := ErrQuestionInvalid.GRPCStatus(); got != codes.InvalidArgument {
		t.Errorf("GRPCStatus() = %v, want %v", got, codes.InvalidArgument)
	}

	if got := ErrModelUnavailable.GRPCStatus(); got != codes.Unavailable {
		t.Errorf("GRPCStatus() = %v, want %v", got, codes.Unavailable)
	}

	if got := ErrSessionClosed.GRPCStatus(); got != codes.FailedPrecondition {
		t.Errorf("GRPCStatus() = %v, want %v", got, codes.FailedPrecondition)
	}
}

func TestErrnoIs(t *testing.T) {
	err1 := ErrSessionClosed.WithMessage("custom")

	if !err1.Is(ErrSessionClosed) {
		t.Error("Is() should return true for same code")
	}

	if err1.Is(ErrSessionNotFound) {
		t.Error("Is() should return false for different code")
	}
}

func TestIsCode(t *testing.T) {
	err := ErrSessionBusy.WithMessage("test")

	if !IsCode(err, ErrSessionBusy.Code) {
		t.Error("IsCode should return true")
	}

	if IsCode(err, ErrNotFound.Code) {
		t.Error("IsCode should return false")
	}
}

func TestGetCode(t *testing.T) {
	err := ErrEmbedding.WithMessage("test")

	if got := GetCode(err); got != ErrEmbedding.Code {
		t.Errorf("GetCode() = %d, want %d", got, ErrEmbedding.Code)
	}

	// Test with non-Errno error
	if got := GetCode(fmt.Errorf("plain error")); got != -1 {
		t.Errorf("GetCode() for plain error = %d, want -1", got)
	}
}

func TestFromError(t *testing.T) {
	// Test with nil
	if got := FromError(nil); got != nil {
		t.Error("FromError(nil) should return nil")
	}

	// Test with Errno
	err := ErrGeneration.WithMessage("test")
	if got := FromError(err); got != err {
		t.Error("FromError should return Errno as-is")
	}

	// Test with plain error
	plainErr := fmt.Errorf("plain error")
	result := FromError(plainErr)
	if result.Code != ErrUnknown.Code {
		t.Errorf("FromError(plain) should wrap as ErrUnknown, got code %d", result.Code)
	}
	if result.Unwrap() != plainErr {
		t.Error("FromError should preserve the cause")
	}
}

func TestLookup(t *testing.T) {
	// Test existing code
	if e, ok := Lookup(ErrSessionClosed.Code); !ok || e != ErrSessionClosed {
		t.Error("Lookup should find registered errno")
	}

	// Test non-existing code
	if _, ok := Lookup(9999999); ok {
		t.Error("Lookup should return false for non-existing code")
	}
}
