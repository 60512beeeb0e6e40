package errors

import (
	"net/http"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestRegisterService(t *testing.T) {
	// Register a new service
	RegisterService(99, "test-service")

	// Get service name
	name, ok := GetServiceName(99)
	if !ok {
		t.Error("GetServiceName should find registered service")
	}
	if name != "test-service" {
		t.Errorf("GetServiceName() = %q, want %q", name, "test-service")
	}

	// Register same code with same name should not panic
	RegisterService(99, "test-service")

	// Register same code with different name should panic
	defer func() {
		if r := recover(); r == nil {
			t.Error("RegisterService should panic on conflict")
		}
	}()
	RegisterService(99, "different-service")
}

func TestBuilderBuild(t *testing.T) {
	// Use a unique service code to avoid conflicts with registered errors
	const testService = 80

	e, err := NewBuilder(testService, CategoryRequest, 100).
		HTTP(http.StatusBadRequest).
		GRPC(codes.InvalidArgument).
		Message("Test error", "测试错误").
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	if e.Code != MakeCode(testService, CategoryRequest, 100) {
		t.Errorf("Code = %d, want %d", e.Code, MakeCode(testService, CategoryRequest, 100))
	}
	if e.HTTP != http.StatusBadRequest {
		t.Errorf("HTTP = %d, want %d", e.HTTP, http.StatusBadRequest)
	}
	if e.GRPCCode != codes.InvalidArgument {
		t.Errorf("GRPCCode = %v, want %v", e.GRPCCode, codes.InvalidArgument)
	}
	if e.MessageEN != "Test error" {
		t.Errorf("MessageEN = %q, want %q", e.MessageEN, "Test error")
	}
	if e.MessageZH != "测试错误" {
		t.Errorf("MessageZH = %q, want %q", e.MessageZH, "测试错误")
	}
}

func TestBuilderBuildRequiresMessage(t *testing.T) {
	_, err := NewBuilder(80, CategoryRequest, 101).Build()
	if err == nil {
		t.Error("Build() without English message should fail")
	}
}

func TestBuilderBuildDuplicate(t *testing.T) {
	const testService = 80

	_, err := NewBuilder(testService, CategoryInternal, 200).
		MessageEN("First").Build()
	if err != nil {
		t.Fatalf("first Build() failed: %v", err)
	}

	_, err = NewBuilder(testService, CategoryInternal, 200).
		MessageEN("Second").Build()
	if err == nil {
		t.Error("Build() with duplicate code should fail")
	}
}

func TestBuilderDefaults(t *testing.T) {
	e := NewBuilder(80, CategoryInternal, 201).
		MessageEN("Defaulted").MustBuild()

	if e.HTTP != http.StatusInternalServerError {
		t.Errorf("default HTTP = %d, want %d", e.HTTP, http.StatusInternalServerError)
	}
	if e.GRPCCode != codes.Internal {
		t.Errorf("default GRPCCode = %v, want %v", e.GRPCCode, codes.Internal)
	}
}

func TestPresetBuilders(t *testing.T) {
	tests := []struct {
		name     string
		errno    *Errno
		wantHTTP int
		wantGRPC codes.Code
	}{
		{"request", NewRequestError(81, 0).MessageEN("r").MustBuild(), http.StatusBadRequest, codes.InvalidArgument},
		{"notfound", NewNotFoundError(81, 0).MessageEN("n").MustBuild(), http.StatusNotFound, codes.NotFound},
		{"ratelimit", NewRateLimitError(81, 0).MessageEN("l").MustBuild(), http.StatusTooManyRequests, codes.ResourceExhausted},
		{"internal", NewInternalError(81, 0).MessageEN("i").MustBuild(), http.StatusInternalServerError, codes.Internal},
		{"network", NewNetworkError(81, 0).MessageEN("u").MustBuild(), http.StatusServiceUnavailable, codes.Unavailable},
		{"timeout", NewTimeoutError(81, 0).MessageEN("t").MustBuild(), http.StatusGatewayTimeout, codes.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.errno.HTTP != tt.wantHTTP {
				t.Errorf("HTTP = %d, want %d", tt.errno.HTTP, tt.wantHTTP)
			}
			if tt.errno.GRPCCode != tt.wantGRPC {
				t.Errorf("GRPCCode = %v, want %v", tt.errno.GRPCCode, tt.wantGRPC)
			}
		})
	}
}
