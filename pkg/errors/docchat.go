package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

func init() {
	RegisterService(ServiceDocChat, "docchat")
}

// Document chat service errors.
var (
	// ErrQuestionInvalid indicates the question is blank or too long.
	ErrQuestionInvalid = NewRequestError(ServiceDocChat, 0).
				Message("Invalid question", "问题无效").
				MustBuild()

	// ErrDocumentInvalid indicates the uploaded document is rejected.
	ErrDocumentInvalid = NewRequestError(ServiceDocChat, 1).
				Message("Invalid document", "文档无效").
				MustBuild()

	// ErrExtraction indicates PDF text extraction failed.
	ErrExtraction = NewBuilder(ServiceDocChat, CategoryRequest, 2).
			HTTP(http.StatusUnprocessableEntity).
			GRPC(codes.InvalidArgument).
			Message("Document text extraction failed", "文档文本提取失败").
			MustBuild()

	// ErrContextTooLong indicates the composed prompt exceeds the model window.
	ErrContextTooLong = NewBuilder(ServiceDocChat, CategoryRequest, 3).
				HTTP(http.StatusBadRequest).
				GRPC(codes.InvalidArgument).
				Message("Context too long for the model", "上下文超出模型限制").
				MustBuild()

	// ErrSessionNotFound indicates the session does not exist or was removed.
	ErrSessionNotFound = NewNotFoundError(ServiceDocChat, 0).
				Message("Session not found", "会话不存在").
				MustBuild()

	// ErrDocumentNotFound indicates no stored document matches.
	ErrDocumentNotFound = NewNotFoundError(ServiceDocChat, 1).
				Message("Document not found", "文档不存在").
				MustBuild()

	// ErrProviderNotFound indicates an unknown model provider name.
	ErrProviderNotFound = NewNotFoundError(ServiceDocChat, 2).
				Message("Model provider not found", "模型供应商不存在").
				MustBuild()

	// ErrSessionClosed indicates an operation on a closed session.
	ErrSessionClosed = NewBuilder(ServiceDocChat, CategoryConflict, 0).
				HTTP(http.StatusConflict).
				GRPC(codes.FailedPrecondition).
				Message("Session is closed", "会话已关闭").
				MustBuild()

	// ErrSessionBusy indicates the session question queue is full.
	ErrSessionBusy = NewRateLimitError(ServiceDocChat, 0).
			Message("Session is busy, try again later", "会话繁忙，请稍后重试").
			MustBuild()

	// ErrModelRateLimited indicates the model provider throttled the request.
	ErrModelRateLimited = NewRateLimitError(ServiceDocChat, 1).
				Message("Model provider rate limited", "模型供应商限流").
				MustBuild()

	// ErrEmbedding indicates an embedding provider failure.
	ErrEmbedding = NewBuilder(ServiceDocChat, CategoryNetwork, 0).
			HTTP(http.StatusBadGateway).
			GRPC(codes.Unavailable).
			Message("Embedding provider failed", "向量化供应商调用失败").
			MustBuild()

	// ErrGeneration indicates a chat provider failure.
	ErrGeneration = NewBuilder(ServiceDocChat, CategoryNetwork, 1).
			HTTP(http.StatusBadGateway).
			GRPC(codes.Unavailable).
			Message("Answer generation failed", "回答生成失败").
			MustBuild()

	// ErrModelUnavailable indicates the model provider is unreachable or overloaded.
	ErrModelUnavailable = NewNetworkError(ServiceDocChat, 2).
				Message("Model provider unavailable", "模型供应商不可用").
				MustBuild()

	// ErrCapacity indicates the session registry is at capacity.
	ErrCapacity = NewNetworkError(ServiceDocChat, 3).
			Message("Session capacity reached", "会话容量已满").
			MustBuild()

	// ErrAnswerTimeout indicates the per-question deadline was exceeded.
	ErrAnswerTimeout = NewTimeoutError(ServiceDocChat, 0).
				Message("Answer timed out", "回答超时").
				MustBuild()

	// ErrSessionCreateTimeout indicates the session creation deadline was
	// exceeded while embedding the document.
	ErrSessionCreateTimeout = NewTimeoutError(ServiceDocChat, 1).
				Message("Session creation timed out", "会话创建超时").
				MustBuild()
)
