// Package handler provides HTTP and WebSocket handlers for the docchat service.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docchat/pkg/errors"
)

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// WriteSuccess writes the standard success envelope.
func WriteSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: data})
}

// WriteError maps a service error onto its HTTP status and envelope.
func WriteError(c *gin.Context, err error) {
	e := errors.FromError(err)
	resp := ErrorResponse{Code: e.Code, Message: e.Message("en")}
	if cause := e.Unwrap(); cause != nil {
		resp.Error = cause.Error()
	}
	c.JSON(e.HTTPStatus(), resp)
}
