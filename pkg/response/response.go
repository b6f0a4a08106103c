package response

import (
	"net/http"

	"RescueDesk/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Body 统一响应体
type Body struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
	Data    any    `json:"data,omitempty"`
}

// Success 200 成功响应
func Success(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusOK, Body{Success: true, Code: http.StatusOK, Msg: msg, Data: data})
}

// Fail 400 失败响应
func Fail(c *gin.Context, msg string, data any) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Body{Code: http.StatusBadRequest, Msg: msg, Data: data})
}

// Error 按错误码映射 HTTP 状态
func Error(c *gin.Context, err error) {
	code := errors.GetCode(err)
	c.AbortWithStatusJSON(HTTPStatus(code), Body{Code: code, Msg: err.Error()})
}

// HTTPStatus 错误码到 HTTP 状态
func HTTPStatus(code int) int {
	switch code {
	case errors.CodeInvalidArgument, errors.CodeMalformedRow:
		return http.StatusBadRequest
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeRejected:
		return http.StatusConflict
	case errors.CodeSchemaMismatch:
		return http.StatusUnprocessableEntity
	case errors.CodeTransientFetch:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
