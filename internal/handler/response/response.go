package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wallet-signer/pkg/errno"
)

// Response defines the standard JSON structure
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"msg"`
	Data    interface{} `json:"data"`
}

// Success returns a success response with data
func Success(c *gin.Context, data interface{}) {
	if data == nil {
		data = gin.H{} // Return empty object instead of null
	}
	c.JSON(http.StatusOK, Response{
		Code:    errno.OK.Code,
		Message: errno.OK.Message,
		Data:    data,
	})
}

// Error returns an error response; node errors keep their JSON-RPC code and data.
func Error(c *gin.Context, err error) {
	code, msg := errno.Decode(err)

	var data interface{} = gin.H{}
	var rpcErr *errno.RPCError
	if errors.As(err, &rpcErr) {
		data = rpcErr
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: msg,
		Data:    data,
	})
}
