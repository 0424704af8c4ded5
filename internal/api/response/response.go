package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the JSON envelope every REST endpoint of the game server
// answers with. Extras carries the payload: an account, a token, a room list
// or an error message.
type Response struct {
	Success bool `json:"success"`
	Code    int  `json:"code"`
	Extras  any  `json:"extras"`
}

func NewResponse(success bool, code int, extras any) Response {
	return Response{
		Success: success,
		Code:    code,
		Extras:  extras,
	}
}

// SuccessResponseList wraps rooms, finished matches or player names as
// {"list": [...]}.
func SuccessResponseList[T []any | map[string]any](c *gin.Context, list T) {
	SuccessResponse(c, map[string]any{"list": list})
}

// SuccessResponse answers 200 with extras as the payload.
func SuccessResponse(c *gin.Context, extras any) {
	c.JSON(http.StatusOK, NewResponse(true, http.StatusOK, extras))
}

// ErrorResponse answers code with {"message": ...}. Messages are the error
// texts of the account service, e.g. "username already taken".
func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, NewResponse(false, code, map[string]any{"message": message}))
}
