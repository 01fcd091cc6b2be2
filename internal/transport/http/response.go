package http

import (
	"github.com/gin-gonic/gin"
)

// envelope is the body of every REST response.
type envelope struct {
	Data  any        `json:"data"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    ErrCode `json:"code"`
	Message string  `json:"message"`
}

func success(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Data: data})
}

func failCode(c *gin.Context, status int, code ErrCode, message string) {
	c.AbortWithStatusJSON(status, envelope{Error: &errorBody{Code: code, Message: message}})
}

// fail reports err with the status and code its kind maps to. Internal
// failures are logged; their message is not exposed.
func (h *AdminHandler) fail(c *gin.Context, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status >= 500 {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		if code == CodeInternal {
			msg = "internal error"
		}
	} else {
		h.log.Warn().Err(err).Str("path", c.FullPath()).Msg("request rejected")
	}
	failCode(c, status, code, msg)
}
