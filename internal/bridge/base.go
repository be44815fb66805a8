package bridge

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the JSON body returned on any handler failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// sendError writes a standardized error response carrying err's
// message. The sshclient error kind is not included as a separate
// field; it appears only inside the message text.
func sendError(c *gin.Context, status int, err error) {
	resp := ErrorResponse{Error: err.Error()}
	c.JSON(status, resp)
}

// getPathParam fetches a required gin path parameter, returning false
// (and writing a 400) if it is missing.
func getPathParam(c *gin.Context, name string) (string, bool) {
	v := c.Param(name)
	if v == "" {
		sendError(c, http.StatusBadRequest, errMissingParam(name))
		return "", false
	}
	return v, true
}

type missingParamError struct{ name string }

func (e *missingParamError) Error() string { return "missing required path parameter: " + e.name }

func errMissingParam(name string) error { return &missingParamError{name: name} }
