// Package dto holds the request and response shapes of the HTTP surface.
package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/invoicer/pkg/errors"
	"github.com/turtacn/invoicer/pkg/utils"
)

// SendError writes err as a JSON error body with its HTTP status.
func SendError(c *gin.Context, err error) {
	c.JSON(errors.HTTPStatus(err), errors.ToErrorResponse(err))
}

// SendValidationError writes a 422 with per field messages for a binding error.
func SendValidationError(c *gin.Context, err error) {
	details := utils.ValidationDetails(err)
	if details == nil {
		SendError(c, errors.ErrInvalidRequest("The request body is invalid."))
		return
	}
	c.JSON(http.StatusUnprocessableEntity, errors.ErrorResponse{Message: "The given data was invalid.", Errors: details})
}
