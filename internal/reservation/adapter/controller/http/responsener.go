package httpctl

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/flashsale/reservation-engine/internal/reservation/domain/apperror"
)

type successResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

type ErrorResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func SuccessResp(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(successResponse{
		Status:  status,
		Message: message,
		Data:    data,
	})
}

// HandleError maps an apperror.Error onto its HTTP status per the error
// taxonomy; anything that isn't one (a bug, a driver panic recovered
// upstream) falls back to 500 rather than leaking internals.
func HandleError(c *fiber.Ctx, err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return c.Status(appErr.Code.HTTPStatus()).JSON(ErrorResponse{
			Status:  appErr.Code.HTTPStatus(),
			Code:    string(appErr.Code),
			Message: appErr.Message,
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Status:  fiber.StatusInternalServerError,
		Code:    string(apperror.CodeStateInvariantViolated),
		Message: "something went wrong",
	})
}
