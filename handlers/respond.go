package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"tournament-ledger/services"
	"tournament-ledger/utils"
)

type Meta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// Response is the JSON envelope of every endpoint.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

var validate = validator.New()

var statusByKind = map[services.ErrorKind]int{
	services.KindInsufficientFunds: fiber.StatusPaymentRequired,
	services.KindAlreadyJoined:     fiber.StatusConflict,
	services.KindMatchFull:         fiber.StatusConflict,
	services.KindSlotTaken:         fiber.StatusConflict,
	services.KindNotPending:        fiber.StatusConflict,
	services.KindMatchLocked:       fiber.StatusLocked,
	services.KindNotFound:          fiber.StatusNotFound,
	services.KindSignatureInvalid:  fiber.StatusBadRequest,
	services.KindInvalidAmount:     fiber.StatusBadRequest,
	services.KindInvalidSlot:       fiber.StatusBadRequest,
	services.KindInvalidInput:      fiber.StatusBadRequest,
	services.KindNotTeamLeader:     fiber.StatusForbidden,
	services.KindPlayerBanned:      fiber.StatusForbidden,
	services.KindTransient:         fiber.StatusServiceUnavailable,
	services.KindTimeout:           fiber.StatusGatewayTimeout,
}

func writeSuccess(c *fiber.Ctx, code int, message string, data any) error {
	return c.Status(code).JSON(Response{Success: true, Message: message, Data: data})
}

func writeSuccessWithMeta(c *fiber.Ctx, message string, data any, meta *Meta) error {
	return c.Status(fiber.StatusOK).JSON(Response{Success: true, Message: message, Data: data, Meta: meta})
}

// writeError maps a service error to its status. Unexpected errors are
// logged and answered with a generic message.
func writeError(c *fiber.Ctx, err error) error {
	kind := services.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		utils.Errorf("❌ %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(Response{
			Success: false,
			Message: "request failed",
			Error:   "internal error",
			Kind:    string(services.KindInternal),
		})
	}
	message := err.Error()
	if kind == services.KindTransient || kind == services.KindTimeout {
		message = "temporarily unavailable, please retry"
	}
	return c.Status(status).JSON(Response{
		Success: false,
		Message: "request failed",
		Error:   message,
		Kind:    string(kind),
	})
}

// bind parses the JSON body into out and runs struct validation.
func bind(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("%w: invalid JSON body", services.ErrInvalidInput)
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s", services.ErrInvalidInput, formatValidationError(verrs[0]))
		}
		return fmt.Errorf("%w: %v", services.ErrInvalidInput, err)
	}
	return nil
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", e.Field(), e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", e.Field(), e.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", e.Field(), e.Tag())
	}
}

func queryInt(c *fiber.Ctx, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return def
}
