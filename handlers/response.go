package handlers

import (
	"errors"
	"strings"

	"github.com/anjiri1684/homestay_booking/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var validate = validator.New()

type errorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

func respond(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(envelope{Success: true, Data: data})
}

func fail(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(envelope{
		Success: false,
		Error:   &errorBody{Code: code, Message: message, Details: details},
	})
}

func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation:
		return fiber.StatusBadRequest
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindStateConflict:
		return fiber.StatusConflict
	case services.KindPolicyViolation:
		return fiber.StatusUnprocessableEntity
	case services.KindExternalDependency:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError renders a service error. Unexpected errors are logged and
// reported without their internals.
func respondError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	var appErr *services.AppError
	if errors.As(err, &appErr) {
		if appErr.Kind == services.KindExternalDependency {
			logger.Warn("external dependency failed", zap.String("path", c.Path()), zap.Error(err))
		}
		return fail(c, statusForKind(appErr.Kind), string(appErr.Kind), appErr.Message, nil)
	}
	logger.Error("request failed", zap.String("path", c.Path()), zap.String("method", c.Method()), zap.Error(err))
	return fail(c, fiber.StatusInternalServerError, "internal_error", "Internal server error", nil)
}

// ErrorHandler renders errors that escape handlers, such as unknown routes or
// recovered panics, in the same envelope.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return fail(c, fe.Code, codeForStatus(fe.Code), fe.Message, nil)
		}
		return respondError(c, logger, err)
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return string(services.KindValidation)
	case fiber.StatusNotFound:
		return string(services.KindNotFound)
	case fiber.StatusConflict:
		return string(services.KindStateConflict)
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusForbidden:
		return "forbidden"
	case fiber.StatusUpgradeRequired:
		return "upgrade_required"
	default:
		msg := utils.StatusMessage(status)
		if msg == "" {
			return "error"
		}
		return strings.ReplaceAll(strings.ToLower(msg), " ", "_")
	}
}

// parseBody decodes and validates a JSON request body, writing the 400
// response itself when either step fails.
func parseBody(c *fiber.Ctx, dst interface{}) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, fail(c, fiber.StatusBadRequest, string(services.KindValidation), "Cannot parse JSON", nil)
	}
	if err := validate.Struct(dst); err != nil {
		return false, fail(c, fiber.StatusBadRequest, string(services.KindValidation), "Invalid request body", validationDetails(err))
	}
	return true, nil
}

func validationDetails(err error) interface{} {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, bool, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, false, fail(c, fiber.StatusBadRequest, string(services.KindValidation), "Invalid "+name, nil)
	}
	return id, true, nil
}

// actorFrom reads the caller from the JWT set by middleware.Protected.
func actorFrom(c *fiber.Ctx) (services.Actor, uuid.UUID) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return services.Actor{}, uuid.Nil
	}
	claims, _ := token.Claims.(jwt.MapClaims)
	return actorFromClaims(claims)
}

func actorFromClaims(claims jwt.MapClaims) (services.Actor, uuid.UUID) {
	userID, _ := claims["user_id"].(string)
	role, _ := claims["role"].(string)
	id, _ := uuid.Parse(userID)
	return services.Actor{ID: userID, Admin: role == "admin"}, id
}
