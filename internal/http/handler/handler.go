// Package handler maps HTTP and websocket routes onto queue engine operations.
package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"liveline/internal/config"
	"liveline/internal/helper"
	"liveline/internal/queue"
	"liveline/internal/realtime"
)

type Handler struct {
	engine   *queue.Engine
	broker   *realtime.Broker
	signer   *config.TicketSigner
	validate *validator.Validate
	clients  *clientRegistry
	log      logrus.FieldLogger
}

func New(engine *queue.Engine, broker *realtime.Broker, signer *config.TicketSigner, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		engine:   engine,
		broker:   broker,
		signer:   signer,
		validate: newValidator(),
		clients:  newClientRegistry(),
		log:      log.WithField("component", "http"),
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	// "clock" accepts HH:MM or HH:MM:SS
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := helper.NormalizeClock(fl.Field().String())
		return err == nil
	})
	return v
}

/*
|--------------------------------------------------------------------------
| Request & Response Helpers
|--------------------------------------------------------------------------
*/

// bind parses the JSON body into req and validates it. An empty body is
// accepted for requests whose fields are all optional.
func (h *Handler) bind(c *fiber.Ctx, req interface{}) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(req); err != nil {
			return fmt.Errorf("invalid request body: %w", queue.ErrInvalidInput)
		}
	}
	return h.check(req)
}

func (h *Handler) check(req interface{}) error {
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%s: %w", describe(verrs), queue.ErrInvalidInput)
		}
		return fmt.Errorf("%v: %w", err, queue.ErrInvalidInput)
	}
	return nil
}

func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

// statusFor maps engine failures to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, queue.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, queue.ErrInvalidTransition), errors.Is(err, queue.ErrQueuePaused):
		return fiber.StatusConflict
	case errors.Is(err, queue.ErrQueueClosed), errors.Is(err, queue.ErrCapabilityDisabled):
		return fiber.StatusForbidden
	case errors.Is(err, queue.ErrConcurrencyConflict):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{
			"method": c.Method(),
			"path":   c.Path(),
		}).Error("request failed")
		msg = "Internal server error"
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// empty answers an operation that found nothing to act on.
func empty(c *fiber.Ctx, message string) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    nil,
		"message": message,
	})
}
