package handler

import (
	"bufio"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"api-tracking/internal/delivery/http/middleware"
)

// SampleHandler serves the demo endpoints that run behind request tracking
type SampleHandler struct{}

func NewSampleHandler() *SampleHandler {
	return &SampleHandler{}
}

// JSON returns a fixed JSON document
func (h *SampleHandler) JSON(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"get": "response"})
}

// Echo returns the decoded request payload. A body that does not match its
// content type is a 400.
func (h *SampleHandler) Echo(c *fiber.Ctx) error {
	data, err := middleware.RequestData(c)
	if err != nil {
		return err
	}
	if data == nil {
		data = fiber.Map{}
	}
	return c.JSON(data)
}

// Message answers with a plain JSON string, e.g. "with logging"
func (h *SampleHandler) Message(c *fiber.Ctx) error {
	return c.JSON(c.Query("message", "with logging"))
}

// Sensitive returns fields that are expected to be redacted in the log
func (h *SampleHandler) Sensitive(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"my_field": "secret", "api_key": "k-123", "other": "x"})
}

// Stream writes a chunked body the logger must not consume
func (h *SampleHandler) Stream(c *fiber.Ctx) error {
	count := c.QueryInt("count", 3)
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		for i := 0; i < count; i++ {
			fmt.Fprintf(w, "data: chunk %d\n\n", i)
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	return nil
}

// Error fails with an unclassified error, rendered as a 500
func (h *SampleHandler) Error(c *fiber.Ctx) error {
	return errors.New("with logging")
}

// Status responds with ?code= without returning a Go error
func (h *SampleHandler) Status(c *fiber.Ctx) error {
	code := c.QueryInt("code", fiber.StatusOK)
	if code < 200 || code > 599 {
		return fiber.NewError(fiber.StatusBadRequest, "code must be between 200 and 599")
	}
	return c.Status(code).JSON(fiber.Map{"detail": fmt.Sprintf("responded with %d", code)})
}

// Panic never returns
func (h *SampleHandler) Panic(c *fiber.Ctx) error {
	panic("sample handler panic")
}

// Slow sleeps for ?ms= milliseconds before answering
func (h *SampleHandler) Slow(c *fiber.Ctx) error {
	ms := c.QueryInt("ms", 0)
	if ms > 5000 {
		ms = 5000
	}
	time.Sleep(time.Duration(ms) * time.Millisecond)
	return c.JSON(fiber.Map{"slept_ms": ms})
}
