package middleware

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"api-tracking/internal/tracking"
)

const (
	bodyKey = "tracking.body"
	// UserKey holds the authenticated username in fiber locals
	UserKey = "tracking.user"
)

// Tracking logs every request that passes through it. Handler errors are
// returned unchanged so the app's ErrorHandler still renders them, and
// panics propagate to the recover middleware after being recorded.
func Tracking(i *tracking.Interceptor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := tracking.NewLazyBody(func() (map[string]any, error) {
			return decodeBody(c)
		})
		c.Locals(bodyKey, body)

		_, err := i.Intercept(c.UserContext(), &fiberRequest{c: c, body: body}, func() (tracking.Response, error) {
			err := c.Next()
			return captureResponse(c, err), err
		})
		return err
	}
}

// RequestData returns the decoded request payload. Decoding happens once
// per request; a body that does not match its content type yields a 400.
func RequestData(c *fiber.Ctx) (map[string]any, error) {
	if body, ok := c.Locals(bodyKey).(*tracking.LazyBody); ok {
		return body.Data()
	}
	return decodeBody(c)
}

// Identify stores the caller named in header as the request user
func Identify(header string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if name := c.Get(header); name != "" {
			c.Locals(UserKey, utils.CopyString(name))
		}
		return c.Next()
	}
}

func decodeBody(c *fiber.Ctx) (map[string]any, error) {
	raw := c.Body()
	if len(raw) == 0 {
		return nil, nil
	}

	ct := strings.ToLower(utils.ParseVendorSpecificContentType(string(c.Request().Header.ContentType())))
	switch {
	case strings.HasPrefix(ct, fiber.MIMEApplicationJSON):
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "JSON parse error - "+err.Error())
		}
		m, _ := v.(map[string]any)
		return m, nil

	case strings.HasPrefix(ct, fiber.MIMEApplicationForm):
		data := make(map[string]any)
		c.Request().PostArgs().VisitAll(func(k, v []byte) {
			data[string(k)] = string(v)
		})
		return data, nil

	case strings.HasPrefix(ct, fiber.MIMEMultipartForm):
		form, err := c.MultipartForm()
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Multipart form parse error - "+err.Error())
		}
		data := make(map[string]any, len(form.Value)+len(form.File))
		for k, v := range form.Value {
			data[k] = firstOrAll(v)
		}
		for k, files := range form.File {
			names := make([]string, len(files))
			for i, f := range files {
				names[i] = f.Filename
			}
			data[k] = firstOrAll(names)
		}
		return data, nil
	}

	// Unsupported content types are simply not captured
	return nil, nil
}

func firstOrAll(v []string) any {
	if len(v) == 1 {
		return v[0]
	}
	out := make([]any, len(v))
	for i, s := range v {
		out[i] = s
	}
	return out
}

// captureResponse snapshots the response. The stream of a streaming body is
// never read.
func captureResponse(c *fiber.Ctx, err error) tracking.Response {
	res := c.Response()
	out := &fiberResponse{
		status:      res.StatusCode(),
		contentType: string(res.Header.ContentType()),
		streaming:   res.IsBodyStream(),
	}
	if !out.streaming {
		out.body = append([]byte(nil), res.Body()...)
	}

	if err != nil {
		out.status = fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			out.status = fe.Code
		}
	}
	return out
}

type fiberResponse struct {
	status      int
	contentType string
	streaming   bool
	body        []byte
}

func (r *fiberResponse) StatusCode() int     { return r.status }
func (r *fiberResponse) ContentType() string { return r.contentType }
func (r *fiberResponse) Streaming() bool     { return r.streaming }
func (r *fiberResponse) Body() []byte        { return r.body }

// fiberRequest copies every value it returns; fasthttp reuses its buffers
// once the handler chain finishes.
type fiberRequest struct {
	c    *fiber.Ctx
	body *tracking.LazyBody
}

func (r *fiberRequest) Method() string     { return utils.CopyString(r.c.Method()) }
func (r *fiberRequest) Path() string       { return utils.CopyString(r.c.Path()) }
func (r *fiberRequest) Host() string       { return utils.CopyString(r.c.Hostname()) }
func (r *fiberRequest) RemoteAddr() string { return utils.CopyString(r.c.IP()) }

func (r *fiberRequest) ViewName() string {
	route := r.c.Route()
	if route.Name != "" {
		return route.Name
	}
	return route.Path
}

func (r *fiberRequest) QueryParams() map[string]string {
	q := r.c.Queries()
	if len(q) == 0 {
		return nil
	}
	out := make(map[string]string, len(q))
	for k, v := range q {
		out[utils.CopyString(k)] = utils.CopyString(v)
	}
	return out
}

func (r *fiberRequest) User() *string {
	if name, ok := r.c.Locals(UserKey).(string); ok && name != "" {
		return &name
	}
	return nil
}

func (r *fiberRequest) Body() *tracking.LazyBody {
	return r.body
}
