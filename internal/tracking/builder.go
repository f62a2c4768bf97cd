package tracking

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"api-tracking/internal/domain/entity"
)

// outcome is what the handler invocation left behind
type outcome struct {
	resp      Response
	err       error
	panicked  bool
	recovered any
	stack     []byte
}

type recordBuilder struct {
	decodeBody bool
	logger     *zap.Logger
}

// build assembles a record from whatever is available. It never fails:
// missing pieces are left empty.
func (b *recordBuilder) build(req Request, timer *Timer, out outcome) entity.RequestLog {
	rec := entity.RequestLog{
		RequestedAt:        timer.Started(),
		ResponseMs:         timer.ElapsedMs(),
		Path:               req.Path(),
		ViewName:           req.ViewName(),
		ViewMethod:         strings.ToLower(req.Method()),
		Host:               req.Host(),
		Method:             req.Method(),
		RemoteAddr:         req.RemoteAddr(),
		QueryParams:        req.QueryParams(),
		UsernamePersistent: entity.AnonymousUser,
	}

	if user := req.User(); user != nil {
		u := *user
		rec.User = &u
		rec.UsernamePersistent = u
	}

	if b.decodeBody {
		if body := req.Body(); body != nil {
			data, err := body.Data()
			if err != nil {
				b.logger.Debug("Request body not decodable, data left empty",
					zap.String("path", rec.Path),
					zap.Error(err),
				)
			} else if len(data) > 0 {
				rec.RequestData = data
			}
		}
	}

	switch {
	case out.panicked:
		rec.StatusCode = entity.StatusUnhandled
		rec.Errors = &entity.ErrorInfo{
			Type:    fmt.Sprintf("%T", out.recovered),
			Message: fmt.Sprint(out.recovered),
			Status:  entity.StatusUnhandled,
			Detail:  string(out.stack),
		}
	case out.err != nil:
		rec.StatusCode = http.StatusInternalServerError
		if out.resp != nil {
			rec.StatusCode = out.resp.StatusCode()
			rec.ResponseData = ResponseData(out.resp)
			rec.Streamed = out.resp.Streaming()
		}
		rec.Errors = &entity.ErrorInfo{
			Type:    fmt.Sprintf("%T", out.err),
			Message: out.err.Error(),
			Status:  rec.StatusCode,
		}
	case out.resp != nil:
		rec.StatusCode = out.resp.StatusCode()
		rec.ResponseData = ResponseData(out.resp)
		rec.Streamed = out.resp.Streaming()
		if rec.StatusCode >= 400 {
			rec.Errors = &entity.ErrorInfo{
				Type:    "HTTPError",
				Message: http.StatusText(rec.StatusCode),
				Status:  rec.StatusCode,
				Detail:  rec.ResponseData,
			}
		}
	default:
		rec.StatusCode = entity.StatusUnhandled
	}

	return rec
}

func captureStack() []byte {
	return debug.Stack()
}
