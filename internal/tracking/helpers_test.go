package tracking

import (
	"context"
	"sync"
	"time"

	"api-tracking/internal/domain/entity"
	"api-tracking/internal/domain/repository"
)

type fakeRequest struct {
	method string
	path   string
	user   *string
	query  map[string]string
	body   *LazyBody
}

func (r *fakeRequest) Method() string                 { return r.method }
func (r *fakeRequest) Path() string                   { return r.path }
func (r *fakeRequest) ViewName() string               { return "sample" }
func (r *fakeRequest) Host() string                   { return "example.test" }
func (r *fakeRequest) RemoteAddr() string             { return "10.0.0.1" }
func (r *fakeRequest) QueryParams() map[string]string { return r.query }
func (r *fakeRequest) User() *string                  { return r.user }
func (r *fakeRequest) Body() *LazyBody                { return r.body }

func get(path string) *fakeRequest  { return &fakeRequest{method: "GET", path: path} }
func post(path string) *fakeRequest { return &fakeRequest{method: "POST", path: path} }

type fakeResponse struct {
	status      int
	contentType string
	body        string
	streaming   bool
}

func (r *fakeResponse) StatusCode() int     { return r.status }
func (r *fakeResponse) ContentType() string { return r.contentType }
func (r *fakeResponse) Streaming() bool     { return r.streaming }
func (r *fakeResponse) Body() []byte        { return []byte(r.body) }

func jsonResponse(status int, body string) *fakeResponse {
	return &fakeResponse{status: status, contentType: "application/json", body: body}
}

func respond(resp Response, err error) func() (Response, error) {
	return func() (Response, error) { return resp, err }
}

// memoryPersister records everything it is given
type memoryPersister struct {
	mu   sync.Mutex
	recs []entity.RequestLog
	err  error
}

func (p *memoryPersister) Persist(_ context.Context, rec entity.RequestLog) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.recs = append(p.recs, rec)
	return nil
}

func (p *memoryPersister) records() []entity.RequestLog {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]entity.RequestLog(nil), p.recs...)
}

// memoryRepository is an in-process RequestLogRepository
type memoryRepository struct {
	mu     sync.Mutex
	logs   []*entity.RequestLog
	err    error
	cutoff time.Time
}

var _ repository.RequestLogRepository = (*memoryRepository)(nil)

func (r *memoryRepository) Save(_ context.Context, log *entity.RequestLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.logs = append(r.logs, log)
	return nil
}

func (r *memoryRepository) FindByID(context.Context, string) (*entity.RequestLog, error) {
	return nil, repository.ErrLogNotFound
}

func (r *memoryRepository) Find(context.Context, entity.RequestLogFilter) ([]*entity.RequestLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*entity.RequestLog(nil), r.logs...), nil
}

func (r *memoryRepository) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.cutoff = cutoff
	kept := r.logs[:0]
	var deleted int64
	for _, l := range r.logs {
		if l.RequestedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, l)
	}
	r.logs = kept
	return deleted, nil
}

func (r *memoryRepository) Ping(context.Context) error { return r.err }

// stepClock advances by step on every call
func stepClock(start time.Time, step time.Duration) Clock {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(step)
		return t
	}
}
