package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"api-tracking/internal/domain/entity"
	"api-tracking/internal/domain/repository"
)

type LogHandler struct {
	logRepo repository.RequestLogRepository
	logger  *zap.Logger
}

func NewLogHandler(logRepo repository.RequestLogRepository, logger *zap.Logger) *LogHandler {
	return &LogHandler{logRepo: logRepo, logger: logger}
}

// LogViewer serves the HTML page for browsing request logs
func (h *LogHandler) LogViewer(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(logViewerHTML)
}

// GetLogs lists logs newest first, filtered by method and status_code
func (h *LogHandler) GetLogs(c *fiber.Ctx) error {
	return h.find(c, filterFromQuery(c))
}

// SearchLogs lists logs whose path starts with ?path=
func (h *LogHandler) SearchLogs(c *fiber.Ctx) error {
	filter := filterFromQuery(c)
	if filter.Path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(entity.NewErrorResponse("INVALID_REQUEST", "path parameter required"))
	}
	return h.find(c, filter)
}

// GetLog returns one log by id
func (h *LogHandler) GetLog(c *fiber.Ctx) error {
	log, err := h.logRepo.FindByID(c.UserContext(), c.Params("id"))
	if errors.Is(err, repository.ErrLogNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(entity.NewErrorResponse("NOT_FOUND", "request log not found"))
	}
	if err != nil {
		h.logger.Error("Failed to load request log", zap.String("id", c.Params("id")), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(entity.NewErrorResponse("INTERNAL_ERROR", err.Error()))
	}

	return c.JSON(entity.NewSuccessResponse(log, "Request log retrieved"))
}

func (h *LogHandler) find(c *fiber.Ctx, filter entity.RequestLogFilter) error {
	logs, err := h.logRepo.Find(c.UserContext(), filter)
	if err != nil {
		h.logger.Error("Failed to query request logs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(entity.NewErrorResponse("INTERNAL_ERROR", err.Error()))
	}

	return c.JSON(entity.NewSuccessResponse(logs, "Request logs retrieved"))
}

func filterFromQuery(c *fiber.Ctx) entity.RequestLogFilter {
	return entity.RequestLogFilter{
		Path:       c.Query("path"),
		Method:     c.Query("method"),
		StatusCode: c.QueryInt("status_code"),
		Limit:      c.QueryInt("limit", 50),
		Offset:     c.QueryInt("offset"),
	}
}

const logViewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Request Log Viewer</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; background: #1a1a2e; color: #eee; padding: 20px; }
        h1 { color: #00d4ff; margin-bottom: 20px; }
        .search-box { margin-bottom: 20px; display: flex; gap: 10px; flex-wrap: wrap; }
        input, select { padding: 10px 14px; font-size: 15px; border: 2px solid #00d4ff; border-radius: 8px; background: #16213e; color: #fff; }
        button { padding: 10px 20px; font-size: 15px; background: #00d4ff; color: #000; border: none; border-radius: 8px; cursor: pointer; font-weight: bold; }
        table { width: 100%; border-collapse: collapse; background: #16213e; }
        th, td { padding: 10px; text-align: left; border-bottom: 1px solid #0f3460; }
        th { background: #0f3460; color: #00d4ff; position: sticky; top: 0; }
        tr:hover { background: #1f4068; cursor: pointer; }
        .ok { color: #00ff88; font-weight: bold; }
        .err { color: #ff4757; font-weight: bold; }
        .modal { display: none; position: fixed; inset: 0; background: rgba(0,0,0,0.8); }
        .modal-content { background: #16213e; margin: 5% auto; padding: 20px; border-radius: 12px; max-width: 80%; max-height: 80%; overflow: auto; }
        pre { background: #0f3460; padding: 15px; border-radius: 8px; white-space: pre-wrap; font-size: 13px; }
    </style>
</head>
<body>
    <h1>Request Log Viewer</h1>
    <div class="search-box">
        <input type="text" id="path" placeholder="Path prefix, e.g. /api/v1/sample">
        <select id="method">
            <option value="">Any method</option>
            <option>GET</option><option>POST</option><option>PUT</option><option>PATCH</option><option>DELETE</option>
        </select>
        <input type="number" id="status" placeholder="Status">
        <button onclick="load()">Search</button>
    </div>
    <div id="table"></div>
    <div id="modal" class="modal" onclick="this.style.display='none'">
        <div class="modal-content" onclick="event.stopPropagation()"><pre id="detail"></pre></div>
    </div>
    <script>
        let logs = [];
        function esc(s) { return String(s == null ? '' : s).replace(/&/g,'&amp;').replace(/</g,'&lt;').replace(/>/g,'&gt;'); }
        async function load() {
            const q = new URLSearchParams({ limit: 100 });
            const path = document.getElementById('path').value.trim();
            const method = document.getElementById('method').value;
            const status = document.getElementById('status').value;
            if (method) q.set('method', method);
            if (status) q.set('status_code', status);
            let url = '/api/v1/logs?' + q;
            if (path) { q.set('path', path); url = '/api/v1/logs/search?' + q; }
            const res = await fetch(url);
            const body = await res.json();
            logs = body.data || [];
            let html = '<table><thead><tr><th>Time</th><th>Method</th><th>Path</th><th>Status</th><th>ms</th><th>User</th></tr></thead><tbody>';
            logs.forEach((l, i) => {
                html += '<tr onclick="show(' + i + ')"><td>' + new Date(l.requested_at).toLocaleString() + '</td><td>' + esc(l.method) +
                    '</td><td>' + esc(l.path) + '</td><td class="' + (l.status_code < 400 ? 'ok' : 'err') + '">' + l.status_code +
                    '</td><td>' + l.response_ms + '</td><td>' + esc(l.username_persistent) + '</td></tr>';
            });
            document.getElementById('table').innerHTML = logs.length ? html + '</tbody></table>' : '<p>No logs found</p>';
        }
        function show(i) {
            document.getElementById('detail').textContent = JSON.stringify(logs[i], null, 2);
            document.getElementById('modal').style.display = 'block';
        }
        document.addEventListener('DOMContentLoaded', load);
    </script>
</body>
</html>`
