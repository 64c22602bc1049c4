package handlers

import (
	"encoding/json"
	"net/http"

	"FS-FORMS/internal/models"
	"FS-FORMS/internal/services"

	"github.com/gin-gonic/gin"
)

type LogsHandler struct {
	activityLogService *services.ActivityLogService
}

func NewLogsHandler(activityLogService *services.ActivityLogService) *LogsHandler {
	return &LogsHandler{
		activityLogService: activityLogService,
	}
}

type LogsResponse struct {
	Logs       []models.ActivityLog `json:"logs"`
	Total      int64                `json:"total"`
	Page       int                  `json:"page"`
	Limit      int                  `json:"limit"`
	TotalPages int                  `json:"total_pages"`
}

// GetAllLogs returns activity logs with pagination, optionally filtered by
// method, path or template_id.
func (h *LogsHandler) GetAllLogs(c *gin.Context) {
	page, limit, offset := pagination(c)

	logs, total, err := h.activityLogService.ListLogs(c.Request.Context(), services.LogFilter{
		Method:     c.Query("method"),
		Path:       c.Query("path"),
		TemplateID: c.Query("template_id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		respondError(c, "GetAllLogs", err)
		return
	}
	if logs == nil {
		logs = []models.ActivityLog{}
	}

	c.JSON(http.StatusOK, LogsResponse{
		Logs:       logs,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	})
}

func (h *LogsHandler) GetLogStats(c *gin.Context) {
	stats, err := h.activityLogService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, "GetLogStats", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetTemplateHistory returns the POST and PUT requests made against one
// template, with their JSON bodies decoded when possible.
func (h *LogsHandler) GetTemplateHistory(c *gin.Context) {
	page, limit, offset := pagination(c)

	logs, total, err := h.activityLogService.ListLogs(c.Request.Context(), services.LogFilter{
		TemplateID: c.Param("id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		respondError(c, "GetTemplateHistory", err)
		return
	}

	history := make([]gin.H, 0)
	for _, log := range logs {
		if (log.Method != http.MethodPost && log.Method != http.MethodPut) || len(log.RequestBody) == 0 {
			continue
		}
		entry := gin.H{
			"timestamp":     log.CreatedAt,
			"method":        log.Method,
			"path":          log.Path,
			"status_code":   log.StatusCode,
			"ip_address":    log.IPAddress,
			"response_time": log.ResponseTime,
		}
		var body any
		if err := json.Unmarshal([]byte(log.RequestBody), &body); err == nil {
			entry["request_data"] = body
		} else {
			entry["raw_body"] = log.RequestBody
		}
		history = append(history, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"template_id": c.Param("id"),
		"history":     history,
		"total":       total,
		"page":        page,
		"limit":       limit,
		"total_pages": totalPages(total, limit),
	})
}
