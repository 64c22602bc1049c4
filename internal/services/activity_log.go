package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"FS-FORMS/internal/apperr"
	"FS-FORMS/internal/config"
	"FS-FORMS/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	maxLoggedBody     = 10000
	loggedBodyPreview = 100
)

type ActivityLogService struct {
	db      *gorm.DB
	logger  *logrus.Logger
	pending sync.WaitGroup
}

func NewActivityLogService(db *gorm.DB) *ActivityLogService {
	return &ActivityLogService{db: db, logger: config.GetLogger()}
}

type LogFilter struct {
	Method     string
	Path       string
	TemplateID string
	Limit      int
	Offset     int
}

type LogStats struct {
	TotalRequests int64            `json:"total_requests"`
	Methods       map[string]int64 `json:"methods"`
	Paths         map[string]int64 `json:"paths"`
	StatusCodes   map[int]int64    `json:"status_codes"`
	AvgResponseMs float64          `json:"avg_response_ms"`
}

func (s *ActivityLogService) LogRequest(c *gin.Context, statusCode int, responseTime time.Duration) {
	clientIP := c.ClientIP()
	if clientIP == "" {
		clientIP = c.Request.RemoteAddr
	}

	queryParams := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			queryParams[key] = values[0]
		}
	}
	queryParamsJSON, _ := json.Marshal(queryParams)

	var requestBody string
	if body, exists := c.Get("request_body"); exists {
		if bodyStr, ok := body.(string); ok {
			requestBody = bodyStr
		}
	}

	var templateID string
	if strings.Contains(c.FullPath(), "/templates/:id") {
		templateID = c.Param("id")
	}

	now := time.Now()
	activityLog := &models.ActivityLog{
		ID:           uuid.New().String(),
		Method:       c.Request.Method,
		Path:         c.Request.URL.Path,
		TemplateID:   templateID,
		UserAgent:    c.Request.UserAgent(),
		IPAddress:    clientIP,
		RequestBody:  requestBody,
		QueryParams:  string(queryParamsJSON),
		StatusCode:   statusCode,
		ResponseTime: responseTime.Milliseconds(),
		CreatedAt:    now,
	}

	// Saved in the background so a slow log write never delays the response.
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.db.Create(activityLog).Error; err != nil {
			config.LogError(s.logger, "services", "LogRequest", "save activity log", activityLog.Path, err)
		}
	}()
}

// Wait blocks until every queued log write has finished.
func (s *ActivityLogService) Wait() {
	s.pending.Wait()
}

func (s *ActivityLogService) ListLogs(ctx context.Context, filter LogFilter) ([]models.ActivityLog, int64, error) {
	var logs []models.ActivityLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.ActivityLog{})
	if filter.Method != "" {
		query = query.Where("method = ?", strings.ToUpper(filter.Method))
	}
	if filter.Path != "" {
		query = query.Where("path LIKE ?", "%"+filter.Path+"%")
	}
	if filter.TemplateID != "" {
		query = query.Where("template_id = ?", filter.TemplateID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperr.Persistence("count logs", err)
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}
	if err := query.Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, 0, apperr.Persistence("fetch logs", err)
	}

	return logs, total, nil
}

// Stats aggregates in the database instead of loading every row.
func (s *ActivityLogService) Stats(ctx context.Context) (*LogStats, error) {
	db := s.db.WithContext(ctx).Model(&models.ActivityLog{})
	stats := &LogStats{
		Methods:     make(map[string]int64),
		Paths:       make(map[string]int64),
		StatusCodes: make(map[int]int64),
	}

	if err := db.Count(&stats.TotalRequests).Error; err != nil {
		return nil, apperr.Persistence("count logs", err)
	}

	type bucket struct {
		Key   string
		Count int64
	}
	for column, dest := range map[string]map[string]int64{"method": stats.Methods, "path": stats.Paths} {
		var rows []bucket
		err := s.db.WithContext(ctx).Model(&models.ActivityLog{}).
			Select(column + " AS `key`, COUNT(*) AS count").
			Group(column).
			Scan(&rows).Error
		if err != nil {
			return nil, apperr.Persistence("group logs by "+column, err)
		}
		for _, r := range rows {
			dest[r.Key] = r.Count
		}
	}

	var statusRows []struct {
		StatusCode int
		Count      int64
	}
	err := s.db.WithContext(ctx).Model(&models.ActivityLog{}).
		Select("status_code, COUNT(*) AS count").
		Group("status_code").
		Scan(&statusRows).Error
	if err != nil {
		return nil, apperr.Persistence("group logs by status", err)
	}
	for _, r := range statusRows {
		stats.StatusCodes[r.StatusCode] = r.Count
	}

	if stats.TotalRequests > 0 {
		var avg struct{ Avg float64 }
		if err := s.db.WithContext(ctx).Model(&models.ActivityLog{}).Select("AVG(response_time) AS avg").Scan(&avg).Error; err != nil {
			return nil, apperr.Persistence("average response time", err)
		}
		stats.AvgResponseMs = avg.Avg
	}

	return stats, nil
}

// LoggingMiddleware records every request once the handler chain is done.
func (s *ActivityLogService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		if (c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut) && c.Request.Body != nil &&
			!strings.HasPrefix(c.ContentType(), "multipart/") {
			bodyBytes, err := io.ReadAll(c.Request.Body)
			if err == nil {
				c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
				if len(bodyBytes) > 0 {
					if len(bodyBytes) > maxLoggedBody {
						c.Set("request_body", fmt.Sprintf("[Large body: %d bytes] %s...", len(bodyBytes), string(bodyBytes[:loggedBodyPreview])))
					} else {
						c.Set("request_body", string(bodyBytes))
					}
				}
			}
		}

		c.Next()

		s.LogRequest(c, c.Writer.Status(), time.Since(start))
	}
}
