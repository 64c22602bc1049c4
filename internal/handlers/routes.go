package handlers

import (
	"net/http"
	"time"

	"FS-FORMS/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Router struct {
	DB                 *gorm.DB
	AllowOrigins       []string
	UploadDir          string
	TemplateService    *services.TemplateService
	SubmissionService  *services.SubmissionService
	BackgroundService  *services.BackgroundService
	ActivityLogService *services.ActivityLogService
}

// Setup registers middleware and every API route on r.
func (rt *Router) Setup(r *gin.Engine) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     rt.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if rt.ActivityLogService != nil {
		r.Use(rt.ActivityLogService.LoggingMiddleware())
	}

	r.GET("/healthz", rt.healthz)
	if rt.UploadDir != "" {
		r.Static("/uploads", rt.UploadDir)
	}

	templateHandler := NewTemplateHandler(rt.TemplateService, rt.BackgroundService)
	submissionHandler := NewSubmissionHandler(rt.SubmissionService)

	v1 := r.Group("/api/v1")
	{
		templates := v1.Group("/templates")
		templates.GET("", templateHandler.ListTemplates)
		templates.POST("", templateHandler.CreateTemplate)
		templates.GET("/:id", templateHandler.GetTemplate)
		templates.PUT("/:id", templateHandler.UpdateTemplate)
		templates.DELETE("/:id", templateHandler.DeleteTemplate)
		templates.POST("/:id/duplicate", templateHandler.DuplicateTemplate)
		templates.POST("/:id/evaluate", templateHandler.Evaluate)
		if rt.BackgroundService != nil {
			templates.POST("/:id/backgrounds", templateHandler.UploadBackground)
		}

		submissions := v1.Group("/submissions")
		submissions.POST("", submissionHandler.RecordSubmission)
		submissions.GET("", submissionHandler.ListSubmissions)
		submissions.GET("/:id", submissionHandler.GetSubmission)

		if rt.ActivityLogService != nil {
			logsHandler := NewLogsHandler(rt.ActivityLogService)
			v1.GET("/logs", logsHandler.GetAllLogs)
			v1.GET("/logs/stats", logsHandler.GetLogStats)
			templates.GET("/:id/history", logsHandler.GetTemplateHistory)
		}
	}
}

func (rt *Router) healthz(c *gin.Context) {
	if rt.DB != nil {
		sqlDB, err := rt.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
