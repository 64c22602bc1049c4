package handlers

import (
	"net/http"

	"FS-FORMS/internal/models"
	"FS-FORMS/internal/services"

	"github.com/gin-gonic/gin"
)

type SubmissionHandler struct {
	submissionService *services.SubmissionService
}

func NewSubmissionHandler(submissionService *services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: submissionService}
}

type SubmissionsResponse struct {
	Submissions []models.FormSubmission `json:"submissions"`
	Total       int64                   `json:"total"`
	Page        int                     `json:"page"`
	Limit       int                     `json:"limit"`
	TotalPages  int                     `json:"totalPages"`
}

func (h *SubmissionHandler) RecordSubmission(c *gin.Context) {
	var req services.SubmissionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	submission, err := h.submissionService.RecordSubmission(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "RecordSubmission", err)
		return
	}
	c.JSON(http.StatusCreated, submission)
}

func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	page, limit, offset := pagination(c)

	submissions, total, err := h.submissionService.ListSubmissions(c.Request.Context(), services.SubmissionFilter{
		TemplateID: c.Query("template_id"),
		Status:     models.SubmissionStatus(c.Query("status")),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		respondError(c, "ListSubmissions", err)
		return
	}
	if submissions == nil {
		submissions = []models.FormSubmission{}
	}

	c.JSON(http.StatusOK, SubmissionsResponse{
		Submissions: submissions,
		Total:       total,
		Page:        page,
		Limit:       limit,
		TotalPages:  totalPages(total, limit),
	})
}

func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	submission, err := h.submissionService.GetSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "GetSubmission", err)
		return
	}
	c.JSON(http.StatusOK, submission)
}
