package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"FS-FORMS/internal/apperr"
	"FS-FORMS/internal/form"
	"FS-FORMS/internal/models"
	"FS-FORMS/internal/services"

	"github.com/gin-gonic/gin"
)

type TemplateHandler struct {
	templateService   *services.TemplateService
	backgroundService *services.BackgroundService
}

func NewTemplateHandler(templateService *services.TemplateService, backgroundService *services.BackgroundService) *TemplateHandler {
	return &TemplateHandler{
		templateService:   templateService,
		backgroundService: backgroundService,
	}
}

type DuplicateRequest struct {
	Name string `json:"name"`
}

type FieldEdit struct {
	FieldID string `json:"fieldId" binding:"required"`
	Value   any    `json:"value"`
}

// EvaluateRequest replays a client's form state: values is the stored map,
// edits are applied in order as user input.
type EvaluateRequest struct {
	Values   map[string]any          `json:"values"`
	Edits    []FieldEdit             `json:"edits" binding:"dive"`
	Page     int                     `json:"page"`
	Validate models.SubmissionStatus `json:"validate"`
}

type EvaluateResponse struct {
	TemplateID string            `json:"templateId"`
	Page       int               `json:"page"`
	Pages      []int             `json:"pages"`
	Background string            `json:"background,omitempty"`
	State      form.State        `json:"state"`
	Values     map[string]any    `json:"values"`
	Widgets    []form.Widget     `json:"widgets"`
	EditErrors map[string]string `json:"editErrors,omitempty"`
	Problems   map[string]string `json:"problems,omitempty"`
}

func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	templates, err := h.templateService.ListTemplates(c.Request.Context())
	if err != nil {
		respondError(c, "ListTemplates", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates, "total": len(templates)})
}

func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req services.TemplateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	template, err := h.templateService.CreateTemplate(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "CreateTemplate", err)
		return
	}
	c.JSON(http.StatusCreated, template)
}

func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	template, err := h.templateService.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "GetTemplate", err)
		return
	}
	c.JSON(http.StatusOK, template)
}

func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	var req services.TemplateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	template, err := h.templateService.UpdateTemplate(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, "UpdateTemplate", err)
		return
	}
	c.JSON(http.StatusOK, template)
}

func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))

	if err := h.templateService.DeleteTemplate(c.Request.Context(), c.Param("id"), force); err != nil {
		respondError(c, "DeleteTemplate", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Template deleted successfully"})
}

func (h *TemplateHandler) DuplicateTemplate(c *gin.Context) {
	var req DuplicateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
	}

	template, err := h.templateService.DuplicateTemplate(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		respondError(c, "DuplicateTemplate", err)
		return
	}
	c.JSON(http.StatusCreated, template)
}

// Evaluate runs a form session server-side and returns the recalculated
// values with the widgets of the requested page.
func (h *TemplateHandler) Evaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	if req.Validate != "" && !req.Validate.IsValid() {
		respondError(c, "Evaluate", &apperr.ValidationError{
			Message: "invalid evaluate request",
			Fields:  map[string]string{"validate": fmt.Sprintf("must be %q or %q", models.StatusDraft, models.StatusSubmitted)},
		})
		return
	}

	template, err := h.templateService.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Evaluate", err)
		return
	}

	session := form.NewSession(template, req.Values)
	if req.Page != 0 {
		if err := session.GoToPage(req.Page); err != nil {
			respondError(c, "Evaluate", apperr.NotFound("page", strconv.Itoa(req.Page)))
			return
		}
	}

	editErrors := make(map[string]string)
	for _, edit := range req.Edits {
		if err := session.SetValue(edit.FieldID, edit.Value); err != nil {
			if errors.Is(err, form.ErrReadOnlyField) || errors.Is(err, form.ErrUnknownField) {
				editErrors[edit.FieldID] = err.Error()
				continue
			}
			respondError(c, "Evaluate", err)
			return
		}
	}

	widgets, err := session.RenderCurrent()
	if err != nil {
		respondError(c, "Evaluate", err)
		return
	}

	resp := EvaluateResponse{
		TemplateID: template.ID,
		Page:       session.Page(),
		State:      session.State(),
		Values:     session.Values(),
		Widgets:    widgets,
	}
	if len(editErrors) > 0 {
		resp.EditErrors = editErrors
	}
	for _, p := range template.Pages {
		resp.Pages = append(resp.Pages, p.PageNumber)
		if p.PageNumber == session.Page() && h.backgroundService != nil {
			if url, err := h.backgroundService.BackgroundURL(c.Request.Context(), p.BackgroundImage); err == nil {
				resp.Background = url
			}
		}
	}
	sort.Ints(resp.Pages)

	if req.Validate != "" {
		var ve *apperr.ValidationError
		if err := session.Validate(req.Validate); errors.As(err, &ve) {
			resp.Problems = ve.Fields
		}
	}

	c.JSON(http.StatusOK, resp)
}

// UploadBackground accepts a multipart "image" plus an optional "page"
// form value (default 1).
func (h *TemplateHandler) UploadBackground(c *gin.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer file.Close()

	pageNumber, err := strconv.Atoi(c.DefaultPostForm("page", "1"))
	if err != nil || pageNumber <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a positive number"})
		return
	}

	upload, err := h.backgroundService.UploadBackground(c.Request.Context(), c.Param("id"), pageNumber, file, header.Filename)
	if err != nil {
		respondError(c, "UploadBackground", err)
		return
	}
	c.JSON(http.StatusCreated, upload)
}
