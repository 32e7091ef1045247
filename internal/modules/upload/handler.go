package upload

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"permitpilot/internal/pkg/limiter"
	"permitpilot/internal/pkg/response"
	"permitpilot/internal/pkg/validator"
)

// Handler handles HTTP requests for uploads. Every route is owner-scoped:
// a row that exists but belongs to someone else looks exactly like a row
// that does not exist.
type Handler struct {
	service *Service
	log     *logrus.Logger
}

func NewHandler(service *Service, log *logrus.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// Create godoc
// @Summary Upload a document
// @Description Accepts multipart/form-data with a "file" field. Text payloads have their content captured for later summarization.
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "File to upload"
// @Success 201 {object} map[string]interface{}
// @Failure 400,401,500 {object} map[string]interface{}
// @Router /uploads [post]
func (h *Handler) Create(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "No file provided (expected 'file' field)")
		return
	}

	u, err := h.service.Create(c.Request.Context(), userID, fileHeader)
	if err != nil {
		h.log.WithError(err).Error("upload create failed")
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Upload failed")
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"id": u.ID, "name": u.Name})
}

// List godoc
// @Summary List my uploads
// @Description Filterable, sorted, paginated view of the caller's uploads. Malformed options fall back to defaults.
// @Tags Uploads
// @Produce json
// @Security BearerAuth
// @Param search query string false "Substring match on name"
// @Param sort query string false "newest | oldest"
// @Param page query int false "1-based page"
// @Param page_size query int false "Page size, clamped to [1,100]"
// @Param tags query []string false "Match rows sharing at least one tag"
// @Param file_types query []string false "Exact mime types"
// @Param date_from query string false "YYYY-MM-DD"
// @Param date_to query string false "YYYY-MM-DD"
// @Success 200 {object} map[string]interface{}
// @Router /uploads [get]
func (h *Handler) List(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}

	opts := ListOptions{
		Search:    c.Query("search"),
		Sort:      c.Query("sort"),
		Page:      atoiLenient(c.Query("page")),
		PageSize:  pageSizeQuery(c),
		Tags:      multiValue(c, "tags"),
		FileTypes: multiValue(c, "file_types"),
		DateFrom:  c.Query("date_from"),
		DateTo:    c.Query("date_to"),
	}

	page, err := h.service.List(c.Request.Context(), userID, opts)
	if err != nil {
		h.log.WithError(err).Error("upload list failed")
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list uploads")
		return
	}

	response.Success(c, http.StatusOK, page)
}

// Facets godoc
// @Summary Distinct tags and mime types for filter UIs
// @Tags Uploads
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Router /uploads/facets [get]
func (h *Handler) Facets(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}

	facets, err := h.service.ListFacets(c.Request.Context(), userID)
	if err != nil {
		h.log.WithError(err).Error("upload facets failed")
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load facets")
		return
	}

	response.Success(c, http.StatusOK, facets)
}

// Update godoc
// @Summary Patch name, summary, or tags of one upload
// @Tags Uploads
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Upload ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400,401,404 {object} map[string]interface{}
// @Router /uploads/{id} [patch]
func (h *Handler) Update(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}
	id, ok := uploadID(c)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	if details := validator.Validate(req); details != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid fields", details)
		return
	}

	u, err := h.service.Update(c.Request.Context(), userID, id, req)
	if err != nil {
		h.respondError(c, err, "Failed to update upload")
		return
	}

	response.Success(c, http.StatusOK, u)
}

// Delete godoc
// @Summary Permanently delete one upload
// @Tags Uploads
// @Produce json
// @Security BearerAuth
// @Param id path int true "Upload ID"
// @Success 200 {object} map[string]interface{}
// @Failure 401,404 {object} map[string]interface{}
// @Router /uploads/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}
	id, ok := uploadID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, id); err != nil {
		h.respondError(c, err, "Failed to delete upload")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "deleted"})
}

// Replace godoc
// @Summary Replace the stored file of one upload
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "Upload ID"
// @Param file formData file true "Replacement file"
// @Success 200 {object} map[string]interface{}
// @Failure 400,401,404 {object} map[string]interface{}
// @Router /uploads/{id}/replace [post]
func (h *Handler) Replace(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}
	id, ok := uploadID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "No file provided (expected 'file' field)")
		return
	}

	u, err := h.service.Replace(c.Request.Context(), userID, id, fileHeader)
	if err != nil {
		h.respondError(c, err, "Failed to replace upload")
		return
	}

	response.Success(c, http.StatusOK, u)
}

// Download godoc
// @Summary Download the stored bytes of one upload
// @Tags Uploads
// @Security BearerAuth
// @Param id path int true "Upload ID"
// @Success 200 {file} binary
// @Failure 401,404 {object} map[string]interface{}
// @Router /uploads/{id}/download [get]
func (h *Handler) Download(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}
	id, ok := uploadID(c)
	if !ok {
		return
	}

	u, absPath, err := h.service.Download(c.Request.Context(), userID, id)
	if err != nil {
		h.respondError(c, err, "Failed to download upload")
		return
	}

	c.FileAttachment(absPath, u.Name)
}

// ExportZip godoc
// @Summary Stream a zip archive of selected uploads
// @Description ids is a comma-separated list. Rows not owned by the caller or without stored bytes are silently skipped.
// @Tags Uploads
// @Security BearerAuth
// @Param ids query string true "Comma-separated upload IDs"
// @Success 200 {file} binary
// @Failure 400,401,404 {object} map[string]interface{}
// @Router /uploads/zip [get]
func (h *Handler) ExportZip(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}

	ids := parseIDs(c.Query("ids"))
	if len(ids) == 0 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "No ids provided")
		return
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", `attachment; filename="permitpilot-selected.zip"`)

	if _, err := h.service.ExportZip(c.Request.Context(), userID, ids, c.Writer); err != nil {
		if errors.Is(err, ErrNothingToExport) {
			// Nothing has been written yet, a JSON error is still possible.
			c.Header("Content-Type", "application/json")
			c.Header("Content-Disposition", "")
			response.Error(c, http.StatusNotFound, "NOT_FOUND", "No files found")
			return
		}
		// Mid-stream failure: the status line is already gone, log and stop.
		h.log.WithError(err).Error("zip export failed mid-stream")
		c.Abort()
	}
}

// Summarize godoc
// @Summary Generate and persist an AI summary of one upload's captured text
// @Tags Uploads
// @Produce json
// @Security BearerAuth
// @Param id path int true "Upload ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400,401,404,429,502 {object} map[string]interface{}
// @Router /uploads/{id}/summarize [post]
func (h *Handler) Summarize(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}
	id, ok := uploadID(c)
	if !ok {
		return
	}

	summary, err := h.service.Summarize(c.Request.Context(), userID, id)
	if err != nil {
		h.respondError(c, err, "Failed to generate summary")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"summary": summary})
}

// Analyze godoc
// @Summary Summarize raw text without persisting anything
// @Tags Uploads
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 400,401,429,502 {object} map[string]interface{}
// @Router /analyze [post]
func (h *Handler) Analyze(c *gin.Context) {
	userID := mustUserID(c)
	if userID == 0 {
		return
	}

	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "No text provided")
		return
	}

	summary, err := h.service.SummarizeText(c.Request.Context(), req.Text)
	if err != nil {
		h.respondError(c, err, "Summarization failed")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"summary": summary})
}

// Revalidate godoc
// @Summary Discard cached dashboard reads under a tag
// @Tags Cache
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /cache/revalidate [post]
func (h *Handler) Revalidate(c *gin.Context) {
	var req RevalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Tag) == "" {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Missing or invalid tag")
		return
	}

	dropped := h.service.InvalidateTag(req.Tag)
	response.Success(c, http.StatusOK, gin.H{"revalidated": true, "tag": req.Tag, "dropped": dropped})
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Upload not found")
	case errors.Is(err, ErrNoStoredFile):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "Upload has no stored file")
	case errors.Is(err, ErrEmptyName):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Name cannot be empty")
	case errors.Is(err, ErrNoContent):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "No content to summarize")
	case errors.Is(err, limiter.ErrLimitExceeded):
		response.Error(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many concurrent summarization calls")
	case errors.Is(err, ErrSummarizer):
		response.Error(c, http.StatusBadGateway, "UPSTREAM_ERROR", "Summarization call failed")
	default:
		h.log.WithError(err).Error(fallback)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", fallback)
	}
}

func mustUserID(c *gin.Context) int64 {
	id, exists := c.Get("user_id")
	if !exists {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return 0
	}
	switch v := id.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid user id")
	return 0
}

func uploadID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid upload ID")
		return 0, false
	}
	return id, true
}

// atoiLenient returns 0 for anything non-numeric; Normalize applies the
// defaults, per the permissive input policy.
func atoiLenient(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// pageSizeQuery separates an absent or malformed page_size, which takes the
// default, from an explicitly supplied low value, which clamps to 1.
func pageSizeQuery(c *gin.Context) int {
	raw, ok := c.GetQuery("page_size")
	raw = strings.TrimSpace(raw)
	if !ok || raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	if n < 1 {
		return 1
	}
	return n
}

// multiValue accepts both repeated params (?tags=a&tags=b) and
// comma-separated lists (?tags=a,b).
func multiValue(c *gin.Context, key string) []string {
	var out []string
	for _, raw := range c.QueryArray(key) {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func parseIDs(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
