package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/receipt-scan/internal/application/service"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{services: services, logger: logger}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// CreateRuleRequest is the body of POST /api/rules
type CreateRuleRequest struct {
	StoreName    string  `json:"store_name"`
	DebitAccount string  `json:"debit_account"`
	TaxCategory  *string `json:"tax_category"`
}

// ListJobsRequest represents query parameters for listing jobs
type ListJobsRequest struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// ListReceiptsRequest represents query parameters for listing receipts
type ListReceiptsRequest struct {
	NeedsReview  string `form:"needs_review"`
	InvoiceFlag  string `form:"invoice_flag"`
	DebitAccount string `form:"debit_account"`
	Sort         string `form:"sort"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	if h.services.Health != nil {
		healthy, components := h.services.Health(c.Request.Context())
		resp.Components = components
		if !healthy {
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	ok(c, code, resp)
}

// PresignUpload handles POST /api/uploads
func (h *Handlers) PresignUpload(c *gin.Context) {
	var req service.UploadRequest
	if !bindJSON(c, &req) {
		return
	}
	ticket, err := h.services.Jobs.PresignUpload(c.Request.Context(), userID(c), req)
	if err != nil {
		h.writeError(c, "presign upload", err)
		return
	}
	ok(c, http.StatusOK, ticket)
}

// CreateJob handles POST /api/jobs
func (h *Handlers) CreateJob(c *gin.Context) {
	var in service.CreateJobInput
	if !bindJSON(c, &in) {
		return
	}
	job, err := h.services.Jobs.CreateJob(c.Request.Context(), userID(c), in)
	if err != nil {
		h.writeError(c, "create job", err)
		return
	}
	ok(c, http.StatusAccepted, job)
}

// ListJobs handles GET /api/jobs
func (h *Handlers) ListJobs(c *gin.Context) {
	var req ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	list, err := h.services.Jobs.ListJobs(c.Request.Context(), userID(c), entity.JobFilter{
		Status: req.Status,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		h.writeError(c, "list jobs", err)
		return
	}
	ok(c, http.StatusOK, list)
}

// GetJob handles GET /api/jobs/:id
func (h *Handlers) GetJob(c *gin.Context) {
	job, err := h.services.Jobs.GetJob(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, "get job", err)
		return
	}
	ok(c, http.StatusOK, job)
}

// CancelJob handles POST /api/jobs/:id/cancel
func (h *Handlers) CancelJob(c *gin.Context) {
	job, err := h.services.Jobs.CancelJob(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, "cancel job", err)
		return
	}
	ok(c, http.StatusOK, job)
}

// ListReceipts handles GET /api/jobs/:id/receipts
func (h *Handlers) ListReceipts(c *gin.Context) {
	var req ListReceiptsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}

	filter := entity.ReceiptFilter{
		InvoiceFlag:  req.InvoiceFlag,
		DebitAccount: req.DebitAccount,
		Sort:         req.Sort,
	}
	if req.NeedsReview != "" {
		v, err := strconv.ParseBool(req.NeedsReview)
		if err != nil {
			abort(c, http.StatusBadRequest, "INVALID_QUERY", "needs_review must be true or false")
			return
		}
		filter.NeedsReview = &v
	}

	list, err := h.services.Receipts.ListReceipts(c.Request.Context(), userID(c), c.Param("id"), filter)
	if err != nil {
		h.writeError(c, "list receipts", err)
		return
	}
	ok(c, http.StatusOK, list)
}

// GetReceipt handles GET /api/receipts/:id
func (h *Handlers) GetReceipt(c *gin.Context) {
	r, err := h.services.Receipts.GetReceipt(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, "get receipt", err)
		return
	}
	ok(c, http.StatusOK, r)
}

// UpdateReceipt handles PATCH /api/receipts/:id
func (h *Handlers) UpdateReceipt(c *gin.Context) {
	var patch entity.ReceiptPatch
	if !bindJSON(c, &patch) {
		return
	}
	r, err := h.services.Receipts.UpdateReceipt(c.Request.Context(), userID(c), c.Param("id"), patch)
	if err != nil {
		h.writeError(c, "update receipt", err)
		return
	}
	ok(c, http.StatusOK, r)
}

// DeleteReceipt handles DELETE /api/receipts/:id
func (h *Handlers) DeleteReceipt(c *gin.Context) {
	if err := h.services.Receipts.DeleteReceipt(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.writeError(c, "delete receipt", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListRules handles GET /api/rules
func (h *Handlers) ListRules(c *gin.Context) {
	rules, err := h.services.Rules.ListRules(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, "list rules", err)
		return
	}
	ok(c, http.StatusOK, rules)
}

// CreateRule handles POST /api/rules
func (h *Handlers) CreateRule(c *gin.Context) {
	var req CreateRuleRequest
	if !bindJSON(c, &req) {
		return
	}
	rule, err := h.services.Rules.Learn(c.Request.Context(), userID(c), req.StoreName, req.DebitAccount, req.TaxCategory)
	if err != nil {
		h.writeError(c, "create rule", err)
		return
	}
	ok(c, http.StatusCreated, rule)
}

// DeleteRule handles DELETE /api/rules/:id
func (h *Handlers) DeleteRule(c *gin.Context) {
	if err := h.services.Rules.DeleteRule(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.writeError(c, "delete rule", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateExport handles POST /api/jobs/:id/exports
func (h *Handlers) CreateExport(c *gin.Context) {
	var req service.ExportRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	res, err := h.services.Exports.CreateExport(c.Request.Context(), userID(c), c.Param("id"), req)
	if err != nil {
		h.writeError(c, "create export", err)
		return
	}
	ok(c, http.StatusCreated, res)
}

// ListExports handles GET /api/jobs/:id/exports
func (h *Handlers) ListExports(c *gin.Context) {
	exports, err := h.services.Exports.ListExports(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, "list exports", err)
		return
	}
	ok(c, http.StatusOK, exports)
}

func bindJSON(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return false
	}
	return true
}
