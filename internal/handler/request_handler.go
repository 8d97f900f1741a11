package handler

import (
	"net/http"
	"time"

	"spendflow/internal/apperr"
	"spendflow/internal/middleware"
	"spendflow/internal/service"
	"spendflow/pkg/pagination"
	"spendflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// maxReceiptSize caps uploaded receipt files at 10 MiB.
const maxReceiptSize = 10 << 20

type RequestHandler struct {
	requestService    service.RequestService
	attachmentService service.AttachmentService
}

func NewRequestHandler(requestService service.RequestService, attachmentService service.AttachmentService) *RequestHandler {
	return &RequestHandler{
		requestService:    requestService,
		attachmentService: attachmentService,
	}
}

func (h *RequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/api/requests")
	requests.Use(middleware.RequireAuth())
	{
		requests.POST("", h.CreateRequest)
		requests.GET("", h.ListRequests)
		requests.GET("/:id", h.GetRequest)
		requests.DELETE("/:id", h.DeleteRequest)
		requests.POST("/:id/items", h.AddItem)
		requests.DELETE("/:id/items/:itemID", h.RemoveItem)
		requests.POST("/:id/receipts", h.UploadReceipt)
		requests.GET("/:id/receipts/:receiptID/url", h.ReceiptViewURL)
		requests.PUT("/:id/approve", h.ApproveRequest)
		requests.PUT("/:id/reject", h.RejectRequest)
		requests.PUT("/:id/paid", h.MarkPaid)
	}
}

// abortWithError translates the service's typed error kinds onto HTTP.
func abortWithError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	c.JSON(status, response.Error(status, err.Error()))
}

// CreateRequest submits a new expense or purchase order
// @Summary      Create spend request
// @Description  Submits a new expense or purchase order in pending status
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateRequestInput  true  "Request payload"
// @Success      201      {object}  response.Response{data=service.RequestResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/requests [post]
func (h *RequestHandler) CreateRequest(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing principal"))
		return
	}

	var input service.CreateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.requestService.Create(c.Request.Context(), principal, input)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListRequests lists spend requests with filters
// @Summary      List spend requests
// @Description  Lists requests filtered by status, text, category, cost center and date range
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        status       query  string  false  "pending, approved or rejected"
// @Param        search       query  string  false  "Free text over title/description"
// @Param        category     query  string  false  "Category"
// @Param        cost_center  query  string  false  "Cost center"
// @Param        from         query  string  false  "Submitted from (RFC3339)"
// @Param        to           query  string  false  "Submitted to (RFC3339)"
// @Param        page         query  int     false  "Page number"
// @Param        limit        query  int     false  "Items per page"
// @Success      200  {object}  response.Response{data=object}
// @Router       /api/requests [get]
func (h *RequestHandler) ListRequests(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing principal"))
		return
	}

	params := pagination.Parse(c)
	filter := service.ListRequestsFilter{
		Status:     c.Query("status"),
		Search:     c.Query("search"),
		Category:   c.Query("category"),
		CostCenter: c.Query("cost_center"),
		Page:       params.Page,
		Limit:      params.Limit,
	}
	if from, err := time.Parse(time.RFC3339, c.Query("from")); err == nil {
		filter.From = &from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("to")); err == nil {
		filter.To = &to
	}

	requests, total, err := h.requestService.List(c.Request.Context(), principal, filter)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"data":   requests,
		"total":  total,
		"page":   params.Page,
		"limit":  params.Limit,
	})
}

// GetRequest returns one request with items and receipts
// @Summary      Get spend request detail
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/requests/{id} [get]
func (h *RequestHandler) GetRequest(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing principal"))
		return
	}

	result, err := h.requestService.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// DeleteRequest removes a request and cascades to items and receipts
// @Summary      Delete spend request
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Request ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /api/requests/{id} [delete]
func (h *RequestHandler) DeleteRequest(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing principal"))
		return
	}

	if err := h.requestService.Delete(c.Request.Context(), principal, c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"deleted": true}))
}

// AddItem appends a line item to a purchase order
// @Summary      Add purchase order item
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  string               true  "Request ID"
// @Param        payload  body  service.AddItemInput true  "Item payload"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Router       /api/requests/{id}/items [post]
func (h *RequestHandler) AddItem(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing principal"))
		return
	}

	var input service.AddItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.requestService.AddItem(c.Request.Context(), principal, c.Param("id"), input)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RemoveItem deletes a line item from a purchase order
// @Summary      Remove purchase order item
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id      path  string  true  "Request ID"
// @Param        itemID  path  string  true  "Item ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Router       /api/requests/{id}/items/{itemID} [delete]
func (h *RequestHandler) RemoveItem(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing principal"))
		return
	}

	result, err := h.requestService.RemoveItem(c.Request.Context(), principal, c.Param("id"), c.Param("itemID"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// UploadReceipt attaches an evidentiary file to a request
// @Summary      Upload receipt
// @Tags         receipts
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string  true  "Request ID"
// @Param        file  formData  file    true  "Receipt file"
// @Success      201  {object}  response.Response{data=service.ReceiptResponse}
// @Failure      502  {object}  response.Response
// @Router       /api/requests/{id}/receipts [post]
func (h *RequestHandler) UploadReceipt(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing principal"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Missing receipt file: "+err.Error()))
		return
	}
	if fileHeader.Size > maxReceiptSize {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Receipt file too large"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Failed to read receipt file"))
		return
	}
	defer file.Close()

	result, err := h.attachmentService.Upload(c.Request.Context(), principal, c.Param("id"), service.UploadReceiptInput{
		FileName: fileHeader.Filename,
		FileType: fileHeader.Header.Get("Content-Type"),
		Body:     file,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ReceiptViewURL issues a short-lived signed URL for a receipt file
// @Summary      Get receipt view URL
// @Description  Issues a signed URL valid for ten minutes; clients must not persist it
// @Tags         receipts
// @Produce      json
// @Security     BearerAuth
// @Param        id         path  string  true  "Request ID"
// @Param        receiptID  path  string  true  "Receipt ID"
// @Success      200  {object}  response.Response{data=service.SignedURLResponse}
// @Router       /api/requests/{id}/receipts/{receiptID}/url [get]
func (h *RequestHandler) ReceiptViewURL(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing principal"))
		return
	}

	result, err := h.attachmentService.ViewURL(c.Request.Context(), principal, c.Param("id"), c.Param("receiptID"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ApproveRequest transitions a pending request to approved
// @Summary      Approve spend request
// @Tags         requests
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/requests/{id}/approve [put]
func (h *RequestHandler) ApproveRequest(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing principal"))
		return
	}

	result, err := h.requestService.Approve(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RejectRequest transitions a pending request to rejected with a reason
// @Summary      Reject spend request
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  string                     true  "Request ID"
// @Param        payload  body  handler.RejectRequestBody  true  "Rejection reason"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/requests/{id}/reject [put]
func (h *RequestHandler) RejectRequest(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing principal"))
		return
	}

	var body RejectRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		// Reason presence is validated by the state machine so an empty body
		// yields the proper typed error rather than a bind failure.
		body.Reason = ""
	}

	result, err := h.requestService.Reject(c.Request.Context(), principal, c.Param("id"), body.Reason)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// MarkPaid sets the payment flag on an approved request
// @Summary      Mark spend request paid
// @Tags         requests
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  string                true  "Request ID"
// @Param        payload  body  handler.MarkPaidBody  true  "Payment flag"
// @Success      200  {object}  response.Response{data=service.RequestResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/requests/{id}/paid [put]
func (h *RequestHandler) MarkPaid(c *gin.Context) {
	principal, ok := middleware.Principal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing principal"))
		return
	}

	var body MarkPaidBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.requestService.MarkPaid(c.Request.Context(), principal, c.Param("id"), body.Paid)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

type RejectRequestBody struct {
	Reason string `json:"reason"`
}

type MarkPaidBody struct {
	Paid bool `json:"paid"`
}
