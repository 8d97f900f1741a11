package handler

import (
	"io"
	"net/http"

	"spendflow/internal/repository"
	"spendflow/internal/storage"
	"spendflow/pkg/response"

	"github.com/gin-gonic/gin"
)

// ReceiptHandler serves the signed-URL target. The route carries no session;
// the grant token in the query string is the entire capability. An expired or
// tampered token fails verification, and a receipt whose request was deleted
// fails the row lookup, so stale URLs die on both paths.
type ReceiptHandler struct {
	receiptRepo repository.ReceiptRepository
	blobs       storage.BlobStore
	signer      *storage.URLSigner
}

func NewReceiptHandler(receiptRepo repository.ReceiptRepository, blobs storage.BlobStore, signer *storage.URLSigner) *ReceiptHandler {
	return &ReceiptHandler{receiptRepo: receiptRepo, blobs: blobs, signer: signer}
}

func (h *ReceiptHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/receipts/view", h.ViewReceipt)
}

// ViewReceipt streams one receipt file to the holder of a valid grant
// @Summary      View receipt via signed URL
// @Description  Streams the receipt object referenced by a valid, unexpired grant token
// @Tags         receipts
// @Produce      octet-stream
// @Param        token  query  string  true  "Signed grant token"
// @Success      200
// @Failure      403  {object}  response.Response
// @Router       /api/receipts/view [get]
func (h *ReceiptHandler) ViewReceipt(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Missing grant token"))
		return
	}

	path, err := h.signer.Verify(token)
	if err != nil {
		c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Invalid or expired view grant"))
		return
	}

	receipt, err := h.receiptRepo.FindByStoragePath(c.Request.Context(), path)
	if err != nil {
		c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, "Receipt no longer exists"))
		return
	}

	file, err := h.blobs.Open(c.Request.Context(), receipt.StoragePath)
	if err != nil {
		c.JSON(http.StatusBadGateway, response.Error(http.StatusBadGateway, "Receipt file unavailable"))
		return
	}
	defer file.Close()

	contentType := receipt.FileType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", `inline; filename="`+receipt.FileName+`"`)
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
