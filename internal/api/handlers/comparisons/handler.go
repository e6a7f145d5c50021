// Package comparisons 查詢快取中的食材比對結論
package comparisons

import (
	"context"
	"net/http"
	"strings"

	"meal-planner/internal/api/handlers"
	"meal-planner/internal/core/comparison"
	"meal-planner/internal/pkg/common"

	"github.com/gin-gonic/gin"
)

// Lookup 比對快取查詢
type Lookup interface {
	Get(ctx context.Context, nameA, nameB string) (comparison.Entry, bool, error)
	GetAllFor(ctx context.Context, name string) (map[string]comparison.Entry, error)
}

// Handler 比對結論處理器
type Handler struct {
	lookup Lookup
}

// NewHandler 創建比對結論處理器
func NewHandler(lookup Lookup) *Handler {
	return &Handler{lookup: lookup}
}

// Get GET /comparisons?a=...&b=...
func (h *Handler) Get(c *gin.Context) {
	a, b := strings.TrimSpace(c.Query("a")), strings.TrimSpace(c.Query("b"))
	if a == "" || b == "" {
		handlers.RespondError(c, common.NewValidationError("query parameters a and b are required"))
		return
	}

	entry, ok, err := h.lookup.Get(c.Request.Context(), a, b)
	if err != nil {
		handlers.RespondError(c, common.ErrInternalError.Wrap(err))
		return
	}
	if !ok {
		handlers.RespondError(c, common.ErrNotFound.WithMessage("尚無此名稱對的比對結論"))
		return
	}
	c.JSON(http.StatusOK, entry)
}

// Neighbors GET /comparisons/:name/neighbors
func (h *Handler) Neighbors(c *gin.Context) {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		handlers.RespondError(c, common.NewValidationError("ingredient name is required"))
		return
	}

	neighbors, err := h.lookup.GetAllFor(c.Request.Context(), name)
	if err != nil {
		handlers.RespondError(c, common.ErrInternalError.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"name":      comparison.Normalize(name),
		"neighbors": neighbors,
		"count":     len(neighbors),
	})
}
