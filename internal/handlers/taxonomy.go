// internal/handlers/taxonomy.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/lexflow/intake-backend/internal/taxonomy"
	"github.com/lexflow/intake-backend/internal/utils"
)

type TaxonomyHandler struct {
	store *taxonomy.Store
	cache *taxonomy.TreeCache
}

func NewTaxonomyHandler(store *taxonomy.Store, cache *taxonomy.TreeCache) *TaxonomyHandler {
	return &TaxonomyHandler{
		store: store,
		cache: cache,
	}
}

// GET /v1/taxonomy
func (h *TaxonomyHandler) GetTaxonomy(c *gin.Context) {
	tree, err := h.cache.Tree(c.Request.Context())
	if err != nil {
		utils.InternalErrorResponse(c, "Failed to load taxonomy")
		return
	}

	utils.SuccessResponse(c, gin.H{"categories": tree})
}

// POST /v1/taxonomy/categories
func (h *TaxonomyHandler) PublishCategory(c *gin.Context) {
	var req taxonomy.PublishCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	category, err := h.store.PublishCategory(c.Request.Context(), &req)
	if err != nil {
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	h.cache.Invalidate(c.Request.Context())
	utils.CreatedResponse(c, category)
}

// POST /v1/taxonomy/options
func (h *TaxonomyHandler) PublishOption(c *gin.Context) {
	var req taxonomy.PublishOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(err))
		return
	}

	option, err := h.store.PublishOption(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, taxonomy.ErrCategoryNotFound) {
			utils.NotFoundResponse(c, err.Error())
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	h.cache.Invalidate(c.Request.Context())
	utils.CreatedResponse(c, option)
}

// DELETE /v1/taxonomy/options/:code
func (h *TaxonomyHandler) DeleteOption(c *gin.Context) {
	code := c.Param("code")

	if err := h.store.DeleteOption(c.Request.Context(), code); err != nil {
		if errors.Is(err, taxonomy.ErrOptionNotFound) {
			utils.NotFoundResponse(c, err.Error())
			return
		}
		if errors.Is(err, taxonomy.ErrReferenced) {
			utils.ConflictResponse(c, "DELETE_REJECTED", err.Error())
			return
		}
		utils.InternalErrorResponse(c, "Failed to delete option")
		return
	}

	h.cache.Invalidate(c.Request.Context())
	utils.SuccessResponse(c, gin.H{"deleted": code})
}

// DELETE /v1/taxonomy/categories/:code
func (h *TaxonomyHandler) DeleteCategory(c *gin.Context) {
	code := c.Param("code")

	if err := h.store.DeleteCategory(c.Request.Context(), code); err != nil {
		if errors.Is(err, taxonomy.ErrCategoryNotFound) {
			utils.NotFoundResponse(c, err.Error())
			return
		}
		if errors.Is(err, taxonomy.ErrReferenced) {
			utils.ConflictResponse(c, "DELETE_REJECTED", err.Error())
			return
		}
		utils.InternalErrorResponse(c, "Failed to delete category")
		return
	}

	h.cache.Invalidate(c.Request.Context())
	utils.SuccessResponse(c, gin.H{"deleted": code})
}
