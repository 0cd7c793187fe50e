package handlers

import (
	"errors"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"spin-rewards/internal/database"
	"spin-rewards/internal/lib/logger/sl"
)

type prizeRequest struct {
	Title         string  `json:"title" binding:"required,max=120"`
	Weight        float64 `json:"weight" binding:"gte=0,lte=1e9"`
	QuantityTotal *int64  `json:"quantityTotal" binding:"omitempty,gte=0"`
	Active        *bool   `json:"active"`
}

func (r prizeRequest) input() database.PrizeInput {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return database.PrizeInput{
		Title:         r.Title,
		Weight:        r.Weight,
		QuantityTotal: r.QuantityTotal,
		Active:        active,
	}
}

func (h *Handler) bindPrize(c *gin.Context) (database.PrizeInput, bool) {
	var req prizeRequest
	if !bindJSON(c, &req) {
		return database.PrizeInput{}, false
	}
	if math.IsNaN(req.Weight) || math.IsInf(req.Weight, 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "field weight must be finite"})
		return database.PrizeInput{}, false
	}
	return req.input(), true
}

func (h *Handler) AdminListPrizes(c *gin.Context) {
	prizes, err := h.store.ListPrizes(c.Request.Context())
	if err != nil {
		h.logger.Error("admin list prizes failed", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list prizes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"prizes": prizes})
}

func (h *Handler) AdminCreatePrize(c *gin.Context) {
	in, ok := h.bindPrize(c)
	if !ok {
		return
	}
	prize, err := h.store.CreatePrize(c.Request.Context(), in, h.now())
	if err != nil {
		h.logger.Error("create prize failed", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	h.cache.Invalidate()
	c.JSON(http.StatusCreated, gin.H{"prize": prize})
}

func (h *Handler) AdminUpdatePrize(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	in, ok := h.bindPrize(c)
	if !ok {
		return
	}
	prize, err := h.store.UpdatePrize(c.Request.Context(), id, in, h.now())
	if err != nil {
		switch {
		case errors.Is(err, database.ErrPrizeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "prize not found"})
		case errors.Is(err, database.ErrQuantityBelowRedeemed):
			c.JSON(http.StatusConflict, gin.H{"error": "quantityTotal is below the number already won"})
		default:
			h.logger.Error("update prize failed", sl.Err(err), "prize", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		}
		return
	}
	h.cache.Invalidate()
	c.JSON(http.StatusOK, gin.H{"prize": prize})
}

func (h *Handler) AdminDeletePrize(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.store.DeletePrize(c.Request.Context(), id); err != nil {
		switch {
		case errors.Is(err, database.ErrPrizeNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "prize not found"})
		case errors.Is(err, database.ErrPrizeInUse):
			c.JSON(http.StatusConflict, gin.H{"error": "prize already awarded, deactivate it instead"})
		default:
			h.logger.Error("delete prize failed", sl.Err(err), "prize", id)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		}
		return
	}
	h.cache.Invalidate()
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
