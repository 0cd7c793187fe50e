package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"spin-rewards/internal/auth"
	"spin-rewards/internal/database"
	"spin-rewards/internal/lib/logger/sl"
)

func (h *Handler) AdminListVendors(c *gin.Context) {
	vendors, err := h.store.ListVendors(c.Request.Context())
	if err != nil {
		h.logger.Error("admin list vendors failed", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list vendors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vendors": vendors})
}

type createVendorRequest struct {
	Name     string `json:"name" binding:"required,max=120"`
	Location string `json:"location" binding:"max=200"`
	PIN      string `json:"pin" binding:"required,min=4,max=32"`
}

func (h *Handler) AdminCreateVendor(c *gin.Context) {
	var req createVendorRequest
	if !bindJSON(c, &req) {
		return
	}
	hash, err := auth.HashPIN(req.PIN)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vendor, err := h.store.CreateVendor(c.Request.Context(), req.Name, req.Location, hash, h.now())
	if err != nil {
		h.logger.Error("create vendor failed", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"vendor": vendor})
}

type updateVendorRequest struct {
	Name     string `json:"name" binding:"required,max=120"`
	Location string `json:"location" binding:"max=200"`
	// PIN is optional; an empty value keeps the current one.
	PIN    string `json:"pin" binding:"omitempty,min=4,max=32"`
	Active *bool  `json:"active"`
}

func (h *Handler) AdminUpdateVendor(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req updateVendorRequest
	if !bindJSON(c, &req) {
		return
	}
	var hash string
	if req.PIN != "" {
		var err error
		if hash, err = auth.HashPIN(req.PIN); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	if err := h.store.UpdateVendor(c.Request.Context(), id, req.Name, req.Location, hash, active); err != nil {
		if errors.Is(err, database.ErrVendorNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "vendor not found"})
			return
		}
		h.logger.Error("update vendor failed", sl.Err(err), sl.VendorID(id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AdminDeleteVendor removes a vendor; one that has redeemed vouchers is deactivated instead.
func (h *Handler) AdminDeleteVendor(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteVendor(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrVendorNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "vendor not found"})
			return
		}
		h.logger.Error("delete vendor failed", sl.Err(err), sl.VendorID(id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
