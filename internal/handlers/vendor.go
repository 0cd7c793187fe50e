package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"spin-rewards/internal/auth"
	"spin-rewards/internal/database"
	"spin-rewards/internal/lib/logger/sl"
	"spin-rewards/internal/middleware"
)

type vendorLoginRequest struct {
	VendorID int64  `json:"vendorId" binding:"required,gt=0"`
	PIN      string `json:"pin" binding:"required"`
}

func (h *Handler) VendorLogin(c *gin.Context) {
	var req vendorLoginRequest
	if !bindJSON(c, &req) {
		return
	}
	vendor, err := h.store.GetVendor(c.Request.Context(), req.VendorID)
	if err != nil {
		if errors.Is(err, database.ErrVendorNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.logger.Error("vendor lookup failed", sl.Err(err), sl.VendorID(req.VendorID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if err := auth.CheckPIN(vendor.PINHash, req.PIN); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !vendor.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "vendor disabled"})
		return
	}
	token, err := h.jwt.IssueToken(vendor.ID, vendor.Name, auth.RoleVendor, vendorTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "vendor": vendor})
}

func (h *Handler) VendorInspect(c *gin.Context) {
	preview, err := h.redeem.Inspect(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"voucher": preview})
}

type redeemRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *Handler) VendorRedeem(c *gin.Context) {
	var req redeemRequest
	if !bindJSON(c, &req) {
		return
	}
	vendorID := middleware.SubjectID(c)
	receipt, err := h.redeem.Redeem(c.Request.Context(), req.Token, vendorID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": receipt})
}
