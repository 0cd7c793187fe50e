package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"spin-rewards/internal/auth"
	"spin-rewards/internal/middleware"
)

type otpRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (h *Handler) RequestOTP(c *gin.Context) {
	var req otpRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.otp.Request(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

type otpVerifyRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

func (h *Handler) VerifyOTP(c *gin.Context) {
	var req otpVerifyRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.otp.Verify(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	token, err := h.jwt.IssueToken(user.ID, user.Email, auth.RoleUser, userTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (h *Handler) UserState(c *gin.Context) {
	user, outcome, err := h.draw.State(c.Request.Context(), middleware.SubjectID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":    user,
		"outcome": outcome,
		"canSpin": user.EmailVerified && !user.HasSpun,
	})
}

func (h *Handler) Spin(c *gin.Context) {
	result, err := h.draw.Spin(c.Request.Context(), middleware.SubjectID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"outcome": result.Outcome,
		"prize":   result.Prize,
		"won":     result.Outcome.Won(),
	})
}

func (h *Handler) VoucherQR(c *gin.Context) {
	png, err := h.draw.VoucherQR(c.Request.Context(), middleware.SubjectID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
