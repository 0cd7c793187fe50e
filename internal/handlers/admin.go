package handlers

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"spin-rewards/internal/auth"
	"spin-rewards/internal/lib/logger/sl"
	"spin-rewards/internal/models"
	adminsvc "spin-rewards/internal/services/admin"
)

type adminLoginRequest struct {
	Password string `json:"password" binding:"required"`
	Code     string `json:"code" binding:"required"`
}

func (h *Handler) AdminLogin(c *gin.Context) {
	var req adminLoginRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := auth.CheckAdmin(req.Password, req.Code, h.cfg.AdminPassword, h.cfg.AdminTOTPSecret); err != nil {
		h.logger.Warn("admin login rejected", "remote_addr", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	token, err := h.jwt.IssueToken(0, "admin", auth.RoleAdmin, adminTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (h *Handler) AdminListUsers(c *gin.Context) {
	limit, offset := parsePagination(c, 50, 0)
	users, total, err := h.store.ListUsers(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("admin list users failed", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"users": users,
		"total": total,
	})
}

func (h *Handler) AdminListOutcomes(c *gin.Context) {
	limit, offset := parsePagination(c, 50, 0)
	outcomes, total, err := h.store.ListOutcomes(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("admin list outcomes failed", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list outcomes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"outcomes": outcomes,
		"total":    total,
	})
}

func (h *Handler) HourlyStats(c *gin.Context) {
	hours := 24
	if v := c.Query("hours"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 24*31 {
			hours = parsed
		}
	}
	since := h.now().Add(-time.Duration(hours) * time.Hour)
	stats, overview, err := h.store.HourlyStats(c.Request.Context(), since)
	if err != nil {
		h.logger.Error("hourly stats failed", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"overview": overview,
		"stats":    stats,
	})
}

func (h *Handler) Inventory(c *gin.Context) {
	lines, err := h.store.InventorySummary(c.Request.Context())
	if err != nil {
		h.logger.Error("inventory summary failed", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "inventory failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": lines})
}

var exportHeader = []string{
	"outcome_id", "user_email", "outcome", "prize", "redemption_token",
	"redemption_status", "vendor", "redeemed_at", "expires_at", "created_at",
}

// ExportOutcomesCSV streams outcomes as CSV. An optional since query (RFC 3339) bounds the range.
func (h *Handler) ExportOutcomesCSV(c *gin.Context) {
	var since time.Time
	if v := c.Query("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC 3339"})
			return
		}
		since = parsed
	}
	outcomes, err := h.store.ExportOutcomes(c.Request.Context(), since)
	if err != nil {
		h.logger.Error("export outcomes failed", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", "attachment;filename=spin_outcomes.csv")
	c.Status(http.StatusOK)
	// BOM so spreadsheet tools detect UTF-8
	_, _ = c.Writer.Write([]byte("\xef\xbb\xbf"))

	w := csv.NewWriter(c.Writer)
	if err := w.Write(exportHeader); err != nil {
		h.logger.Error("csv header write failed", sl.Err(err))
		return
	}
	for _, o := range outcomes {
		if err := w.Write(exportRow(o)); err != nil {
			h.logger.Error("csv row write failed", sl.Err(err))
			return
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		h.logger.Error("csv flush failed", sl.Err(err))
	}
}

func exportRow(o models.OutcomeWithUser) []string {
	row := []string{
		strconv.FormatInt(o.ID, 10),
		o.UserEmail,
		string(o.OutcomeStatus),
		o.PrizeTitle,
		"", "", "", "", "",
		o.CreatedAt.UTC().Format(time.RFC3339),
	}
	if o.RedemptionToken != nil {
		row[4] = *o.RedemptionToken
	}
	if o.RedemptionStatus != nil {
		row[5] = string(*o.RedemptionStatus)
	}
	if o.VendorName != nil {
		row[6] = *o.VendorName
	}
	if o.RedeemedAt != nil {
		row[7] = o.RedeemedAt.UTC().Format(time.RFC3339)
	}
	if o.ExpiresAt != nil {
		row[8] = o.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return row
}

func (h *Handler) SettingsList(c *gin.Context) {
	values, err := h.settings.Read()
	if err != nil {
		h.logger.Error("settings read failed", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings read failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": values})
}

func (h *Handler) SettingsUpdate(c *gin.Context) {
	payload := map[string]string{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	written, err := h.settings.Update(payload)
	if err != nil {
		if errors.Is(err, adminsvc.ErrNoEditableKeys) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no editable keys"})
			return
		}
		h.logger.Error("settings update failed", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	h.logger.Info("settings updated", "keys", written)
	c.JSON(http.StatusOK, gin.H{"updated": written, "restartRequired": true})
}
