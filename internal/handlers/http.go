package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"spin-rewards/internal/apperr"
	"spin-rewards/internal/auth"
	"spin-rewards/internal/cache"
	"spin-rewards/internal/config"
	"spin-rewards/internal/database"
	"spin-rewards/internal/lib/logger/sl"
	"spin-rewards/internal/middleware"
	adminsvc "spin-rewards/internal/services/admin"
	"spin-rewards/internal/services/draw"
	"spin-rewards/internal/services/redeem"
)

const (
	userTokenTTL   = 24 * time.Hour
	vendorTokenTTL = 12 * time.Hour
	adminTokenTTL  = 4 * time.Hour
)

type Handler struct {
	cfg      *config.Config
	store    *database.Store
	draw     *draw.Service
	redeem   *redeem.Service
	otp      *auth.OTPService
	settings *adminsvc.SettingsService
	jwt      *auth.Manager
	cache    *cache.PrizeCache
	logger   *slog.Logger
	now      func() time.Time
}

type Deps struct {
	Config   *config.Config
	Store    *database.Store
	Draw     *draw.Service
	Redeem   *redeem.Service
	OTP      *auth.OTPService
	Settings *adminsvc.SettingsService
	JWT      *auth.Manager
	Cache    *cache.PrizeCache
	Logger   *slog.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		cfg:      d.Config,
		store:    d.Store,
		draw:     d.Draw,
		redeem:   d.Redeem,
		otp:      d.OTP,
		settings: d.Settings,
		jwt:      d.JWT,
		cache:    d.Cache,
		logger:   d.Logger,
		now:      time.Now,
	}
}

var tagNameOnce sync.Once

// useJSONFieldNames makes validator report "email" rather than "Email".
func useJSONFieldNames() {
	tagNameOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
}

func RegisterRoutes(r *gin.Engine, h *Handler, jwt *auth.Manager, adminIPs []string) {
	useJSONFieldNames()

	r.GET("/api/health", h.Health)
	r.POST("/api/auth/otp/request", h.RequestOTP)
	r.POST("/api/auth/otp/verify", h.VerifyOTP)
	r.POST("/api/vendor/login", h.VendorLogin)

	api := r.Group("/api")
	api.Use(middleware.JWT(jwt), middleware.RequireRole(auth.RoleUser))
	api.GET("/state", h.UserState)
	api.POST("/spins", h.Spin)
	api.GET("/voucher/qr", h.VoucherQR)

	vendor := r.Group("/api/vendor")
	vendor.Use(middleware.JWT(jwt), middleware.RequireRole(auth.RoleVendor))
	vendor.GET("/tokens/:token", h.VendorInspect)
	vendor.POST("/redeem", h.VendorRedeem)

	admin := r.Group("/api/admin")
	admin.Use(middleware.AdminIPWhitelist(adminIPs))
	admin.POST("/login", h.AdminLogin)

	adminProtected := admin.Group("/")
	adminProtected.Use(middleware.JWT(jwt), middleware.RequireRole(auth.RoleAdmin))
	adminProtected.GET("/users", h.AdminListUsers)
	adminProtected.GET("/prizes", h.AdminListPrizes)
	adminProtected.POST("/prizes", h.AdminCreatePrize)
	adminProtected.PUT("/prizes/:id", h.AdminUpdatePrize)
	adminProtected.DELETE("/prizes/:id", h.AdminDeletePrize)
	adminProtected.GET("/vendors", h.AdminListVendors)
	adminProtected.POST("/vendors", h.AdminCreateVendor)
	adminProtected.PUT("/vendors/:id", h.AdminUpdateVendor)
	adminProtected.DELETE("/vendors/:id", h.AdminDeleteVendor)
	adminProtected.GET("/outcomes", h.AdminListOutcomes)
	adminProtected.GET("/stats/hourly", h.HourlyStats)
	adminProtected.GET("/inventory", h.Inventory)
	adminProtected.GET("/export.csv", h.ExportOutcomesCSV)
	adminProtected.GET("/settings", h.SettingsList)
	adminProtected.PUT("/settings", h.SettingsUpdate)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": h.now().UTC()})
}

// respondError writes err as {"error": msg}, logging only server-side failures.
func (h *Handler) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindServer {
		h.logger.Error("request failed", sl.Err(err), "path", c.FullPath(), "request_id", middleware.RequestIDFromContext(c))
	}
	c.JSON(apperr.HTTPStatus(kind), gin.H{"error": apperr.Message(err)})
}

// bindJSON decodes the body into dst, answering 400 itself on failure.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(verrs)})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return false
	}
	return true
}

func validationMessage(errs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", err.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("field %s must be a valid email", err.Field()))
		case "gte", "gt", "min":
			msgs = append(msgs, fmt.Sprintf("field %s must be at least %s", err.Field(), err.Param()))
		case "lte", "max":
			msgs = append(msgs, fmt.Sprintf("field %s must be at most %s", err.Field(), err.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is invalid", err.Field()))
		}
	}
	return strings.Join(msgs, ", ")
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func parsePagination(c *gin.Context, defaultLimit, defaultOffset int) (int, int) {
	limit := defaultLimit
	offset := defaultOffset
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
