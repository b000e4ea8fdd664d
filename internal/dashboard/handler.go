package dashboard

import (
	"embed"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tgmatch/internal/audit"
	"tgmatch/internal/auth"
	"tgmatch/internal/config"
	"tgmatch/internal/events"
	"tgmatch/internal/models"
	"tgmatch/internal/stats"
	"tgmatch/internal/storage"
	"tgmatch/pkg/protocol"
)

//go:embed templates/*
var templateFS embed.FS

// Handler serves the login pages, the Mini App API and the admin API.
type Handler struct {
	BotToken  string
	BotName   string
	Domain    string
	Secure    bool
	MaxAge    time.Duration
	FeedLimit int

	Store   *storage.Store
	Session *auth.SessionManager
	Bus     *events.Bus
	Stats   *stats.Stats
	Audit   audit.Store

	now func() time.Time
}

// NewHandler wires a handler from configuration. It starts recording auth
// events into the audit log; call Close to stop it.
func NewHandler(cfg *config.Config, store *storage.Store) *Handler {
	secure := cfg.IsSecure()
	h := &Handler{
		BotToken:  cfg.Telegram.BotToken,
		BotName:   cfg.Telegram.BotName,
		Domain:    cfg.Domain,
		Secure:    secure,
		MaxAge:    cfg.Telegram.MaxAge,
		FeedLimit: cfg.Dating.FeedLimit,
		Store:     store,
		Session:   auth.NewSessionManager(cfg.Session.HashKey, cfg.Session.BlockKey, secure),
		Bus:       events.NewBus(),
		Stats:     stats.New(),
		Audit:     audit.NewInMemoryStore(0),
		now:       time.Now,
	}
	if h.FeedLimit <= 0 {
		h.FeedLimit = 50
	}
	go audit.Record(h.Bus.Subscribe(), h.Audit)
	return h
}

// Close stops event delivery.
func (h *Handler) Close() {
	h.Bus.Close()
}

func (h *Handler) LoadTemplates(r *gin.Engine) error {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return err
	}
	r.SetHTMLTemplate(tmpl)
	return nil
}

// Router builds the gin engine with all middleware and routes.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), requestID(), h.measure())
	if err := h.LoadTemplates(r); err != nil {
		log.Fatal("Failed to parse templates:", err)
	}
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.Index)
	r.GET("/login", h.Login)
	r.GET("/login/qr.png", h.LoginQR)
	r.GET("/auth/telegram", h.TelegramCallback)
	r.GET("/logout", h.Logout)
	r.GET("/healthz", h.Health)

	r.POST("/api/init", h.MiniAppInit)

	api := r.Group("/api", h.RequireSession())
	api.GET("/me", h.Me)
	api.GET("/feed", h.Feed)
	api.POST("/like", h.Like)
	api.GET("/matches", h.Matches)
	api.POST("/report", h.Report)
	api.GET("/tickets", h.MyTickets)
	api.POST("/tickets", h.CreateTicket)

	admin := api.Group("/admin", RequireRole(models.Role.IsStaff))
	admin.GET("/users", h.AdminUsers)
	admin.POST("/users/:id/verify", h.AdminToggleVerified)
	admin.POST("/users/:id/ban", h.AdminBan)
	admin.POST("/users/:id/badges", h.AdminAssignBadge)
	admin.GET("/tickets", h.AdminTickets)
	admin.POST("/tickets/:id/answer", h.AdminAnswerTicket)
	admin.POST("/tickets/:id/close", h.AdminCloseTicket)

	owner := admin.Group("", RequireRole(isAdmin))
	owner.POST("/users/:id/role", h.AdminSetRole)
	owner.GET("/stats", h.AdminStats)
	owner.POST("/stats/reset", h.AdminResetStats)
	owner.GET("/auth-log", h.AdminAuthLog)
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.Store.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func fail(c *gin.Context, status int, code protocol.ErrorCode, msg string) {
	c.AbortWithStatusJSON(status, protocol.Response{Success: false, Error: msg, ErrorCode: code})
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, protocol.Response{Success: true, Data: data})
}

// storeError maps storage failures to API errors.
func (h *Handler) storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		fail(c, http.StatusNotFound, protocol.ErrorCodeNotFound, "Not found")
	case errors.Is(err, storage.ErrSelfTarget),
		errors.Is(err, storage.ErrInvalidRole),
		errors.Is(err, storage.ErrEmptyField):
		fail(c, http.StatusBadRequest, protocol.ErrorCodeBadRequest, err.Error())
	case errors.Is(err, storage.ErrSuperLikeLimit):
		fail(c, http.StatusTooManyRequests, protocol.ErrorCodeLimitReached, err.Error())
	case errors.Is(err, storage.ErrTicketClosed):
		fail(c, http.StatusConflict, protocol.ErrorCodeConflict, err.Error())
	default:
		log.Printf("[api] %s %s: %v", c.Request.Method, c.FullPath(), err)
		h.Bus.PublishError(err, c.FullPath())
		fail(c, http.StatusInternalServerError, protocol.ErrorCodeInternal, "Internal server error")
	}
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusBadRequest, protocol.ErrorCodeBadRequest, "Invalid id")
		return 0, false
	}
	return uint(id), true
}
