package dashboard

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"tgmatch/internal/auth"
	"tgmatch/internal/events"
	"tgmatch/internal/models"
	"tgmatch/internal/stats"
	"tgmatch/internal/storage"
	"tgmatch/internal/telegramauth"
	"tgmatch/pkg/protocol"
)

func (h *Handler) Login(c *gin.Context) {
	if _, err := h.Session.GetSession(c.Request); err == nil {
		c.Redirect(http.StatusTemporaryRedirect, "/")
		return
	}

	c.HTML(http.StatusOK, "login.html", gin.H{
		"BotName": h.BotName,
		"AuthURL": h.baseURL(c) + "/auth/telegram",
	})
}

func (h *Handler) Index(c *gin.Context) {
	session, err := h.Session.GetSession(c.Request)
	if err != nil {
		c.Redirect(http.StatusTemporaryRedirect, "/login")
		return
	}
	user, err := h.Store.UserByID(c.Request.Context(), session.UserID)
	if err != nil || user.Role == models.RoleBanned {
		h.Session.ClearSession(c.Writer)
		c.Redirect(http.StatusTemporaryRedirect, "/login")
		return
	}

	c.HTML(http.StatusOK, "index.html", gin.H{
		"User":    user,
		"Profile": toProfile(*user),
		"IsStaff": user.Role.IsStaff(),
	})
}

// LoginQR renders a QR code opening the Mini App, for desktop visitors.
func (h *Handler) LoginQR(c *gin.Context) {
	if h.BotName == "" {
		fail(c, http.StatusNotFound, protocol.ErrorCodeNotFound, "Bot name is not configured")
		return
	}
	png, err := qrcode.Encode(fmt.Sprintf("https://t.me/%s?startapp", h.BotName), qrcode.Medium, 256)
	if err != nil {
		log.Printf("[login] qr encode: %v", err)
		fail(c, http.StatusInternalServerError, protocol.ErrorCodeInternal, "Failed to render QR code")
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, "image/png", png)
}

// TelegramCallback is the Login Widget redirect target.
func (h *Handler) TelegramCallback(c *gin.Context) {
	ident, err := telegramauth.VerifyLoginWidget(c.Request.URL.Query(), h.BotToken)
	if err == nil {
		err = telegramauth.CheckFreshness(ident.AuthDate, h.now(), h.MaxAge)
	}
	if err != nil {
		h.rejectAuth(c, telegramauth.LoginWidget, err)
		return
	}

	user, _, ok := h.signIn(c, telegramauth.LoginWidget, ident)
	if !ok {
		return
	}
	if _, err := h.Session.SetSession(c.Writer, h.sessionFor(user, telegramauth.LoginWidget)); err != nil {
		log.Printf("Failed to set session: %v", err)
		fail(c, http.StatusInternalServerError, protocol.ErrorCodeInternal, "Failed to create session")
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, "/")
}

// MiniAppInit verifies Telegram.WebApp.initData and returns a bearer token.
// The session cookie is set as well for clients that keep cookies.
func (h *Handler) MiniAppInit(c *gin.Context) {
	if h.BotToken == "" {
		h.rejectAuth(c, telegramauth.MiniApp, telegramauth.ErrMissingBotToken)
		return
	}

	var req protocol.InitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, protocol.ErrorCodeBadRequest, "initData is required")
		return
	}

	data, err := telegramauth.VerifyInitData(req.InitData, h.BotToken)
	if err == nil {
		err = telegramauth.CheckFreshness(data.AuthDate, h.now(), h.MaxAge)
	}
	if err != nil {
		h.rejectAuth(c, telegramauth.MiniApp, err)
		return
	}

	user, created, ok := h.signIn(c, telegramauth.MiniApp, &data.User)
	if !ok {
		return
	}
	token, err := h.Session.SetSession(c.Writer, h.sessionFor(user, telegramauth.MiniApp))
	if err != nil {
		log.Printf("Failed to set session: %v", err)
		fail(c, http.StatusInternalServerError, protocol.ErrorCodeInternal, "Failed to create session")
		return
	}

	c.JSON(http.StatusOK, protocol.InitResponse{
		Success:   true,
		Token:     token,
		UserID:    user.ID,
		IsNewUser: created,
	})
}

func (h *Handler) Logout(c *gin.Context) {
	h.Session.ClearSession(c.Writer)
	c.Redirect(http.StatusTemporaryRedirect, "/login")
}

// signIn stores the verified identity and records the outcome. On failure
// the response has already been written.
func (h *Handler) signIn(c *gin.Context, p telegramauth.Protocol, ident *telegramauth.Identity) (*models.User, bool, bool) {
	user, created, err := h.Store.UpsertTelegramUser(c.Request.Context(), ident)
	if errors.Is(err, storage.ErrBanned) {
		h.publishAuth(c, events.EventAuthRejected, p, ident.ID, "banned")
		fail(c, http.StatusForbidden, protocol.ErrorCodeBanned, "Account is banned")
		return nil, false, false
	}
	if err != nil {
		h.storeError(c, err)
		return nil, false, false
	}

	h.Stats.RecordAuth(p.String(), stats.OutcomeAuthentic)
	h.publishAuth(c, events.EventAuthSucceeded, p, ident.ID, "")
	if created {
		log.Printf("[auth] new user %d via %s", user.ID, p)
	}
	return user, created, true
}

func (h *Handler) sessionFor(user *models.User, p telegramauth.Protocol) auth.SessionData {
	return auth.SessionData{
		UserID:     user.ID,
		TelegramID: user.TelegramID,
		Protocol:   p.String(),
	}
}

// rejectAuth answers a failed verification. A missing bot token is a server
// fault, not a client one.
func (h *Handler) rejectAuth(c *gin.Context, p telegramauth.Protocol, err error) {
	var (
		status  int
		code    protocol.ErrorCode
		outcome stats.Outcome
		msg     string
	)
	switch {
	case errors.Is(err, telegramauth.ErrMissingBotToken):
		log.Printf("[auth] ERROR: %s sign-in refused, TELEGRAM_BOT_TOKEN is not configured", p)
		status, code, outcome, msg = http.StatusInternalServerError, protocol.ErrorCodeServerMisconfigured, stats.OutcomeMisconfigured, "Server misconfigured"
	case errors.Is(err, telegramauth.ErrNotAuthentic):
		status, code, outcome, msg = http.StatusUnauthorized, protocol.ErrorCodeInvalidSignature, stats.OutcomeRejected, "Invalid Telegram Hash"
	case errors.Is(err, telegramauth.ErrMalformedPayload):
		status, code, outcome, msg = http.StatusBadRequest, protocol.ErrorCodeMalformedPayload, stats.OutcomeMalformed, "Invalid user data"
	case errors.Is(err, telegramauth.ErrExpired):
		status, code, outcome, msg = http.StatusUnauthorized, protocol.ErrorCodeExpired, stats.OutcomeExpired, "Telegram auth data is too old"
	default:
		log.Printf("[auth] %s verification: %v", p, err)
		status, code, outcome, msg = http.StatusInternalServerError, protocol.ErrorCodeInternal, stats.OutcomeRejected, "Internal server error"
	}

	h.Stats.RecordAuth(p.String(), outcome)
	h.publishAuth(c, events.EventAuthRejected, p, 0, err.Error())
	fail(c, status, code, msg)
}

func (h *Handler) publishAuth(c *gin.Context, t events.EventType, p telegramauth.Protocol, telegramID int64, reason string) {
	h.Bus.Publish(events.Event{
		Type: t,
		Data: events.AuthData{
			Protocol:   p.String(),
			TelegramID: telegramID,
			Reason:     reason,
			RemoteAddr: c.ClientIP(),
		},
	})
}

func (h *Handler) baseURL(c *gin.Context) string {
	if h.Secure {
		return "https://" + h.Domain
	}
	return "http://" + c.Request.Host
}
