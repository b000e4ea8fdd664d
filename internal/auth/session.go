package auth

import (
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
)

const (
	cookieName = "session"
	maxAge     = 30 * 24 * 60 * 60 // 30 days
)

// ErrNoSession means the request carries neither a cookie nor a bearer token.
var ErrNoSession = errors.New("no session")

// SessionManager handles signed and encrypted session tokens. The same
// encoded value is used as a cookie (browser) and as a bearer token (Mini
// App, where third-party cookies are unreliable).
type SessionManager struct {
	sc       *securecookie.SecureCookie
	isSecure bool // Whether to set Secure flag on cookies
}

// SessionData represents the data stored in the session
type SessionData struct {
	UserID     uint   `json:"user_id"`
	TelegramID int64  `json:"telegram_id"`
	Protocol   string `json:"protocol"`
	CreatedAt  int64  `json:"created_at"`
}

// NewSessionManager creates a session manager from hex-encoded keys.
// Missing or invalid keys are replaced by random ones (sessions then do not
// survive a restart).
func NewSessionManager(hashKeyHex, blockKeyHex string, isSecure bool) *SessionManager {
	hashKey := keyOrRandom("session hash key", hashKeyHex, 32)
	blockKey := keyOrRandom("session block key", blockKeyHex, 32)

	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(maxAge)

	return &SessionManager{
		sc:       sc,
		isSecure: isSecure,
	}
}

func keyOrRandom(name, keyHex string, length int) []byte {
	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err == nil && len(key) >= length {
			return key[:length]
		}
		log.Printf("Warning: %s is invalid, generating random key", name)
	} else {
		log.Printf("Warning: %s not set, using random key (sessions won't persist)", name)
	}

	key, err := RandomBytes(length)
	if err != nil {
		log.Fatalf("Failed to generate %s: %v", name, err)
	}
	return key
}

// Issue encodes a new session token.
func (sm *SessionManager) Issue(data SessionData) (string, error) {
	if data.CreatedAt == 0 {
		data.CreatedAt = time.Now().Unix()
	}
	return sm.sc.Encode(cookieName, data)
}

// SetSession issues a token and stores it in the session cookie.
func (sm *SessionManager) SetSession(w http.ResponseWriter, data SessionData) (string, error) {
	encoded, err := sm.Issue(data)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   sm.isSecure,
		HttpOnly: true,
		SameSite: sm.sameSite(),
	})
	return encoded, nil
}

// GetSession reads the bearer token or, failing that, the session cookie.
func (sm *SessionManager) GetSession(r *http.Request) (*SessionData, error) {
	token := bearerToken(r)
	if token == "" {
		cookie, err := r.Cookie(cookieName)
		if err != nil {
			return nil, ErrNoSession
		}
		token = cookie.Value
	}

	var data SessionData
	if err := sm.sc.Decode(cookieName, token, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ClearSession removes the session cookie
func (sm *SessionManager) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   sm.isSecure,
		HttpOnly: true,
		SameSite: sm.sameSite(),
	})
}

// Mini Apps run inside Telegram's iframe, so a secure deployment needs
// SameSite=None for the cookie to be sent at all.
func (sm *SessionManager) sameSite() http.SameSite {
	if sm.isSecure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	parts := strings.SplitN(h, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
