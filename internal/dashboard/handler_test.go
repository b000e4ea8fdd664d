package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tgmatch/internal/auth"
	"tgmatch/internal/config"
	"tgmatch/internal/events"
	"tgmatch/internal/stats"
	"tgmatch/internal/storage"
	"tgmatch/internal/telegramauth"
	"tgmatch/pkg/protocol"
)

const testBotToken = "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"

// Telegram id 1 is configured as admin.
const adminTelegramID = 1

type testEnv struct {
	h *Handler
	r *gin.Engine
}

type envelope struct {
	Success   bool               `json:"success"`
	Error     string             `json:"error"`
	ErrorCode protocol.ErrorCode `json:"error_code"`
	Data      json.RawMessage    `json:"data"`
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.Open(filepath.Join(t.TempDir(), "test.db"), storage.Options{
		AdminTelegramIDs: []int64{adminTelegramID},
		SuperLikesPerDay: 1,
	})
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}

	cfg := config.Default()
	cfg.Telegram.BotToken = testBotToken
	cfg.Telegram.BotName = "match_bot"
	cfg.Session.HashKey, _ = auth.GenerateKeyHex(32)
	cfg.Session.BlockKey, _ = auth.GenerateKeyHex(32)

	h := NewHandler(cfg, store)
	t.Cleanup(func() {
		h.Close()
		store.Close()
	})
	return &testEnv{h: h, r: h.Router()}
}

func now() string { return strconv.FormatInt(time.Now().Unix(), 10) }

func signedWidgetQuery(t *testing.T, m map[string]string) string {
	t.Helper()
	fields := telegramauth.FieldsFromMap(m)
	hash, err := telegramauth.Sign(telegramauth.LoginWidget, fields, testBotToken)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	return fields.Set("hash", hash).Encode()
}

func signedInitData(t *testing.T, m map[string]string) string {
	t.Helper()
	fields := telegramauth.FieldsFromMap(m)
	hash, err := telegramauth.Sign(telegramauth.MiniApp, fields, testBotToken)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	return fields.Set("hash", hash).Encode()
}

func userJSON(id int64, first string) string {
	return fmt.Sprintf(`{"id":%d,"first_name":%q,"username":"u%d"}`, id, first, id)
}

func (e *testEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) protocol.ErrorCode {
	t.Helper()
	var env envelope
	decode(t, w, &env)
	return env.ErrorCode
}

// signIn runs the Mini App flow and returns the bearer token and user id.
func (e *testEnv) signIn(t *testing.T, telegramID int64, first string) (string, uint) {
	t.Helper()
	initData := signedInitData(t, map[string]string{
		"query_id":  "AAHdF6IQAAAAAN0XohDhrOrc",
		"user":      userJSON(telegramID, first),
		"auth_date": now(),
	})
	w := e.do("POST", "/api/init", "", protocol.InitRequest{InitData: initData})
	if w.Code != http.StatusOK {
		t.Fatalf("POST /api/init status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp protocol.InitResponse
	decode(t, w, &resp)
	if resp.Token == "" {
		t.Fatal("empty session token")
	}
	return resp.Token, resp.UserID
}

func TestTelegramCallback_Valid(t *testing.T) {
	env := newTestEnv(t)
	query := signedWidgetQuery(t, map[string]string{
		"id":         "42",
		"first_name": "Anna",
		"last_name":  "Petrova",
		"username":   "anna",
		"photo_url":  "https://t.me/i/userpic/320/anna.jpg",
		"auth_date":  now(),
	})

	w := env.do("GET", "/auth/telegram?"+query, "", nil)
	if w.Code != http.StatusTemporaryRedirect || w.Header().Get("Location") != "/" {
		t.Fatalf("status = %d, location = %q", w.Code, w.Header().Get("Location"))
	}
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "session" {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("session cookie not set")
	}

	user, err := env.h.Store.UserByTelegramID(context.Background(), 42)
	if err != nil {
		t.Fatalf("UserByTelegramID() error = %v", err)
	}
	if user.FullName != "Anna Petrova" || user.PhotoURL == "" {
		t.Errorf("user = %+v", user)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	env.r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Anna Petrova") {
		t.Errorf("GET / status = %d, body = %s", w.Code, w.Body.String())
	}

	snap := env.h.Stats.Snapshot()
	if snap.Outcomes["login_widget"][stats.OutcomeAuthentic] != 1 {
		t.Errorf("outcomes = %v", snap.Outcomes)
	}
}

func TestTelegramCallback_Rejects(t *testing.T) {
	env := newTestEnv(t)
	valid := map[string]string{"id": "42", "first_name": "Anna", "auth_date": now()}

	tampered := strings.Replace(signedWidgetQuery(t, valid), "first_name=Anna", "first_name=Eve", 1)
	stale := signedWidgetQuery(t, map[string]string{
		"id":        "42",
		"auth_date": strconv.FormatInt(time.Now().Add(-48*time.Hour).Unix(), 10),
	})

	tests := []struct {
		name   string
		query  string
		status int
		code   protocol.ErrorCode
	}{
		{"tampered field", tampered, http.StatusUnauthorized, protocol.ErrorCodeInvalidSignature},
		{"missing hash", "id=42&first_name=Anna&auth_date=" + now(), http.StatusUnauthorized, protocol.ErrorCodeInvalidSignature},
		{"non-numeric id", signedWidgetQuery(t, map[string]string{"id": "abc", "auth_date": now()}), http.StatusBadRequest, protocol.ErrorCodeMalformedPayload},
		{"stale auth_date", stale, http.StatusUnauthorized, protocol.ErrorCodeExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("GET", "/auth/telegram?"+tt.query, "", nil)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if code := errorCode(t, w); code != tt.code {
				t.Errorf("error_code = %q, want %q", code, tt.code)
			}
			if len(w.Result().Cookies()) != 0 {
				t.Error("rejected sign-in must not set a cookie")
			}
		})
	}

	if _, err := env.h.Store.UserByTelegramID(context.Background(), 42); err == nil {
		t.Error("rejected payloads must not create users")
	}
	outcomes := env.h.Stats.Snapshot().Outcomes["login_widget"]
	if outcomes[stats.OutcomeRejected] != 2 || outcomes[stats.OutcomeMalformed] != 1 || outcomes[stats.OutcomeExpired] != 1 {
		t.Errorf("outcomes = %v", outcomes)
	}
}

func TestSignIn_MissingBotTokenIsServerFault(t *testing.T) {
	env := newTestEnv(t)
	env.h.BotToken = ""

	w := env.do("GET", "/auth/telegram?id=42&auth_date="+now()+"&hash=00", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("widget status = %d, want 500", w.Code)
	}
	if code := errorCode(t, w); code != protocol.ErrorCodeServerMisconfigured {
		t.Errorf("error_code = %q", code)
	}

	w = env.do("POST", "/api/init", "", protocol.InitRequest{InitData: "user=%7B%22id%22%3A1%7D&hash=00"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("init status = %d, want 500", w.Code)
	}

	snap := env.h.Stats.Snapshot()
	if snap.Outcomes["login_widget"][stats.OutcomeMisconfigured] != 1 || snap.Outcomes["mini_app"][stats.OutcomeMisconfigured] != 1 {
		t.Errorf("outcomes = %v", snap.Outcomes)
	}
}

func TestMiniAppInit(t *testing.T) {
	env := newTestEnv(t)
	initData := signedInitData(t, map[string]string{
		"user":      userJSON(77, "Boris"),
		"auth_date": now(),
		"signature": "ed25519-signature-is-not-part-of-the-hmac",
	})

	w := env.do("POST", "/api/init", "", protocol.InitRequest{InitData: initData})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp protocol.InitResponse
	decode(t, w, &resp)
	if !resp.Success || !resp.IsNewUser || resp.Token == "" {
		t.Errorf("first init = %+v", resp)
	}

	w = env.do("POST", "/api/init", "", protocol.InitRequest{InitData: initData})
	var again protocol.InitResponse
	decode(t, w, &again)
	if again.IsNewUser || again.UserID != resp.UserID {
		t.Errorf("second init = %+v, want existing user %d", again, resp.UserID)
	}

	w = env.do("GET", "/api/me", resp.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/me status = %d", w.Code)
	}
	var me struct {
		Data struct {
			Profile    protocol.Profile `json:"profile"`
			TelegramID int64            `json:"telegram_id"`
			Role       string           `json:"role"`
		} `json:"data"`
	}
	decode(t, w, &me)
	if me.Data.Profile.FullName != "Boris" || me.Data.TelegramID != 77 || me.Data.Role != "user" {
		t.Errorf("me = %+v", me.Data)
	}
}

func TestMiniAppInit_Rejects(t *testing.T) {
	env := newTestEnv(t)
	widgetSigned := signedWidgetQuery(t, map[string]string{"user": userJSON(5, "X"), "auth_date": now()})

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   protocol.ErrorCode
	}{
		{"empty body", map[string]string{}, http.StatusBadRequest, protocol.ErrorCodeBadRequest},
		{"widget-signed payload", protocol.InitRequest{InitData: widgetSigned}, http.StatusUnauthorized, protocol.ErrorCodeInvalidSignature},
		{"no user field", protocol.InitRequest{InitData: signedInitData(t, map[string]string{"auth_date": now()})}, http.StatusBadRequest, protocol.ErrorCodeMalformedPayload},
		{"user not json", protocol.InitRequest{InitData: signedInitData(t, map[string]string{"user": "{oops", "auth_date": now()})}, http.StatusBadRequest, protocol.ErrorCodeMalformedPayload},
		{"undecodable", protocol.InitRequest{InitData: "user=%zz&hash=1"}, http.StatusUnauthorized, protocol.ErrorCodeInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("POST", "/api/init", "", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if code := errorCode(t, w); code != tt.code {
				t.Errorf("error_code = %q, want %q", code, tt.code)
			}
		})
	}
}

func TestRequireSession(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do("GET", "/api/me", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", w.Code)
	}
	if w := env.do("GET", "/api/me", "not-a-token", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", w.Code)
	}

	token, id := env.signIn(t, 10, "Vera")
	if _, err := env.h.Store.Ban(context.Background(), id); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}
	w := env.do("GET", "/api/me", token, nil)
	if w.Code != http.StatusForbidden || errorCode(t, w) != protocol.ErrorCodeBanned {
		t.Errorf("banned status = %d, body = %s", w.Code, w.Body.String())
	}

	// A banned user cannot obtain a fresh session either.
	initData := signedInitData(t, map[string]string{"user": userJSON(10, "Vera"), "auth_date": now()})
	if w := env.do("POST", "/api/init", "", protocol.InitRequest{InitData: initData}); w.Code != http.StatusForbidden {
		t.Errorf("banned init status = %d, want 403", w.Code)
	}
}

func like(env *testEnv, token string, id uint, super bool) *httptest.ResponseRecorder {
	return env.do("POST", "/api/like", token, protocol.LikeRequest{ProfileID: id, IsSuper: super})
}

func TestLikeAndMatch(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceID := env.signIn(t, 100, "Alice")
	bob, bobID := env.signIn(t, 101, "Bob")
	_, carolID := env.signIn(t, 102, "Carol")
	_, daveID := env.signIn(t, 103, "Dave")

	var resp protocol.LikeResponse
	w := like(env, alice, bobID, false)
	decode(t, w, &resp)
	if w.Code != http.StatusOK || resp.Matched {
		t.Fatalf("first like = %d %+v", w.Code, resp)
	}

	w = like(env, bob, aliceID, false)
	resp = protocol.LikeResponse{}
	decode(t, w, &resp)
	if !resp.Matched || resp.MatchID == nil {
		t.Fatalf("reciprocal like = %+v, want match", resp)
	}

	var matches struct {
		Data []protocol.Profile `json:"data"`
	}
	decode(t, env.do("GET", "/api/matches", alice, nil), &matches)
	if len(matches.Data) != 1 || matches.Data[0].ID != bobID {
		t.Errorf("matches = %+v", matches.Data)
	}

	if w := like(env, alice, carolID, true); w.Code != http.StatusOK {
		t.Errorf("first super like status = %d", w.Code)
	}
	w = like(env, alice, daveID, true)
	if w.Code != http.StatusTooManyRequests || errorCode(t, w) != protocol.ErrorCodeLimitReached {
		t.Errorf("second super like status = %d, body = %s", w.Code, w.Body.String())
	}

	if w := like(env, alice, aliceID, false); w.Code != http.StatusBadRequest {
		t.Errorf("self like status = %d, want 400", w.Code)
	}
	if w := like(env, alice, 9999, false); w.Code != http.StatusNotFound {
		t.Errorf("unknown profile status = %d, want 404", w.Code)
	}
}

func TestFeed(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.signIn(t, 200, "Alice")
	_, bobID := env.signIn(t, 201, "Bob")
	_, carolID := env.signIn(t, 202, "Carol")

	feedIDs := func() []uint {
		var feed struct {
			Data []protocol.Profile `json:"data"`
		}
		decode(t, env.do("GET", "/api/feed", alice, nil), &feed)
		ids := make([]uint, 0, len(feed.Data))
		for _, p := range feed.Data {
			ids = append(ids, p.ID)
		}
		return ids
	}

	if ids := feedIDs(); len(ids) != 2 {
		t.Fatalf("feed = %v, want Bob and Carol", ids)
	}
	like(env, alice, bobID, false)
	if ids := feedIDs(); len(ids) != 1 || ids[0] != carolID {
		t.Errorf("feed after like = %v, want [%d]", ids, carolID)
	}

	if w := env.do("GET", "/api/feed?limit=0", alice, nil); w.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", w.Code)
	}
}

func TestReportAndTickets(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceID := env.signIn(t, 300, "Alice")
	_, bobID := env.signIn(t, 301, "Bob")

	w := env.do("POST", "/api/report", alice, protocol.ReportRequest{ReportedUserID: bobID, Reason: "spam"})
	if w.Code != http.StatusCreated {
		t.Errorf("report status = %d, body = %s", w.Code, w.Body.String())
	}
	w = env.do("POST", "/api/report", alice, protocol.ReportRequest{ReportedUserID: aliceID, Reason: "me"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("self report status = %d, want 400", w.Code)
	}

	w = env.do("POST", "/api/tickets", alice, protocol.TicketRequest{Title: "Photo", Description: "Cannot upload"})
	if w.Code != http.StatusCreated {
		t.Fatalf("ticket status = %d, body = %s", w.Code, w.Body.String())
	}
	var mine struct {
		Data []struct {
			Ref    string `json:"Ref"`
			Status string `json:"Status"`
		} `json:"data"`
	}
	decode(t, env.do("GET", "/api/tickets", alice, nil), &mine)
	if len(mine.Data) != 1 || mine.Data[0].Status != "open" {
		t.Fatalf("tickets = %+v", mine.Data)
	}
	if _, err := uuid.Parse(mine.Data[0].Ref); err != nil {
		t.Errorf("ticket ref %q is not a uuid", mine.Data[0].Ref)
	}
}

func TestAdminAPI(t *testing.T) {
	env := newTestEnv(t)
	admin, _ := env.signIn(t, adminTelegramID, "Root")
	alice, aliceID := env.signIn(t, 400, "Alice")

	if w := env.do("GET", "/api/admin/users", alice, nil); w.Code != http.StatusForbidden {
		t.Errorf("non-staff status = %d, want 403", w.Code)
	}
	if w := env.do("GET", "/api/admin/users", admin, nil); w.Code != http.StatusOK {
		t.Errorf("admin users status = %d", w.Code)
	}

	path := fmt.Sprintf("/api/admin/users/%d", aliceID)
	var verified struct {
		Data struct {
			IsVerified bool `json:"is_verified"`
		} `json:"data"`
	}
	decode(t, env.do("POST", path+"/verify", admin, nil), &verified)
	if !verified.Data.IsVerified {
		t.Error("verify should toggle is_verified on")
	}
	if w := env.do("POST", path+"/badges", admin, protocol.BadgeRequest{Name: "early bird"}); w.Code != http.StatusCreated {
		t.Errorf("badge status = %d", w.Code)
	}
	var me struct {
		Data struct {
			Profile protocol.Profile `json:"profile"`
		} `json:"data"`
	}
	decode(t, env.do("GET", "/api/me", alice, nil), &me)
	if !me.Data.Profile.IsVerified || len(me.Data.Profile.Badges) != 1 {
		t.Errorf("profile = %+v", me.Data.Profile)
	}

	if w := env.do("POST", "/api/admin/users/abc/verify", admin, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
	if w := env.do("POST", path+"/role", admin, protocol.RoleRequest{Role: "king"}); w.Code != http.StatusBadRequest {
		t.Errorf("invalid role status = %d, want 400", w.Code)
	}

	// Moderators reach moderation endpoints but not admin-only ones.
	if w := env.do("POST", path+"/role", admin, protocol.RoleRequest{Role: "moderator"}); w.Code != http.StatusOK {
		t.Fatalf("set role status = %d", w.Code)
	}
	if w := env.do("GET", "/api/admin/tickets", alice, nil); w.Code != http.StatusOK {
		t.Errorf("moderator tickets status = %d", w.Code)
	}
	if w := env.do("GET", "/api/admin/stats", alice, nil); w.Code != http.StatusForbidden {
		t.Errorf("moderator stats status = %d, want 403", w.Code)
	}

	_, bobID := env.signIn(t, 401, "Bob")
	w := env.do("POST", fmt.Sprintf("/api/admin/users/%d/ban", bobID), alice, nil)
	if w.Code != http.StatusOK {
		t.Errorf("ban status = %d", w.Code)
	}
}

func TestAdminTickets(t *testing.T) {
	env := newTestEnv(t)
	admin, _ := env.signIn(t, adminTelegramID, "Root")
	alice, _ := env.signIn(t, 500, "Alice")

	env.do("POST", "/api/tickets", alice, protocol.TicketRequest{Title: "A", Description: "first"})
	env.do("POST", "/api/tickets", alice, protocol.TicketRequest{Title: "B", Description: "second"})

	var open struct {
		Data []struct {
			ID uint `json:"ID"`
		} `json:"data"`
	}
	decode(t, env.do("GET", "/api/admin/tickets?status=open", admin, nil), &open)
	if len(open.Data) != 2 {
		t.Fatalf("open tickets = %d, want 2", len(open.Data))
	}
	first, second := open.Data[0].ID, open.Data[1].ID

	w := env.do("POST", fmt.Sprintf("/api/admin/tickets/%d/answer", first), admin, protocol.AnswerRequest{Answer: "Fixed"})
	if w.Code != http.StatusOK {
		t.Errorf("answer status = %d", w.Code)
	}
	if w := env.do("POST", fmt.Sprintf("/api/admin/tickets/%d/close", first), admin, nil); w.Code != http.StatusConflict {
		t.Errorf("closing answered ticket status = %d, want 409", w.Code)
	}
	if w := env.do("POST", fmt.Sprintf("/api/admin/tickets/%d/close", second), admin, nil); w.Code != http.StatusOK {
		t.Errorf("close status = %d", w.Code)
	}
	if w := env.do("GET", "/api/admin/tickets?status=pending", admin, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d, want 400", w.Code)
	}
	if w := env.do("POST", "/api/admin/tickets/999/close", admin, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown ticket status = %d, want 404", w.Code)
	}
}

func TestAdminStatsAndAuthLog(t *testing.T) {
	env := newTestEnv(t)
	admin, _ := env.signIn(t, adminTelegramID, "Root")
	env.do("GET", "/auth/telegram?id=1&hash=bad", "", nil)

	deadline := time.Now().Add(2 * time.Second)
	for env.h.Audit.Count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	var log struct {
		Data []struct {
			Protocol string `json:"protocol"`
			Success  bool   `json:"success"`
		} `json:"data"`
	}
	decode(t, env.do("GET", "/api/admin/auth-log", admin, nil), &log)
	if len(log.Data) != 2 {
		t.Fatalf("auth log = %+v, want 2 entries", log.Data)
	}
	if log.Data[0].Success || log.Data[0].Protocol != "login_widget" {
		t.Errorf("newest entry = %+v, want rejected widget attempt", log.Data[0])
	}

	var snap struct {
		Data stats.Snapshot `json:"data"`
	}
	decode(t, env.do("GET", "/api/admin/stats", admin, nil), &snap)
	if snap.Data.Outcomes["mini_app"][stats.OutcomeAuthentic] != 1 || snap.Data.TotalRequests < 2 {
		t.Errorf("stats = %+v", snap.Data)
	}
}

func TestLoginPages(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/login", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `data-telegram-login="match_bot"`) {
		t.Errorf("GET /login status = %d, body = %s", w.Code, w.Body.String())
	}

	if w := env.do("GET", "/", "", nil); w.Code != http.StatusTemporaryRedirect || w.Header().Get("Location") != "/login" {
		t.Errorf("GET / anonymous = %d %q", w.Code, w.Header().Get("Location"))
	}

	w = env.do("GET", "/logout", "", nil)
	if w.Code != http.StatusTemporaryRedirect {
		t.Errorf("logout status = %d", w.Code)
	}
}

func TestLoginQR(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/login/qr.png", "", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("status = %d, content-type = %q", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}

	env.h.BotName = ""
	if w := env.do("GET", "/login/qr.png", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("no bot name status = %d, want 404", w.Code)
	}
}

func TestHealthAndRequestID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("healthz status = %d", w.Code)
	}
	if _, err := uuid.Parse(w.Header().Get("X-Request-ID")); err != nil {
		t.Errorf("X-Request-ID = %q, want uuid", w.Header().Get("X-Request-ID"))
	}

	id := uuid.NewString()
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", id)
	w = httptest.NewRecorder()
	env.r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != id {
		t.Errorf("X-Request-ID = %q, want inbound %q", got, id)
	}
}

func TestAdminBan_ModeratorCannotBanStaff(t *testing.T) {
	env := newTestEnv(t)
	admin, adminID := env.signIn(t, adminTelegramID, "Root")
	mod, modID := env.signIn(t, 600, "Mod")
	_, otherModID := env.signIn(t, 601, "Other")
	_, userID := env.signIn(t, 602, "Plain")

	for _, id := range []uint{modID, otherModID} {
		w := env.do("POST", fmt.Sprintf("/api/admin/users/%d/role", id), admin, protocol.RoleRequest{Role: "moderator"})
		if w.Code != http.StatusOK {
			t.Fatalf("set role status = %d", w.Code)
		}
	}

	for _, id := range []uint{adminID, otherModID} {
		w := env.do("POST", fmt.Sprintf("/api/admin/users/%d/ban", id), mod, nil)
		if w.Code != http.StatusForbidden || errorCode(t, w) != protocol.ErrorCodeForbidden {
			t.Errorf("moderator banning staff %d: status = %d, body = %s", id, w.Code, w.Body.String())
		}
	}
	if w := env.do("GET", "/api/admin/stats", admin, nil); w.Code != http.StatusOK {
		t.Errorf("admin locked out after moderator ban attempt: status = %d", w.Code)
	}

	if w := env.do("POST", fmt.Sprintf("/api/admin/users/%d/ban", userID), mod, nil); w.Code != http.StatusOK {
		t.Errorf("moderator banning a user: status = %d", w.Code)
	}
	if w := env.do("POST", fmt.Sprintf("/api/admin/users/%d/ban", otherModID), admin, nil); w.Code != http.StatusOK {
		t.Errorf("admin banning a moderator: status = %d", w.Code)
	}
	if w := env.do("POST", "/api/admin/users/9999/ban", mod, nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want 404", w.Code)
	}
}

func TestBannedUser_ProfileUntouchedAndIndexRedirects(t *testing.T) {
	env := newTestEnv(t)
	query := signedWidgetQuery(t, map[string]string{"id": "700", "first_name": "Before", "auth_date": now()})
	w := env.do("GET", "/auth/telegram?"+query, "", nil)
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "session" {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("session cookie not set")
	}

	user, err := env.h.Store.UserByTelegramID(context.Background(), 700)
	if err != nil {
		t.Fatalf("UserByTelegramID() error = %v", err)
	}
	if _, err := env.h.Store.Ban(context.Background(), user.ID); err != nil {
		t.Fatalf("Ban() error = %v", err)
	}

	query = signedWidgetQuery(t, map[string]string{"id": "700", "first_name": "After", "auth_date": now()})
	if w := env.do("GET", "/auth/telegram?"+query, "", nil); w.Code != http.StatusForbidden {
		t.Errorf("banned widget sign-in status = %d, want 403", w.Code)
	}
	stored, _ := env.h.Store.UserByID(context.Background(), user.ID)
	if stored.FirstName != "Before" {
		t.Errorf("FirstName = %q, banned profile must not be updated", stored.FirstName)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	env.r.ServeHTTP(w, req)
	if w.Code != http.StatusTemporaryRedirect || w.Header().Get("Location") != "/login" {
		t.Errorf("GET / banned = %d %q, want redirect to /login", w.Code, w.Header().Get("Location"))
	}
}

func TestLike_RepeatAfterMatchIsNotANewMatch(t *testing.T) {
	env := newTestEnv(t)
	alice, aliceID := env.signIn(t, 800, "Alice")
	bob, bobID := env.signIn(t, 801, "Bob")
	ch := env.h.Bus.Subscribe()

	like(env, alice, bobID, false)
	var first protocol.LikeResponse
	decode(t, like(env, bob, aliceID, false), &first)
	if !first.Matched || first.MatchID == nil {
		t.Fatalf("reciprocal like = %+v, want match", first)
	}

	var again protocol.LikeResponse
	w := like(env, alice, bobID, false)
	decode(t, w, &again)
	if w.Code != http.StatusOK || again.Matched {
		t.Errorf("repeat like = %d %+v, want matched false", w.Code, again)
	}
	if again.MatchID == nil || *again.MatchID != *first.MatchID {
		t.Errorf("repeat like MatchID = %v, want %d", again.MatchID, *first.MatchID)
	}

	created := 0
	for done := false; !done; {
		select {
		case ev := <-ch:
			if ev.Type == events.EventMatchCreated {
				created++
			}
		default:
			done = true
		}
	}
	if created != 1 {
		t.Errorf("match_created events = %d, want 1", created)
	}
}

func TestMiniAppInit_MissingBotTokenBeforeBodyCheck(t *testing.T) {
	env := newTestEnv(t)
	env.h.BotToken = ""

	w := env.do("POST", "/api/init", "", map[string]string{})
	if w.Code != http.StatusInternalServerError || errorCode(t, w) != protocol.ErrorCodeServerMisconfigured {
		t.Errorf("status = %d, body = %s, want 500 server_misconfigured", w.Code, w.Body.String())
	}
}

func TestAdminResetStats(t *testing.T) {
	env := newTestEnv(t)
	admin, _ := env.signIn(t, adminTelegramID, "Root")

	var snap struct {
		Data stats.Snapshot `json:"data"`
	}
	w := env.do("POST", "/api/admin/stats/reset", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reset status = %d", w.Code)
	}
	decode(t, w, &snap)
	if len(snap.Data.Outcomes) != 0 || snap.Data.TotalRequests != 0 {
		t.Errorf("after reset = %+v", snap.Data)
	}
	if got := env.h.Stats.Snapshot().Outcomes["mini_app"][stats.OutcomeAuthentic]; got != 0 {
		t.Errorf("authentic count after reset = %d, want 0", got)
	}
}
