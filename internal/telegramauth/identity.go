package telegramauth

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Identity is the Telegram user extracted from a verified payload.
type Identity struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username,omitempty"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	PhotoURL     string    `json:"photo_url,omitempty"`
	LanguageCode string    `json:"language_code,omitempty"`
	IsPremium    bool      `json:"is_premium,omitempty"`
	AuthDate     time.Time `json:"-"`
}

// InitData is a verified Mini App launch payload.
type InitData struct {
	QueryID      string
	User         Identity
	StartParam   string
	ChatType     string
	ChatInstance string
	AuthDate     time.Time
}

// VerifyLoginWidget checks the query parameters of a Login Widget redirect
// and returns the signed-in user.
func VerifyLoginWidget(values url.Values, botToken string) (*Identity, error) {
	fields := FieldsFromValues(values)

	ok, err := Verify(LoginWidget, fields, botToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAuthentic
	}

	id, err := strconv.ParseInt(fields.Value("id"), 10, 64)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("%w: invalid id %q", ErrMalformedPayload, fields.Value("id"))
	}
	authDate, err := parseAuthDate(fields)
	if err != nil {
		return nil, err
	}

	return &Identity{
		ID:        id,
		Username:  fields.Value("username"),
		FirstName: fields.Value("first_name"),
		LastName:  fields.Value("last_name"),
		PhotoURL:  fields.Value("photo_url"),
		AuthDate:  authDate,
	}, nil
}

// VerifyInitData checks a Mini App initData string and decodes the embedded
// user object.
func VerifyInitData(initData string, botToken string) (*InitData, error) {
	if botToken == "" {
		return nil, ErrMissingBotToken
	}

	fields, err := ParseInitData(initData)
	if err != nil {
		return nil, err
	}

	ok, err := Verify(MiniApp, fields, botToken)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAuthentic
	}

	raw, present := fields.Get("user")
	if !present {
		return nil, fmt.Errorf("%w: user field missing", ErrMalformedPayload)
	}
	var user Identity
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("%w: decode user: %v", ErrMalformedPayload, err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("%w: user id missing", ErrMalformedPayload)
	}

	authDate, err := parseAuthDate(fields)
	if err != nil {
		return nil, err
	}
	user.AuthDate = authDate

	return &InitData{
		QueryID:      fields.Value("query_id"),
		User:         user,
		StartParam:   fields.Value("start_param"),
		ChatType:     fields.Value("chat_type"),
		ChatInstance: fields.Value("chat_instance"),
		AuthDate:     authDate,
	}, nil
}

// CheckFreshness rejects credentials whose auth_date is older than maxAge.
// A non-positive maxAge disables the check.
func CheckFreshness(authDate, now time.Time, maxAge time.Duration) error {
	if maxAge <= 0 {
		return nil
	}
	if authDate.IsZero() || now.Sub(authDate) > maxAge {
		return ErrExpired
	}
	return nil
}

func parseAuthDate(fields Fields) (time.Time, error) {
	raw, ok := fields.Get("auth_date")
	if !ok || raw == "" {
		return time.Time{}, nil
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid auth_date %q", ErrMalformedPayload, raw)
	}
	return time.Unix(sec, 0).UTC(), nil
}
