package telegramauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Protocol selects how the signing key is derived from the bot token.
// The two derivations are not interchangeable.
type Protocol int

const (
	// LoginWidget covers the browser Login Widget redirect.
	// See: https://core.telegram.org/widgets/login#checking-authorization
	LoginWidget Protocol = iota + 1
	// MiniApp covers initData handed to a Mini App.
	// See: https://core.telegram.org/bots/webapps#validating-data-received-via-the-mini-app
	MiniApp
)

// webAppDataKey keys the Mini App secret derivation.
const webAppDataKey = "WebAppData"

func (p Protocol) String() string {
	switch p {
	case LoginWidget:
		return "login_widget"
	case MiniApp:
		return "mini_app"
	default:
		return "unknown"
	}
}

// Excluded lists the fields left out of the data-check string.
func (p Protocol) Excluded() []string {
	if p == MiniApp {
		return []string{"hash", "signature"}
	}
	return []string{"hash"}
}

// SecretKey derives the HMAC key for the protocol.
//
//	LoginWidget: SHA256(botToken)
//	MiniApp:     HMAC_SHA256(key="WebAppData", botToken)
func (p Protocol) SecretKey(botToken string) []byte {
	if p == MiniApp {
		mac := hmac.New(sha256.New, []byte(webAppDataKey))
		mac.Write([]byte(botToken))
		return mac.Sum(nil)
	}
	sum := sha256.Sum256([]byte(botToken))
	return sum[:]
}

// Sign returns the lowercase hex signature Telegram would attach to fields.
// Any existing hash (and, for MiniApp, signature) field is ignored.
func Sign(p Protocol, fields Fields, botToken string) (string, error) {
	if botToken == "" {
		return "", ErrMissingBotToken
	}
	return sign(p, fields, botToken), nil
}

func sign(p Protocol, fields Fields, botToken string) string {
	mac := hmac.New(sha256.New, p.SecretKey(botToken))
	mac.Write([]byte(DataCheckString(fields, p.Excluded()...)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether the hash field of fields is a valid signature under
// botToken. A missing or wrong hash is (false, nil); an empty bot token is a
// configuration fault and returns ErrMissingBotToken.
func Verify(p Protocol, fields Fields, botToken string) (bool, error) {
	if botToken == "" {
		return false, ErrMissingBotToken
	}

	received, ok := fields.Get("hash")
	if !ok || received == "" {
		return false, nil
	}

	expected := sign(p, fields, botToken)
	return hmac.Equal([]byte(expected), []byte(received)), nil
}
