// Package telegramauth verifies credentials issued by Telegram: Login Widget
// redirects and Mini App initData. Every function is pure and safe for
// concurrent use; the bot token is always passed in by the caller.
package telegramauth

import "errors"

var (
	// ErrMissingBotToken means the bot token is not configured. It is a
	// deployment fault, not a rejection of the user's credentials.
	ErrMissingBotToken = errors.New("telegram bot token is not configured")

	// ErrNotAuthentic means the payload signature is missing or wrong.
	ErrNotAuthentic = errors.New("telegram credentials are not authentic")

	// ErrMalformedPayload means the signature was valid but the signed
	// payload could not be interpreted.
	ErrMalformedPayload = errors.New("telegram payload is malformed")

	// ErrExpired means auth_date is older than the accepted window.
	ErrExpired = errors.New("telegram credentials have expired")
)
