package protocol

// ErrorCode represents structured error codes for API responses.
type ErrorCode string

const (
	ErrorCodeNone                ErrorCode = ""
	ErrorCodeBadRequest          ErrorCode = "bad_request"
	ErrorCodeInvalidSignature    ErrorCode = "invalid_signature"
	ErrorCodeMalformedPayload    ErrorCode = "malformed_payload"
	ErrorCodeExpired             ErrorCode = "auth_expired"
	ErrorCodeServerMisconfigured ErrorCode = "server_misconfigured"
	ErrorCodeUnauthorized        ErrorCode = "unauthorized"
	ErrorCodeForbidden           ErrorCode = "forbidden"
	ErrorCodeBanned              ErrorCode = "banned"
	ErrorCodeNotFound            ErrorCode = "not_found"
	ErrorCodeLimitReached        ErrorCode = "limit_reached"
	ErrorCodeConflict            ErrorCode = "conflict"
	ErrorCodeInternal            ErrorCode = "internal"
)

// Response is the envelope of every JSON API answer.
type Response struct {
	Success   bool        `json:"success"`
	Error     string      `json:"error,omitempty"`
	ErrorCode ErrorCode   `json:"error_code,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// InitRequest carries Mini App initData exactly as Telegram.WebApp.initData.
type InitRequest struct {
	InitData string `json:"initData" binding:"required"`
}

// InitResponse is returned after a successful Mini App sign-in.
type InitResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token"` // use as "Authorization: Bearer <token>"
	UserID    uint   `json:"user_id"`
	IsNewUser bool   `json:"is_new_user"`
}

// LikeRequest is a swipe right.
type LikeRequest struct {
	ProfileID uint `json:"profileId" binding:"required"`
	IsSuper   bool `json:"isSuper"`
}

// LikeResponse tells the client whether this like completed a match.
// MatchID is set whenever the pair is matched, including repeat likes.
type LikeResponse struct {
	Success bool  `json:"success"`
	Matched bool  `json:"matched"`
	MatchID *uint `json:"match_id,omitempty"`
}

type ReportRequest struct {
	ReportedUserID uint   `json:"reportedUserId" binding:"required"`
	Reason         string `json:"reason" binding:"required"`
}

type TicketRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description" binding:"required"`
}

type AnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

type RoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type BadgeRequest struct {
	Name string `json:"name" binding:"required"`
}

// Profile is the public view of a user shown in feeds and match lists.
type Profile struct {
	ID         uint     `json:"id"`
	FullName   string   `json:"full_name"`
	Username   string   `json:"username,omitempty"`
	Bio        string   `json:"bio,omitempty"`
	Photos     []string `json:"photos"`
	IsVerified bool     `json:"is_verified"`
	Badges     []string `json:"badges,omitempty"`
}
