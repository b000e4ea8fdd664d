package dashboard

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tgmatch/internal/events"
	"tgmatch/internal/models"
	"tgmatch/pkg/protocol"
)

func toProfile(u models.User) protocol.Profile {
	p := protocol.Profile{
		ID:         u.ID,
		FullName:   u.FullName,
		Username:   u.Username,
		Bio:        u.Bio,
		Photos:     []string{},
		IsVerified: u.IsVerified,
	}
	if u.PhotoURL != "" {
		p.Photos = append(p.Photos, u.PhotoURL)
	}
	for _, b := range u.Badges {
		p.Badges = append(p.Badges, b.Name)
	}
	return p
}

func toProfiles(users []models.User) []protocol.Profile {
	out := make([]protocol.Profile, 0, len(users))
	for _, u := range users {
		out = append(out, toProfile(u))
	}
	return out
}

func (h *Handler) Me(c *gin.Context) {
	user := currentUser(c)
	respond(c, http.StatusOK, gin.H{
		"profile":     toProfile(*user),
		"telegram_id": user.TelegramID,
		"role":        user.Role,
	})
}

// Feed lists profiles the user has not swiped yet. ?limit= may lower the
// configured page size but not raise it.
func (h *Handler) Feed(c *gin.Context) {
	limit := h.FeedLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			fail(c, http.StatusBadRequest, protocol.ErrorCodeBadRequest, "Invalid limit")
			return
		}
		if n < limit {
			limit = n
		}
	}

	users, err := h.Store.Feed(c.Request.Context(), currentUser(c).ID, limit)
	if err != nil {
		h.storeError(c, err)
		return
	}
	respond(c, http.StatusOK, toProfiles(users))
}

func (h *Handler) Like(c *gin.Context) {
	var req protocol.LikeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, protocol.ErrorCodeBadRequest, "profileId is required")
		return
	}

	user := currentUser(c)
	match, created, err := h.Store.Like(c.Request.Context(), user.ID, req.ProfileID, req.IsSuper)
	if err != nil {
		h.storeError(c, err)
		return
	}

	// Matched is only reported once, when the like completes the pair.
	resp := protocol.LikeResponse{Success: true, Matched: created}
	if match != nil {
		resp.MatchID = &match.ID
	}
	if created {
		h.Bus.Publish(events.Event{
			Type: events.EventMatchCreated,
			Data: events.MatchData{MatchID: match.ID, User1ID: match.User1ID, User2ID: match.User2ID},
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Matches(c *gin.Context) {
	users, err := h.Store.MatchedUsers(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.storeError(c, err)
		return
	}
	respond(c, http.StatusOK, toProfiles(users))
}

func (h *Handler) Report(c *gin.Context) {
	var req protocol.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, protocol.ErrorCodeBadRequest, "reportedUserId and reason are required")
		return
	}

	report, err := h.Store.CreateReport(c.Request.Context(), currentUser(c).ID, req.ReportedUserID, req.Reason)
	if err != nil {
		h.storeError(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{"id": report.ID})
}

func (h *Handler) CreateTicket(c *gin.Context) {
	var req protocol.TicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, protocol.ErrorCodeBadRequest, "title and description are required")
		return
	}

	ticket, err := h.Store.CreateTicket(c.Request.Context(), currentUser(c).ID, req.Title, req.Description)
	if err != nil {
		h.storeError(c, err)
		return
	}
	respond(c, http.StatusCreated, ticket)
}

func (h *Handler) MyTickets(c *gin.Context) {
	tickets, err := h.Store.TicketsByAuthor(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.storeError(c, err)
		return
	}
	respond(c, http.StatusOK, tickets)
}
