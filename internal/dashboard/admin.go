package dashboard

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"tgmatch/internal/events"
	"tgmatch/internal/models"
	"tgmatch/pkg/protocol"
)

func (h *Handler) AdminUsers(c *gin.Context) {
	users, err := h.Store.ListUsers(c.Request.Context())
	if err != nil {
		h.storeError(c, err)
		return
	}
	respond(c, http.StatusOK, users)
}

func (h *Handler) AdminToggleVerified(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	user, err := h.Store.ToggleVerified(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": user.ID, "is_verified": user.IsVerified})
}

// AdminBan bans a user. Only admins may ban other staff.
func (h *Handler) AdminBan(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	actor := currentUser(c)
	if id == actor.ID {
		fail(c, http.StatusBadRequest, protocol.ErrorCodeBadRequest, "cannot ban yourself")
		return
	}
	target, err := h.Store.UserByID(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, err)
		return
	}
	if target.Role.IsStaff() && !isAdmin(actor.Role) {
		fail(c, http.StatusForbidden, protocol.ErrorCodeForbidden, "Only admins can ban staff")
		return
	}

	user, err := h.Store.Ban(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, err)
		return
	}
	log.Printf("[admin] user %d banned by %d", user.ID, actor.ID)
	h.Bus.Publish(events.Event{Type: events.EventUserBanned, Data: user.ID})
	respond(c, http.StatusOK, gin.H{"id": user.ID, "role": user.Role})
}

func (h *Handler) AdminSetRole(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	var req protocol.RoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, protocol.ErrorCodeBadRequest, "role is required")
		return
	}
	user, err := h.Store.SetRole(c.Request.Context(), id, models.Role(req.Role))
	if err != nil {
		h.storeError(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": user.ID, "role": user.Role})
}

func (h *Handler) AdminAssignBadge(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	var req protocol.BadgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, protocol.ErrorCodeBadRequest, "name is required")
		return
	}
	badge, err := h.Store.AssignBadge(c.Request.Context(), id, req.Name)
	if err != nil {
		h.storeError(c, err)
		return
	}
	respond(c, http.StatusCreated, badge)
}

// AdminTickets lists tickets, optionally filtered with ?status=open|closed.
func (h *Handler) AdminTickets(c *gin.Context) {
	status := models.TicketStatus(c.Query("status"))
	if status != "" && status != models.TicketOpen && status != models.TicketClosed {
		fail(c, http.StatusBadRequest, protocol.ErrorCodeBadRequest, "Invalid status")
		return
	}
	tickets, err := h.Store.ListTickets(c.Request.Context(), status)
	if err != nil {
		h.storeError(c, err)
		return
	}
	respond(c, http.StatusOK, tickets)
}

func (h *Handler) AdminAnswerTicket(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	var req protocol.AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, protocol.ErrorCodeBadRequest, "answer is required")
		return
	}
	ticket, err := h.Store.AnswerTicket(c.Request.Context(), id, req.Answer)
	if err != nil {
		h.storeError(c, err)
		return
	}
	h.Bus.Publish(events.Event{Type: events.EventTicketAnswered, Data: ticket.ID})
	respond(c, http.StatusOK, ticket)
}

func (h *Handler) AdminCloseTicket(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	ticket, err := h.Store.CloseTicket(c.Request.Context(), id)
	if err != nil {
		h.storeError(c, err)
		return
	}
	respond(c, http.StatusOK, ticket)
}

func (h *Handler) AdminStats(c *gin.Context) {
	respond(c, http.StatusOK, h.Stats.Snapshot())
}

// AdminResetStats zeroes the outcome and latency counters.
func (h *Handler) AdminResetStats(c *gin.Context) {
	h.Stats.Reset()
	log.Printf("[admin] stats reset by %d", currentUser(c).ID)
	respond(c, http.StatusOK, h.Stats.Snapshot())
}

func (h *Handler) AdminAuthLog(c *gin.Context) {
	respond(c, http.StatusOK, h.Audit.List())
}
