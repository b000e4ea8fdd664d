package storage

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"tgmatch/internal/models"
)

// CreateTicket opens a support ticket on behalf of authorID.
func (s *Store) CreateTicket(ctx context.Context, authorID uint, title, description string) (*models.Ticket, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" || description == "" {
		return nil, ErrEmptyField
	}

	ticket := models.Ticket{
		Ref:         uuid.NewString(),
		AuthorID:    authorID,
		Title:       title,
		Description: description,
		Status:      models.TicketOpen,
	}
	if err := s.db.WithContext(ctx).Create(&ticket).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

// ListTickets returns tickets newest first, optionally filtered by status.
func (s *Store) ListTickets(ctx context.Context, status models.TicketStatus) ([]models.Ticket, error) {
	q := s.db.WithContext(ctx).Order("created_at desc, id desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var tickets []models.Ticket
	err := q.Find(&tickets).Error
	return tickets, err
}

// TicketsByAuthor returns the tickets a user filed.
func (s *Store) TicketsByAuthor(ctx context.Context, authorID uint) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.WithContext(ctx).Where("author_id = ?", authorID).Order("id desc").Find(&tickets).Error
	return tickets, err
}

// AnswerTicket stores a staff answer and closes the ticket.
func (s *Store) AnswerTicket(ctx context.Context, id uint, answer string) (*models.Ticket, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, ErrEmptyField
	}
	ticket, err := s.ticket(ctx, id)
	if err != nil {
		return nil, err
	}

	ticket.Answer = answer
	ticket.Status = models.TicketClosed
	err = s.db.WithContext(ctx).Model(ticket).
		Select("answer", "status").
		Updates(ticket).Error
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// CloseTicket closes a ticket without answering it.
func (s *Store) CloseTicket(ctx context.Context, id uint) (*models.Ticket, error) {
	ticket, err := s.ticket(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Status == models.TicketClosed {
		return nil, ErrTicketClosed
	}
	ticket.Status = models.TicketClosed
	if err := s.db.WithContext(ctx).Model(ticket).Update("status", ticket.Status).Error; err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *Store) ticket(ctx context.Context, id uint) (*models.Ticket, error) {
	var ticket models.Ticket
	if err := s.db.WithContext(ctx).First(&ticket, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &ticket, nil
}
