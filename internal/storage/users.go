package storage

import (
	"context"
	"strings"

	"tgmatch/internal/models"
	"tgmatch/internal/telegramauth"
)

// UpsertTelegramUser creates or refreshes the user identified by
// ident.ID. Profile fields coming from Telegram always overwrite stored ones.
// A banned user is returned unchanged together with ErrBanned.
func (s *Store) UpsertTelegramUser(ctx context.Context, ident *telegramauth.Identity) (*models.User, bool, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	err := db.Where("telegram_id = ?", ident.ID).First(&user).Error
	if err != nil {
		if err = notFound(err); err != ErrNotFound {
			return nil, false, err
		}

		user = models.User{
			TelegramID: ident.ID,
			Username:   ident.Username,
			FirstName:  ident.FirstName,
			LastName:   ident.LastName,
			FullName:   FullName(ident),
			PhotoURL:   ident.PhotoURL,
			Role:       models.RoleUser,
		}
		if s.admins[ident.ID] {
			user.Role = models.RoleAdmin
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, false, err
		}
		return &user, true, nil
	}

	if user.Role == models.RoleBanned {
		return &user, false, ErrBanned
	}

	user.Username = ident.Username
	user.FirstName = ident.FirstName
	user.LastName = ident.LastName
	user.FullName = FullName(ident)
	user.PhotoURL = ident.PhotoURL
	err = db.Model(&user).
		Select("username", "first_name", "last_name", "full_name", "photo_url").
		Updates(&user).Error
	if err != nil {
		return nil, false, err
	}
	return &user, false, nil
}

// FullName joins first and last name, falling back to the username.
func FullName(ident *telegramauth.Identity) string {
	name := strings.TrimSpace(ident.FirstName + " " + ident.LastName)
	if name == "" {
		return ident.Username
	}
	return name
}

// UserByID loads a user with badges.
func (s *Store) UserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Preload("Badges").First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// UserByTelegramID loads a user by Telegram id.
func (s *Store) UserByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// ListUsers returns every user, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).Preload("Badges").Order("id desc").Find(&users).Error
	return users, err
}

// ToggleVerified flips the verification badge and returns the new state.
func (s *Store) ToggleVerified(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.IsVerified = !user.IsVerified
	if err := s.db.WithContext(ctx).Model(user).Update("is_verified", user.IsVerified).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// SetRole changes a user's role.
func (s *Store) SetRole(ctx context.Context, id uint, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	user, err := s.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Role = role
	if err := s.db.WithContext(ctx).Model(user).Update("role", role).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// Ban is SetRole(id, RoleBanned).
func (s *Store) Ban(ctx context.Context, id uint) (*models.User, error) {
	return s.SetRole(ctx, id, models.RoleBanned)
}

// AssignBadge attaches a named badge to a user.
func (s *Store) AssignBadge(ctx context.Context, id uint, name string) (*models.Badge, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyField
	}
	if _, err := s.UserByID(ctx, id); err != nil {
		return nil, err
	}
	badge := models.Badge{UserID: id, Name: name}
	if err := s.db.WithContext(ctx).Create(&badge).Error; err != nil {
		return nil, err
	}
	return &badge, nil
}
