package storage

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tgmatch/internal/models"
)

// Feed returns up to limit profiles the user has not liked yet.
// Banned users and the user themself are never included.
func (s *Store) Feed(ctx context.Context, userID uint, limit int) ([]models.User, error) {
	if limit <= 0 {
		limit = 50
	}
	db := s.db.WithContext(ctx)

	liked := db.Model(&models.Like{}).Select("liked_id").Where("liker_id = ?", userID)

	var users []models.User
	err := db.Preload("Badges").
		Where("id <> ?", userID).
		Where("role <> ?", models.RoleBanned).
		Where("id NOT IN (?)", liked).
		Order("id").
		Limit(limit).
		Find(&users).Error
	return users, err
}

// Like records that likerID liked likedID. When the like is reciprocal the
// pair's match is returned; otherwise the match is nil. created reports
// whether this like produced the match row.
func (s *Store) Like(ctx context.Context, likerID, likedID uint, isSuper bool) (match *models.Match, created bool, err error) {
	if likerID == likedID {
		return nil, false, ErrSelfTarget
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target models.User
		if err := tx.Select("id").First(&target, likedID).Error; err != nil {
			return notFound(err)
		}

		if isSuper && s.opts.SuperLikesPerDay > 0 {
			used, err := s.superLikesSince(tx, likerID, startOfDay(s.now()))
			if err != nil {
				return err
			}
			if used >= int64(s.opts.SuperLikesPerDay) {
				return ErrSuperLikeLimit
			}
		}

		like := models.Like{LikerID: likerID, LikedID: likedID, IsSuper: isSuper}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "liker_id"}, {Name: "liked_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"is_super", "updated_at"}),
		}).Create(&like).Error
		if err != nil {
			return err
		}

		var back int64
		err = tx.Model(&models.Like{}).
			Where("liker_id = ? AND liked_id = ?", likedID, likerID).
			Count(&back).Error
		if err != nil || back == 0 {
			return err
		}

		match, created, err = upsertMatch(tx, likerID, likedID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return match, created, nil
}

func upsertMatch(tx *gorm.DB, a, b uint) (*models.Match, bool, error) {
	if a > b {
		a, b = b, a
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Match{User1ID: a, User2ID: b})
	if res.Error != nil {
		return nil, false, res.Error
	}

	var m models.Match
	if err := tx.Where("user1_id = ? AND user2_id = ?", a, b).First(&m).Error; err != nil {
		return nil, false, err
	}
	return &m, res.RowsAffected > 0, nil
}

func (s *Store) superLikesSince(tx *gorm.DB, likerID uint, since time.Time) (int64, error) {
	var n int64
	err := tx.Model(&models.Like{}).
		Where("liker_id = ? AND is_super = ? AND updated_at >= ?", likerID, true, since).
		Count(&n).Error
	return n, err
}

// MatchedUsers returns the partners of every match userID is part of.
func (s *Store) MatchedUsers(ctx context.Context, userID uint) ([]models.User, error) {
	db := s.db.WithContext(ctx)

	var matches []models.Match
	if err := db.Where("user1_id = ? OR user2_id = ?", userID, userID).Order("id desc").Find(&matches).Error; err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return []models.User{}, nil
	}

	ids := make([]uint, 0, len(matches))
	for _, m := range matches {
		if m.User1ID == userID {
			ids = append(ids, m.User2ID)
		} else {
			ids = append(ids, m.User1ID)
		}
	}

	var users []models.User
	err := db.Preload("Badges").Where("id IN ?", ids).Where("role <> ?", models.RoleBanned).Find(&users).Error
	return users, err
}

// CreateReport files a complaint about another user.
func (s *Store) CreateReport(ctx context.Context, reporterID, reportedID uint, reason string) (*models.Report, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrEmptyField
	}
	if reporterID == reportedID {
		return nil, ErrSelfTarget
	}
	db := s.db.WithContext(ctx)
	if err := db.Select("id").First(&models.User{}, reportedID).Error; err != nil {
		return nil, notFound(err)
	}

	report := models.Report{ReporterID: reporterID, ReportedUserID: reportedID, Reason: reason}
	if err := db.Create(&report).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
