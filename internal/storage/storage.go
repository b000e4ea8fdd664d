package storage

import (
	"errors"
	"log"
	"os"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tgmatch/internal/models"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrSelfTarget     = errors.New("cannot target yourself")
	ErrSuperLikeLimit = errors.New("super like limit reached")
	ErrInvalidRole    = errors.New("invalid role")
	ErrTicketClosed   = errors.New("ticket is already closed")
	ErrBanned         = errors.New("user is banned")
	ErrEmptyField     = errors.New("required field is empty")
)

// Options tune store behaviour that comes from configuration.
type Options struct {
	// AdminTelegramIDs are promoted to admin when their user row is created.
	AdminTelegramIDs []int64
	// SuperLikesPerDay caps super likes per UTC day; zero means unlimited.
	SuperLikesPerDay int
	// LogWriter receives gorm warnings. Defaults to the standard logger output.
	LogWriter logger.Writer
}

// Store is the gorm-backed profile, swipe and ticket store.
type Store struct {
	db     *gorm.DB
	admins map[int64]bool
	opts   Options
	now    func() time.Time
}

// Open connects to the sqlite database at path and runs migrations.
func Open(path string, opts Options) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"), &gorm.Config{
		Logger:  newLogger(opts.LogWriter),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}

	// SQLite works best with a single writer.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	s := New(db, opts)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	log.Printf("database ready (sqlite: %s)", path)
	return s, nil
}

// newLogger reports slow queries and failures. A missing row is an expected
// outcome here and is not logged.
func newLogger(w logger.Writer) logger.Interface {
	if w == nil {
		w = log.New(os.Stderr, "[gorm] ", log.LstdFlags)
	}
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// New wraps an existing connection. Callers own migration.
func New(db *gorm.DB, opts Options) *Store {
	admins := make(map[int64]bool, len(opts.AdminTelegramIDs))
	for _, id := range opts.AdminTelegramIDs {
		admins[id] = true
	}
	return &Store{
		db:     db,
		admins: admins,
		opts:   opts,
		now:    time.Now,
	}
}

// Migrate creates or updates all tables.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&models.User{},
		&models.Like{},
		&models.Match{},
		&models.Report{},
		&models.Ticket{},
		&models.Badge{},
	)
}

// Ping checks that the database answers.
func (s *Store) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
