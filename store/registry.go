package store

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/imkonsowa/restaurant-chatbot/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultProject is the project served by the default database.
const DefaultProject = "sushi"

// DefaultMaxDatabases caps the pools of a registry built without a limit.
const DefaultMaxDatabases = 16

var (
	ErrInvalidProject   = errors.New("invalid project name")
	ErrTooManyDatabases = errors.New("too many project databases")
)

var projectNameRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// Opener opens the named database.
type Opener func(dbName string) (*gorm.DB, error)

// Registry hands out one connection pool per project database, opened on
// first use.
type Registry struct {
	defaultDB string
	open      Opener
	limit     int

	mu  sync.Mutex
	dbs map[string]*gorm.DB
}

func NewRegistry(cfg config.Postgres) *Registry {
	r := NewRegistryWithOpener(cfg.DBName, func(dbName string) (*gorm.DB, error) {
		return Open(cfg.ConnStrFor(dbName))
	})
	r.SetLimit(cfg.MaxDatabases)
	return r
}

func NewRegistryWithOpener(defaultDB string, open Opener) *Registry {
	return &Registry{
		defaultDB: defaultDB,
		open:      open,
		limit:     DefaultMaxDatabases,
		dbs:       make(map[string]*gorm.DB),
	}
}

// SetLimit caps the number of pools the registry opens. Values below one keep
// the current limit.
func (r *Registry) SetLimit(n int) {
	if n < 1 {
		return
	}
	r.mu.Lock()
	r.limit = n
	r.mu.Unlock()
}

// Open connects gorm to Postgres with query logging silenced.
func Open(connStr string) (*gorm.DB, error) {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      true,
			Colorful:                  true,
		},
	)

	return gorm.Open(postgres.Open(connStr), &gorm.Config{
		Logger: newLogger,
	})
}

// Database maps a project to its database: "sushi" and the empty project use
// the default database, any other project a database of the same name.
func (r *Registry) Database(project string) string {
	p := strings.ToLower(strings.TrimSpace(project))
	if p == "" || p == DefaultProject {
		return r.defaultDB
	}
	return p
}

// DB returns the pool of the project's database. Project names other than
// lowercase letters, digits and underscores are rejected before any
// connection is attempted.
func (r *Registry) DB(project string) (*gorm.DB, error) {
	name := r.Database(project)
	if name != r.defaultDB && !projectNameRe.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProject, project)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if db, ok := r.dbs[name]; ok {
		return db, nil
	}
	if len(r.dbs) >= r.limit {
		return nil, fmt.Errorf("open database %s: %w (limit %d)", name, ErrTooManyDatabases, r.limit)
	}

	db, err := r.open(name)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", name, err)
	}
	r.dbs[name] = db
	slog.Debug("database pool ready", "database", name)

	return db, nil
}

// Close releases every pool opened so far.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, db := range r.dbs {
		sqlDB, err := db.DB()
		if err != nil {
			continue
		}
		if err := sqlDB.Close(); err != nil {
			slog.Warn("failed to close database", "database", name, "err", err)
		}
	}
	r.dbs = make(map[string]*gorm.DB)
}
