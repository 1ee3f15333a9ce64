package circulation

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/fines"
	"github.com/mrlokans/librarian/internal/database/inventory"
	"github.com/mrlokans/librarian/internal/database/loans"
	"github.com/mrlokans/librarian/internal/database/reports"
	"github.com/mrlokans/librarian/internal/database/users"
	"github.com/mrlokans/librarian/internal/entities"
)

// AuthContext identifies the caller of an operation.
type AuthContext struct {
	UserID uint
	Role   entities.UserRole
}

// SystemActor is used by scheduled jobs and CLI commands.
var SystemActor = AuthContext{Role: entities.UserRoleAdmin}

func (a AuthContext) IsStaff() bool { return a.Role.IsStaff() }

func (a AuthContext) IsAdmin() bool { return a.Role == entities.UserRoleAdmin }

// AuditSink records state changes.
type AuditSink interface {
	Record(actorID uint, action, entityType string, entityID uint, before, after any)
}

// Notifier delivers a message to a user.
type Notifier interface {
	Notify(userID uint, subject, message string)
}

// Policy holds the circulation rules.
type Policy struct {
	LoanPeriodDays int
	MaxExtensions  int
	ExtensionDays  int
	DailyFineRate  int64
}

// DefaultPolicy returns the standard lending rules.
func DefaultPolicy() Policy {
	return Policy{
		LoanPeriodDays: config.DefaultLoanPeriodDays,
		MaxExtensions:  config.DefaultMaxExtensions,
		ExtensionDays:  config.DefaultExtensionDays,
		DailyFineRate:  config.DefaultDailyFineRate,
	}
}

// PolicyFromConfig builds a Policy from configuration, falling back to the
// defaults for unset values. A zero MaxExtensions disables extensions; only a
// negative value counts as unset.
func PolicyFromConfig(cfg config.Library) Policy {
	p := DefaultPolicy()
	if cfg.LoanPeriodDays > 0 {
		p.LoanPeriodDays = cfg.LoanPeriodDays
	}
	if cfg.MaxExtensions >= 0 {
		p.MaxExtensions = cfg.MaxExtensions
	}
	if cfg.ExtensionDays > 0 {
		p.ExtensionDays = cfg.ExtensionDays
	}
	if cfg.DailyFineRate > 0 {
		p.DailyFineRate = cfg.DailyFineRate
	}
	return p
}

// maxLoanPeriodDays caps staff-chosen loan periods.
const maxLoanPeriodDays = 365

type Service struct {
	db       *gorm.DB
	lockRows bool
	reports  *reports.Repository
	policy   Policy
	audit    AuditSink
	notifier Notifier
	now      func() time.Time
}

type Option func(*Service)

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithAuditSink(sink AuditSink) Option {
	return func(s *Service) { s.audit = sink }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock replaces the wall clock. Times are normalised to UTC.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(db *database.Database, opts ...Option) (*Service, error) {
	rep, err := reports.NewRepository(db)
	if err != nil {
		return nil, err
	}

	s := &Service{
		db:       db.DB,
		lockRows: db.IsPostgres(),
		reports:  rep,
		policy:   DefaultPolicy(),
		audit:    noopAudit{},
		notifier: noopNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Policy returns the rules the service enforces.
func (s *Service) Policy() Policy {
	return s.policy
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func (s *Service) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return storeError(s.db.WithContext(ctx).Transaction(fn))
}

func (s *Service) inventory(db *gorm.DB) *inventory.Repository {
	return inventory.NewRepository(db, s.lockRows)
}

func (s *Service) session(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *Service) loans(ctx context.Context) *loans.Repository {
	return loans.NewRepository(s.session(ctx))
}

func (s *Service) fines(ctx context.Context) *fines.Repository {
	return fines.NewRepository(s.session(ctx))
}

func (s *Service) users(ctx context.Context) *users.Repository {
	return users.NewRepository(s.session(ctx))
}

// readWithRetry runs a read and retries it once on a store failure.
func readWithRetry[T any](read func() (T, error)) (T, error) {
	v, err := read()
	if err == nil || IsDomainError(err) {
		return v, err
	}
	log.Printf("Retrying read after store error: %v", err)
	v, err = read()
	return v, storeError(err)
}

type noopAudit struct{}

func (noopAudit) Record(uint, string, string, uint, any, any) {}

type noopNotifier struct{}

func (noopNotifier) Notify(uint, string, string) {}
