package circulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/librarian/internal/config"
	"github.com/mrlokans/librarian/internal/database"
	"github.com/mrlokans/librarian/internal/database/dbtest"
	"github.com/mrlokans/librarian/internal/database/inventory"
	"github.com/mrlokans/librarian/internal/entities"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type auditRecord struct {
	ActorID    uint
	Action     string
	EntityType string
	EntityID   uint
}

type recordingAudit struct {
	mu      sync.Mutex
	records []auditRecord
}

func (a *recordingAudit) Record(actorID uint, action, entityType string, entityID uint, _, _ any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, auditRecord{actorID, action, entityType, entityID})
}

func (a *recordingAudit) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.records))
	for i, r := range a.records {
		out[i] = r.Action
	}
	return out
}

type notification struct {
	UserID  uint
	Subject string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(userID uint, subject, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{userID, subject})
}

func (n *recordingNotifier) Subjects(userID uint) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.UserID == userID {
			out = append(out, s.Subject)
		}
	}
	return out
}

type fixture struct {
	db       *database.Database
	svc      *Service
	clock    *fakeClock
	audit    *recordingAudit
	notifier *recordingNotifier
	admin    AuthContext
	staff    AuthContext
}

var startTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	f := &fixture{
		db:       db,
		clock:    &fakeClock{now: startTime},
		audit:    &recordingAudit{},
		notifier: &recordingNotifier{},
	}

	svc, err := NewService(db,
		WithClock(f.clock.Now),
		WithAuditSink(f.audit),
		WithNotifier(f.notifier),
	)
	require.NoError(t, err)
	f.svc = svc

	admin := dbtest.CreateUser(t, db, "admin", entities.UserRoleAdmin)
	staff := dbtest.CreateUser(t, db, "librarian", entities.UserRoleLibrarian)
	f.admin = AuthContext{UserID: admin.ID, Role: admin.Role}
	f.staff = AuthContext{UserID: staff.ID, Role: staff.Role}
	return f
}

func (f *fixture) reader(t *testing.T, name string) AuthContext {
	t.Helper()
	u := dbtest.CreateUser(t, f.db, name, entities.UserRoleReader)
	return AuthContext{UserID: u.ID, Role: u.Role}
}

// assertLedgerConsistent checks the availability counter of every book
// against its copies and that no copy has two active loans.
func (f *fixture) assertLedgerConsistent(t *testing.T) {
	t.Helper()

	var books []entities.Book
	require.NoError(t, f.db.DB.Find(&books).Error)
	for _, b := range books {
		assert.Equal(t, dbtest.AvailableCount(t, f.db, b.ID), b.AvailableCopies, "book %d counter", b.ID)
		assert.GreaterOrEqual(t, b.AvailableCopies, 0)
	}

	var dupCopies int64
	require.NoError(t, f.db.DB.Raw(
		"SELECT COUNT(*) FROM (SELECT copy_id FROM loans WHERE status = ? GROUP BY copy_id HAVING COUNT(*) > 1) d",
		entities.LoanStatusActive).Scan(&dupCopies).Error)
	assert.Zero(t, dupCopies, "copies with more than one active loan")

	var dupFines int64
	require.NoError(t, f.db.DB.Raw(
		"SELECT COUNT(*) FROM (SELECT loan_id FROM fines WHERE status = ? GROUP BY loan_id HAVING COUNT(*) > 1) d",
		entities.FineStatusAccrued).Scan(&dupFines).Error)
	assert.Zero(t, dupFines, "loans with more than one accrued fine")
}

func copyStatuses(copies []entities.Copy) map[uint]entities.CopyStatus {
	out := make(map[uint]entities.CopyStatus, len(copies))
	for _, c := range copies {
		out[c.ID] = c.Status
	}
	return out
}

func configLibrary(period, maxExt, extDays int, rate int64) config.Library {
	return config.Library{LoanPeriodDays: period, MaxExtensions: maxExt, ExtensionDays: extDays, DailyFineRate: rate}
}

func (f *fixture) finesFor(t *testing.T, loanID uint) []entities.Fine {
	t.Helper()
	var list []entities.Fine
	require.NoError(t, f.db.DB.Where("loan_id = ?", loanID).Order("id ASC").Find(&list).Error)
	return list
}

func TestOverdueDays(t *testing.T) {
	due := startTime
	tests := []struct {
		name string
		now  time.Time
		want int64
	}{
		{"before due", due.Add(-time.Hour), 0},
		{"exactly due", due, 0},
		{"one minute late", due.Add(time.Minute), 1},
		{"exactly one day", due.Add(24 * time.Hour), 1},
		{"five days", due.AddDate(0, 0, 5), 5},
		{"five days and a second", due.AddDate(0, 0, 5).Add(time.Second), 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OverdueDays(due, tt.now))
		})
	}
}

func TestPolicyFromConfig(t *testing.T) {
	assert.Equal(t, DefaultPolicy(), PolicyFromConfig(configLibrary(0, -1, 0, 0)))

	p := PolicyFromConfig(configLibrary(21, 3, 7, 5))
	assert.Equal(t, Policy{LoanPeriodDays: 21, MaxExtensions: 3, ExtensionDays: 7, DailyFineRate: 5}, p)

	t.Run("zero extensions is honoured", func(t *testing.T) {
		assert.Equal(t, 0, PolicyFromConfig(configLibrary(0, 0, 0, 0)).MaxExtensions)

		t.Setenv("MAX_EXTENSIONS", "0")
		assert.Equal(t, 0, PolicyFromConfig(config.NewConfig().Library).MaxExtensions)
	})

	t.Run("unset environment keeps the default", func(t *testing.T) {
		t.Setenv("MAX_EXTENSIONS", "")
		assert.Equal(t, config.DefaultMaxExtensions, PolicyFromConfig(config.NewConfig().Library).MaxExtensions)
	})
}

func TestService_ExtendLoanWithExtensionsDisabled(t *testing.T) {
	f := newFixture(t)
	f.svc.policy = PolicyFromConfig(configLibrary(0, 0, 0, 0))
	reader := f.reader(t, "reader")
	book := dbtest.CreateBook(t, f.db, "Short Loan", 1)

	receipt, err := f.svc.CreateLoan(context.Background(), reader, LoanRequest{BookID: book.ID})
	require.NoError(t, err)

	_, err = f.svc.ExtendLoan(context.Background(), reader, receipt.LoanID)
	assert.ErrorIs(t, err, ErrExtensionLimitReached)
}

func TestReadWithRetry(t *testing.T) {
	calls := 0
	v, err := readWithRetry(func() (int, error) {
		calls++
		if calls == 1 {
			return 0, assert.AnError
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)

	calls = 0
	_, err = readWithRetry(func() (int, error) {
		calls++
		return 0, assert.AnError
	})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, calls)

	calls = 0
	_, err = readWithRetry(func() (int, error) {
		calls++
		return 0, ErrForbidden
	})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 1, calls, "domain errors are not retried")
}

func TestStoreError(t *testing.T) {
	assert.NoError(t, storeError(nil))
	assert.Same(t, ErrNoCopyAvailable, storeError(ErrNoCopyAvailable))

	wrapped := storeError(assert.AnError)
	assert.ErrorIs(t, wrapped, ErrStoreUnavailable)
	assert.True(t, IsDomainError(wrapped))
	assert.False(t, IsDomainError(assert.AnError))

	drift := storeError(fmt.Errorf("reserve: %w", inventory.ErrCounterUnderflow))
	assert.ErrorIs(t, drift, ErrCounterDrift)
	assert.ErrorIs(t, drift, inventory.ErrCounterUnderflow)
	assert.NotErrorIs(t, drift, ErrStoreUnavailable)
}

func TestCreateLoan_CounterDrift(t *testing.T) {
	f := newFixture(t)
	reader := f.reader(t, "reader")
	book := dbtest.CreateBook(t, f.db, "Drifted", 1)
	require.NoError(t, f.db.DB.Model(&entities.Book{}).
		Where("id = ?", book.ID).
		Update("available_copies", 0).Error)

	_, err := f.svc.CreateLoan(context.Background(), reader, LoanRequest{BookID: book.ID})

	assert.ErrorIs(t, err, ErrCounterDrift)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, entities.CopyStatusAvailable, dbtest.Copies(t, f.db, book.ID)[0].Status, "the reservation is rolled back")

	fixes, err := f.svc.ReconcileAvailability(context.Background(), f.admin)
	require.NoError(t, err)
	require.Len(t, fixes, 1)

	_, err = f.svc.CreateLoan(context.Background(), reader, LoanRequest{BookID: book.ID})
	assert.NoError(t, err)
}

func TestConcurrentCreateLoan(t *testing.T) {
	const (
		borrowers = 12
		copies    = 4
	)
	f := newFixture(t)
	book := dbtest.CreateBook(t, f.db, "Popular", copies)

	actors := make([]AuthContext, borrowers)
	for i := range actors {
		actors[i] = f.reader(t, "reader"+string(rune('a'+i)))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		success  int
		noCopy   int
		copyUsed = map[uint]bool{}
		other    []error
	)
	start := make(chan struct{})
	for _, actor := range actors {
		wg.Add(1)
		go func(actor AuthContext) {
			defer wg.Done()
			<-start
			receipt, err := f.svc.CreateLoan(context.Background(), actor, LoanRequest{BookID: book.ID})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
				assert.False(t, copyUsed[receipt.CopyID], "copy %d handed out twice", receipt.CopyID)
				copyUsed[receipt.CopyID] = true
			case errors.Is(err, ErrNoCopyAvailable):
				noCopy++
			default:
				other = append(other, err)
			}
		}(actor)
	}
	close(start)
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, copies, success)
	assert.Equal(t, borrowers-copies, noCopy)
	assert.Equal(t, 0, dbtest.Book(t, f.db, book.ID).AvailableCopies)
	f.assertLedgerConsistent(t)
}

func TestLoanRoundTrip(t *testing.T) {
	f := newFixture(t)
	reader := f.reader(t, "reader")
	book := dbtest.CreateBook(t, f.db, "Round Trip", 2)
	before := dbtest.Copies(t, f.db, book.ID)

	receipt, err := f.svc.CreateLoan(context.Background(), reader, LoanRequest{BookID: book.ID})
	require.NoError(t, err)
	assert.Equal(t, startTime.AddDate(0, 0, 30), receipt.DueDate)
	assert.Equal(t, 1, dbtest.Book(t, f.db, book.ID).AvailableCopies)

	returned, err := f.svc.CloseLoan(context.Background(), reader, receipt.LoanID)
	require.NoError(t, err)
	assert.False(t, returned.HadFine)
	assert.Equal(t, receipt.CopyID, returned.CopyID)

	assert.Equal(t, 2, dbtest.Book(t, f.db, book.ID).AvailableCopies)
	assert.Equal(t, copyStatuses(before), copyStatuses(dbtest.Copies(t, f.db, book.ID)))
	f.assertLedgerConsistent(t)

	assert.Equal(t, []string{"loan_create", "loan_close"}, f.audit.Actions())
	assert.Equal(t, []string{"Book borrowed", "Book returned"}, f.notifier.Subjects(reader.UserID))

	t.Run("closing again fails", func(t *testing.T) {
		_, err := f.svc.CloseLoan(context.Background(), reader, receipt.LoanID)
		assert.ErrorIs(t, err, ErrLoanAlreadyReturned)
		assert.Equal(t, 2, dbtest.Book(t, f.db, book.ID).AvailableCopies)
	})
}

func TestScenarioA_SingleCopy(t *testing.T) {
	f := newFixture(t)
	userA := f.reader(t, "user-a")
	userB := f.reader(t, "user-b")
	book := dbtest.CreateBook(t, f.db, "X", 1)

	_, err := f.svc.CreateLoan(context.Background(), userA, LoanRequest{BookID: book.ID})
	require.NoError(t, err)
	assert.Equal(t, 0, dbtest.Book(t, f.db, book.ID).AvailableCopies)

	_, err = f.svc.CreateLoan(context.Background(), userB, LoanRequest{BookID: book.ID})
	assert.ErrorIs(t, err, ErrNoCopyAvailable)
	f.assertLedgerConsistent(t)
}

func TestScenarioB_AccrualIsFrozen(t *testing.T) {
	f := newFixture(t)
	reader := f.reader(t, "reader")
	book := dbtest.CreateBook(t, f.db, "Late", 1)
	c := dbtest.Copies(t, f.db, book.ID)[0]
	loan := dbtest.CreateLoan(t, f.db, reader.UserID, c, startTime.AddDate(0, 0, -35), startTime.AddDate(0, 0, -5))

	views, err := f.svc.ListLoansWithAccrual(context.Background(), reader, reader.UserID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.NotNil(t, views[0].Fine)
	assert.Equal(t, int64(10), views[0].Fine.Amount)
	assert.True(t, views[0].Overdue)
	assert.Equal(t, int64(5), views[0].OverdueDays)

	fines := f.finesFor(t, loan.ID)
	require.Len(t, fines, 1)
	assert.Equal(t, entities.FineStatusAccrued, fines[0].Status)
	assert.Equal(t, int64(10), fines[0].Amount)

	f.clock.Advance(3 * 24 * time.Hour)

	views, err = f.svc.ListLoansWithAccrual(context.Background(), reader, reader.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), views[0].Fine.Amount)
	assert.Equal(t, int64(8), views[0].OverdueDays)

	fines = f.finesFor(t, loan.ID)
	require.Len(t, fines, 1)
	assert.Equal(t, int64(10), fines[0].Amount)
	assert.Contains(t, f.notifier.Subjects(reader.UserID), "Overdue fine")
}

func TestAccrualIdempotence(t *testing.T) {
	f := newFixture(t)
	reader := f.reader(t, "reader")
	book := dbtest.CreateBook(t, f.db, "Late", 1)
	loan := dbtest.CreateLoan(t, f.db, reader.UserID, dbtest.Copies(t, f.db, book.ID)[0],
		startTime.AddDate(0, 0, -40), startTime.AddDate(0, 0, -2))

	n, err := f.svc.ReconcileOverdueFines(context.Background(), reader.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.ReconcileOverdueFines(context.Background(), reader.UserID)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Len(t, f.finesFor(t, loan.ID), 1)
	f.assertLedgerConsistent(t)
}

func TestConcurrentAccrual(t *testing.T) {
	f := newFixture(t)
	reader := f.reader(t, "reader")
	book := dbtest.CreateBook(t, f.db, "Late", 1)
	loan := dbtest.CreateLoan(t, f.db, reader.UserID, dbtest.Copies(t, f.db, book.ID)[0],
		startTime.AddDate(0, 0, -40), startTime.AddDate(0, 0, -3))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ReconcileOverdueFines(context.Background(), reader.UserID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	fines := f.finesFor(t, loan.ID)
	require.Len(t, fines, 1)
	assert.Equal(t, int64(6), fines[0].Amount)
}

func TestReconcileAllOverdueFines(t *testing.T) {
	f := newFixture(t)
	first := f.reader(t, "first")
	second := f.reader(t, "second")
	book := dbtest.CreateBook(t, f.db, "Shared", 3)
	copies := dbtest.Copies(t, f.db, book.ID)
	dbtest.CreateLoan(t, f.db, first.UserID, copies[0], startTime.AddDate(0, 0, -31), startTime.AddDate(0, 0, -1))
	dbtest.CreateLoan(t, f.db, second.UserID, copies[1], startTime.AddDate(0, 0, -32), startTime.AddDate(0, 0, -2))
	dbtest.CreateLoan(t, f.db, second.UserID, copies[2], startTime, startTime.AddDate(0, 0, 30))

	n, err := f.svc.ReconcileAllOverdueFines(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.svc.ReconcileAllOverdueFines(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScenarioC_UnpaidFinesBlockBorrowing(t *testing.T) {
	f := newFixture(t)
	reader := f.reader(t, "reader")
	late := dbtest.CreateBook(t, f.db, "Late", 1)
	other := dbtest.CreateBook(t, f.db, "Other", 1)
	dbtest.CreateLoan(t, f.db, reader.UserID, dbtest.Copies(t, f.db, late.ID)[0],
		startTime.AddDate(0, 0, -35), startTime.AddDate(0, 0, -5))

	_, err := f.svc.CreateLoan(context.Background(), reader, LoanRequest{BookID: other.ID})

	assert.ErrorIs(t, err, ErrUnpaidFinesBlock)
	assert.Equal(t, 1, dbtest.Book(t, f.db, other.ID).AvailableCopies)
	f.assertLedgerConsistent(t)

	t.Run("a settled fine is accrued again while the book stays out", func(t *testing.T) {
		var fine entities.Fine
		require.NoError(t, f.db.DB.Where("status = ?", entities.FineStatusAccrued).First(&fine).Error)
		assert.Equal(t, int64(10), fine.Amount)

		_, err := f.svc.SettleFine(context.Background(), f.staff, fine.ID, entities.FineStatusPaid)
		require.NoError(t, err)
		f.clock.Advance(24 * time.Hour)

		created, err := f.svc.ReconcileOverdueFines(context.Background(), reader.UserID)
		require.NoError(t, err)
		assert.Equal(t, 1, created)

		list := f.finesFor(t, fine.LoanID)
		require.Len(t, list, 2)
		assert.Equal(t, entities.FineStatusPaid, list[0].Status)
		assert.Equal(t, entities.FineStatusAccrued, list[1].Status)
		assert.Equal(t, int64(12), list[1].Amount)

		_, err = f.svc.CreateLoan(context.Background(), reader, LoanRequest{BookID: other.ID})
		assert.ErrorIs(t, err, ErrUnpaidFinesBlock)
		f.assertLedgerConsistent(t)
	})

	t.Run("returning the book and settling unblocks", func(t *testing.T) {
		receipt, err := f.svc.CloseLoan(context.Background(), f.staff, firstLoanOf(t, f, reader.UserID))
		require.NoError(t, err)
		assert.True(t, receipt.HadFine)

		var fine entities.Fine
		require.NoError(t, f.db.DB.Where("status = ?", entities.FineStatusAccrued).First(&fine).Error)
		_, err = f.svc.SettleFine(context.Background(), f.staff, fine.ID, entities.FineStatusPaid)
		require.NoError(t, err)

		created, err := f.svc.ReconcileOverdueFines(context.Background(), reader.UserID)
		require.NoError(t, err)
		assert.Zero(t, created, "returned loans are never fined again")

		_, err = f.svc.CreateLoan(context.Background(), reader, LoanRequest{BookID: other.ID})
		assert.NoError(t, err)
		f.assertLedgerConsistent(t)
	})
}

func firstLoanOf(t *testing.T, f *fixture, userID uint) uint {
	t.Helper()
	var loan entities.Loan
	require.NoError(t, f.db.DB.Where("user_id = ?", userID).Order("id ASC").First(&loan).Error)
	return loan.ID
}

func TestScenarioD_ExtensionLimit(t *testing.T) {
	f := newFixture(t)
	reader := f.reader(t, "reader")
	book := dbtest.CreateBook(t, f.db, "Long Read", 1)

	receipt, err := f.svc.CreateLoan(context.Background(), reader, LoanRequest{BookID: book.ID})
	require.NoError(t, err)

	first, err := f.svc.ExtendLoan(context.Background(), reader, receipt.LoanID)
	require.NoError(t, err)
	assert.Equal(t, receipt.DueDate.AddDate(0, 0, 14), first.NewDueDate)
	assert.Equal(t, 1, first.ExtensionsLeft)

	second, err := f.svc.ExtendLoan(context.Background(), reader, receipt.LoanID)
	require.NoError(t, err)
	assert.Equal(t, first.NewDueDate.AddDate(0, 0, 14), second.NewDueDate)
	assert.Equal(t, 0, second.ExtensionsLeft)

	_, err = f.svc.ExtendLoan(context.Background(), reader, receipt.LoanID)
	assert.ErrorIs(t, err, ErrExtensionLimitReached)

	var loan entities.Loan
	require.NoError(t, f.db.DB.First(&loan, receipt.LoanID).Error)
	assert.Equal(t, 2, loan.Extensions)
	assert.True(t, loan.DueDate.Equal(second.NewDueDate))
}

func TestScenarioE_RemoveMoreThanAvailable(t *testing.T) {
	f := newFixture(t)
	reader := f.reader(t, "reader")
	book := dbtest.CreateBook(t, f.db, "Scarce", 3)
	_, err := f.svc.CreateLoan(context.Background(), reader, LoanRequest{BookID: book.ID})
	require.NoError(t, err)
	copiesBefore := copyStatuses(dbtest.Copies(t, f.db, book.ID))

	_, err = f.svc.RemoveCopies(context.Background(), f.admin, book.ID, 3)

	assert.ErrorIs(t, err, ErrInsufficientAvailableCopies)
	after := dbtest.Book(t, f.db, book.ID)
	assert.Equal(t, 3, after.TotalCopies)
	assert.Equal(t, 2, after.AvailableCopies)
	assert.Equal(t, copiesBefore, copyStatuses(dbtest.Copies(t, f.db, book.ID)))
	f.assertLedgerConsistent(t)
}
