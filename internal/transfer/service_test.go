package transfer

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crossledger/crossledger/internal/business"
	"github.com/crossledger/crossledger/internal/ledger"
	"github.com/crossledger/crossledger/internal/shared"
)

type memRepo struct {
	mu        sync.Mutex
	nextID    int64
	transfers map[int64]Transfer
	balances  map[[2]int64]BalanceRow
	mirrors   []MirrorRecord
	schedules map[int64][]ScheduleEntry
}

func newMemRepo() *memRepo {
	return &memRepo{
		nextID:    1,
		transfers: make(map[int64]Transfer),
		balances:  make(map[[2]int64]BalanceRow),
		schedules: make(map[int64][]ScheduleEntry),
	}
}

func (m *memRepo) snapshot() (map[int64]Transfer, map[[2]int64]BalanceRow, int) {
	transfers := make(map[int64]Transfer, len(m.transfers))
	for id, t := range m.transfers {
		transfers[id] = t
	}
	balances := make(map[[2]int64]BalanceRow, len(m.balances))
	for key, b := range m.balances {
		balances[key] = b
	}
	return transfers, balances, len(m.mirrors)
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	transfers, balances, mirrorLen := m.snapshot()
	if err := fn(ctx, (*memTx)(m)); err != nil {
		m.transfers = transfers
		m.balances = balances
		m.mirrors = m.mirrors[:mirrorLen]
		return err
	}
	return nil
}

func (m *memRepo) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok || t.IsDeleted {
		return Transfer{}, errTransferMissing
	}
	return t, nil
}

func (m *memRepo) ListTransfers(ctx context.Context, businessIDs []int64, filters ListFilters) ([]Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member := make(map[int64]bool, len(businessIDs))
	for _, id := range businessIDs {
		member[id] = true
	}
	var out []Transfer
	for _, t := range m.transfers {
		if t.IsDeleted || !member[t.FromBusinessID] || !member[t.ToBusinessID] {
			continue
		}
		if filters.Type.Valid() && t.Type != filters.Type {
			continue
		}
		if filters.Status != "" && t.Status != filters.Status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) BalancesAmong(ctx context.Context, businessIDs []int64) ([]BalanceRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member := make(map[int64]bool, len(businessIDs))
	for _, id := range businessIDs {
		member[id] = true
	}
	var out []BalanceRow
	for _, b := range m.balances {
		if !member[b.BusinessA] || !member[b.BusinessB] || b.NetBalance.IsZero() {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BusinessA != out[j].BusinessA {
			return out[i].BusinessA < out[j].BusinessA
		}
		return out[i].BusinessB < out[j].BusinessB
	})
	return out, nil
}

func (m *memRepo) ListOverdueLoans(ctx context.Context, businessIDs []int64, asOf time.Time) ([]Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member := make(map[int64]bool, len(businessIDs))
	for _, id := range businessIDs {
		member[id] = true
	}
	var out []Transfer
	for _, t := range m.transfers {
		if t.IsDeleted || t.Type != TypeLoan || t.DueDate == nil || !t.DueDate.Before(asOf) {
			continue
		}
		if t.Status != StatusPending && t.Status != StatusPartiallyPaid {
			continue
		}
		if !member[t.FromBusinessID] && !member[t.ToBusinessID] {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) ListSchedule(ctx context.Context, transferID int64) ([]ScheduleEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ScheduleEntry(nil), m.schedules[transferID]...), nil
}

func (m *memRepo) MarkOverdueInstallments(ctx context.Context, asOf time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var flipped int64
	for id, entries := range m.schedules {
		for i, e := range entries {
			if !e.IsPaid && !e.IsOverdue && e.DueDate.Before(asOf) {
				entries[i].IsOverdue = true
				flipped++
			}
		}
		m.schedules[id] = entries
	}
	return flipped, nil
}

func (m *memRepo) balance(a, b int64) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.balances[[2]int64{a, b}]
	if !ok {
		return decimal.Zero
	}
	return row.NetBalance
}

func (m *memRepo) balanceRowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.balances)
}

func (m *memRepo) mirrorsFor(businessID int64) []MirrorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MirrorRecord
	for _, rec := range m.mirrors {
		if rec.BusinessID == businessID {
			out = append(out, rec)
		}
	}
	return out
}

// memTx shares the repo's state; WithTx already holds the lock and
// restores a snapshot on error.
type memTx memRepo

func (m *memTx) InsertTransfer(ctx context.Context, t Transfer) (Transfer, error) {
	t.ID = m.nextID
	m.nextID++
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	m.transfers[t.ID] = t
	return t, nil
}

func (m *memTx) GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error) {
	t, ok := m.transfers[id]
	if !ok || t.IsDeleted {
		return Transfer{}, errTransferMissing
	}
	return t, nil
}

func (m *memTx) ApplyRepayment(ctx context.Context, id int64, amountPaid decimal.Decimal, status Status) error {
	t, ok := m.transfers[id]
	if !ok || t.IsDeleted {
		return errTransferMissing
	}
	t.AmountPaid = amountPaid
	t.Status = status
	t.UpdatedAt = time.Now()
	m.transfers[id] = t
	return nil
}

func (m *memTx) SoftDeleteTransfer(ctx context.Context, id, actorID int64, at time.Time) error {
	t, ok := m.transfers[id]
	if !ok || t.IsDeleted {
		return errTransferMissing
	}
	t.IsDeleted = true
	t.DeletedAt = &at
	t.DeletedBy = &actorID
	m.transfers[id] = t
	return nil
}

func (m *memTx) UpsertBalance(ctx context.Context, businessA, businessB int64, delta decimal.Decimal) (decimal.Decimal, error) {
	key := [2]int64{businessA, businessB}
	row, ok := m.balances[key]
	if !ok {
		row = BalanceRow{BusinessA: businessA, BusinessB: businessB, NetBalance: decimal.Zero}
	}
	row.NetBalance = row.NetBalance.Add(delta)
	row.LastUpdated = time.Now()
	m.balances[key] = row
	return row.NetBalance, nil
}

func (m *memTx) InsertMirrorRecord(ctx context.Context, rec MirrorRecord) error {
	m.mirrors = append(m.mirrors, rec)
	return nil
}

func (m *memTx) InsertScheduleEntries(ctx context.Context, transferID int64, entries []ScheduleEntry) error {
	for i := range entries {
		entries[i].ID = m.nextID
		m.nextID++
	}
	m.schedules[transferID] = append(m.schedules[transferID], entries...)
	return nil
}

type memBusinesses struct {
	businesses map[int64]business.Business
	roles      map[[2]int64]business.Role
}

func newMemBusinesses() *memBusinesses {
	return &memBusinesses{
		businesses: make(map[int64]business.Business),
		roles:      make(map[[2]int64]business.Role),
	}
}

func (m *memBusinesses) add(id, ownerID int64, name string) {
	m.businesses[id] = business.Business{ID: id, Name: name, OwnerID: ownerID, Currency: "USD"}
	m.roles[[2]int64{ownerID, id}] = business.RoleOwner
}

func (m *memBusinesses) grant(userID, businessID int64, role business.Role) {
	m.roles[[2]int64{userID, businessID}] = role
}

func (m *memBusinesses) Get(ctx context.Context, id int64) (business.Business, error) {
	b, ok := m.businesses[id]
	if !ok {
		return business.Business{}, business.ErrNotFound
	}
	return b, nil
}

func (m *memBusinesses) RoleOf(ctx context.Context, userID, businessID int64) (business.Role, bool, error) {
	role, ok := m.roles[[2]int64{userID, businessID}]
	return role, ok, nil
}

func (m *memBusinesses) IDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	for key := range m.roles {
		if key[0] == userID {
			ids = append(ids, key[1])
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

type memCategories struct {
	mu      sync.Mutex
	nextID  int64
	byName  map[string]ledger.Category
	creates int
}

func newMemCategories() *memCategories {
	return &memCategories{nextID: 1, byName: make(map[string]ledger.Category)}
}

func (m *memCategories) GetOrCreateCategory(ctx context.Context, actorID, businessID int64, name string, ctype ledger.CategoryType, description string) (ledger.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strconv.FormatInt(businessID, 10) + "/" + name
	if c, ok := m.byName[key]; ok {
		return c, nil
	}
	c := ledger.Category{
		ID:          m.nextID,
		BusinessID:  businessID,
		Name:        name,
		Type:        ctype,
		Description: description,
		CreatedBy:   actorID,
		IsActive:    true,
	}
	m.nextID++
	m.byName[key] = c
	m.creates++
	return c, nil
}

type memAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (m *memAudit) Record(ctx context.Context, log shared.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return nil
}

type fixture struct {
	repo       *memRepo
	businesses *memBusinesses
	categories *memCategories
	audit      *memAudit
	service    *Service
	actor      shared.Actor
}

func newFixture() *fixture {
	f := &fixture{
		repo:       newMemRepo(),
		businesses: newMemBusinesses(),
		categories: newMemCategories(),
		audit:      &memAudit{},
		actor:      shared.Actor{ID: 10, Email: "x@example.com", Name: "X"},
	}
	f.businesses.add(1, f.actor.ID, "Alpha Retail")
	f.businesses.add(2, f.actor.ID, "Beta Wholesale")
	f.service = NewService(f.repo, f.businesses, f.categories, f.audit, nil)
	return f
}

func money(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
