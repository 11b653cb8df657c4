package ledger

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/crossledger/crossledger/internal/business"
	"github.com/crossledger/crossledger/internal/shared"
)

type memRepo struct {
	nextTxID     int64
	nextCatID    int64
	transactions map[int64]Transaction
	categories   map[int64]Category

	// insertHook runs before InsertCategory, letting tests simulate a
	// concurrent writer winning the unique-constraint race.
	insertHook func()
}

func newMemRepo() *memRepo {
	return &memRepo{
		nextTxID:     1,
		nextCatID:    1,
		transactions: make(map[int64]Transaction),
		categories:   make(map[int64]Category),
	}
}

func (m *memRepo) InsertTransaction(ctx context.Context, t Transaction) (Transaction, error) {
	t.ID = m.nextTxID
	m.nextTxID++
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	m.transactions[t.ID] = t
	return t, nil
}

func (m *memRepo) GetTransaction(ctx context.Context, businessID, id int64) (Transaction, error) {
	t, ok := m.transactions[id]
	if !ok || t.BusinessID != businessID || t.IsDeleted {
		return Transaction{}, errTransactionMissing
	}
	return t, nil
}

func (m *memRepo) ListTransactions(ctx context.Context, businessID int64, filters ListFilters) ([]Transaction, error) {
	var out []Transaction
	for _, t := range m.transactions {
		if t.BusinessID != businessID || t.IsDeleted {
			continue
		}
		if filters.Type != "" && t.Type != filters.Type {
			continue
		}
		if filters.CategoryID != 0 && t.CategoryID != filters.CategoryID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) SoftDeleteTransaction(ctx context.Context, businessID, id, actorID int64, at time.Time) (Transaction, error) {
	t, ok := m.transactions[id]
	if !ok || t.BusinessID != businessID || t.IsDeleted {
		return Transaction{}, errTransactionMissing
	}
	t.IsDeleted = true
	t.DeletedAt = &at
	t.DeletedBy = &actorID
	m.transactions[id] = t
	return t, nil
}

func (m *memRepo) InsertCategory(ctx context.Context, c Category) (Category, error) {
	if m.insertHook != nil {
		m.insertHook()
	}
	for _, existing := range m.categories {
		if existing.BusinessID == c.BusinessID && existing.Name == c.Name {
			return Category{}, errCategoryExists
		}
	}
	c.ID = m.nextCatID
	m.nextCatID++
	c.IsActive = true
	c.CreatedAt = time.Now()
	m.categories[c.ID] = c
	return c, nil
}

func (m *memRepo) FindCategory(ctx context.Context, businessID int64, name string) (Category, bool, error) {
	for _, c := range m.categories {
		if c.BusinessID == businessID && c.Name == name && c.IsActive {
			return c, true, nil
		}
	}
	return Category{}, false, nil
}

func (m *memRepo) GetCategory(ctx context.Context, businessID, id int64) (Category, error) {
	c, ok := m.categories[id]
	if !ok || c.BusinessID != businessID || !c.IsActive {
		return Category{}, errCategoryMissing
	}
	return c, nil
}

func (m *memRepo) ListCategories(ctx context.Context, businessID int64) ([]Category, error) {
	var out []Category
	for _, c := range m.categories {
		if c.BusinessID == businessID && c.IsActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) Summarize(ctx context.Context, businessID int64, start, end time.Time) (Summary, error) {
	summary := Summary{
		PeriodStart:        start,
		PeriodEnd:          end,
		IncomeByCategory:   make(map[string]decimal.Decimal),
		ExpensesByCategory: make(map[string]decimal.Decimal),
	}
	for _, t := range m.transactions {
		if t.BusinessID != businessID || t.IsDeleted || t.Date.Before(start) || t.Date.After(end) {
			continue
		}
		name := m.categories[t.CategoryID].Name
		switch t.Type {
		case TypeIncome:
			summary.TotalIncome = summary.TotalIncome.Add(t.Amount)
			summary.IncomeByCategory[name] = summary.IncomeByCategory[name].Add(t.Amount)
		case TypeExpense:
			summary.TotalExpenses = summary.TotalExpenses.Add(t.Amount)
			summary.ExpensesByCategory[name] = summary.ExpensesByCategory[name].Add(t.Amount)
		}
		summary.TransactionCount++
	}
	summary.NetAmount = summary.TotalIncome.Sub(summary.TotalExpenses)
	return summary, nil
}

type memRoles struct {
	roles map[[2]int64]business.Role
}

func (m *memRoles) RoleOf(ctx context.Context, userID, businessID int64) (business.Role, bool, error) {
	role, ok := m.roles[[2]int64{userID, businessID}]
	return role, ok, nil
}

type fixture struct {
	repo    *memRepo
	roles   *memRoles
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemRepo()
	roles := &memRoles{roles: map[[2]int64]business.Role{
		{10, 1}: business.RoleOwner,
		{11, 1}: business.RoleAdmin,
		{12, 1}: business.RoleAccountant,
		{13, 1}: business.RoleEmployee,
		{14, 1}: business.RoleViewer,
	}}
	return &fixture{repo: repo, roles: roles, service: NewService(repo, roles, nil)}
}

func (f *fixture) category(t *testing.T, name string, ctype CategoryType) Category {
	t.Helper()
	c, err := f.repo.InsertCategory(context.Background(), Category{BusinessID: 1, Name: name, Type: ctype, CreatedBy: 10})
	require.NoError(t, err)
	return c
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAppendRoleMatrix(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	income := f.category(t, "Sales Revenue", CategoryIncome)
	expense := f.category(t, "Rent", CategoryExpense)

	// Viewers cannot write at all.
	_, err := f.service.Append(ctx, shared.Actor{ID: 14}, 1, AppendInput{CategoryID: income.ID, Type: TypeIncome, Amount: money("10"), Date: date(2026, time.March, 1)})
	require.ErrorIs(t, err, ErrAccessDenied)

	// Employees may record income but not expenses.
	created, err := f.service.Append(ctx, shared.Actor{ID: 13}, 1, AppendInput{CategoryID: income.ID, Type: TypeIncome, Amount: money("150.00"), Date: date(2026, time.March, 1)})
	require.NoError(t, err)
	require.Equal(t, int64(13), created.CreatedBy)
	_, err = f.service.Append(ctx, shared.Actor{ID: 13}, 1, AppendInput{CategoryID: expense.ID, Type: TypeExpense, Amount: money("20"), Date: date(2026, time.March, 1)})
	require.ErrorIs(t, err, ErrAccessDenied)

	// Accountants record both directions.
	_, err = f.service.Append(ctx, shared.Actor{ID: 12}, 1, AppendInput{CategoryID: expense.ID, Type: TypeExpense, Amount: money("20"), Date: date(2026, time.March, 1)})
	require.NoError(t, err)

	// Strangers look like any other denial.
	_, err = f.service.Append(ctx, shared.Actor{ID: 99}, 1, AppendInput{CategoryID: income.ID, Type: TypeIncome, Amount: money("10"), Date: date(2026, time.March, 1)})
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestAppendValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := shared.Actor{ID: 10}
	income := f.category(t, "Sales Revenue", CategoryIncome)

	_, err := f.service.Append(ctx, actor, 1, AppendInput{CategoryID: income.ID, Type: "refund", Amount: money("10"), Date: date(2026, time.March, 1)})
	require.ErrorIs(t, err, ErrInvalidType)

	_, err = f.service.Append(ctx, actor, 1, AppendInput{CategoryID: income.ID, Type: TypeIncome, Amount: money("0"), Date: date(2026, time.March, 1)})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = f.service.Append(ctx, actor, 1, AppendInput{CategoryID: 999, Type: TypeIncome, Amount: money("10"), Date: date(2026, time.March, 1)})
	require.ErrorIs(t, err, ErrInvalidCategory)

	// An income transaction cannot land in an expense-only category.
	rent := f.category(t, "Rent", CategoryExpense)
	_, err = f.service.Append(ctx, actor, 1, AppendInput{CategoryID: rent.ID, Type: TypeIncome, Amount: money("10"), Date: date(2026, time.March, 1)})
	require.ErrorIs(t, err, ErrCategoryMismatch)

	// A "both" category admits either direction.
	misc := f.category(t, "Miscellaneous", CategoryBoth)
	_, err = f.service.Append(ctx, actor, 1, AppendInput{CategoryID: misc.ID, Type: TypeExpense, Amount: money("5"), Date: date(2026, time.March, 1)})
	require.NoError(t, err)
}

func TestSoftDeleteKeepsRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := shared.Actor{ID: 10}
	income := f.category(t, "Sales Revenue", CategoryIncome)

	created, err := f.service.Append(ctx, owner, 1, AppendInput{CategoryID: income.ID, Type: TypeIncome, Amount: money("100"), Date: date(2026, time.March, 1)})
	require.NoError(t, err)

	// Only managers delete; accountants cannot.
	_, err = f.service.SoftDelete(ctx, shared.Actor{ID: 12}, 1, created.ID)
	require.ErrorIs(t, err, ErrAccessDenied)

	deleted, err := f.service.SoftDelete(ctx, owner, 1, created.ID)
	require.NoError(t, err)
	require.True(t, deleted.IsDeleted)
	require.NotNil(t, deleted.DeletedAt)
	require.NotNil(t, deleted.DeletedBy)
	require.Equal(t, owner.ID, *deleted.DeletedBy)

	// The row stays in storage but drops out of listings.
	require.Contains(t, f.repo.transactions, created.ID)
	listed, err := f.service.List(ctx, owner, 1, ListFilters{})
	require.NoError(t, err)
	require.Empty(t, listed)

	_, err = f.service.SoftDelete(ctx, owner, 1, created.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.service.SoftDelete(ctx, owner, 1, 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateCategoryRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := shared.Actor{ID: 10}

	created, err := f.service.CreateCategory(ctx, owner, 1, " Sales Revenue ", CategoryIncome, "")
	require.NoError(t, err)
	require.Equal(t, "Sales Revenue", created.Name)

	_, err = f.service.CreateCategory(ctx, owner, 1, "Sales Revenue", CategoryIncome, "")
	require.ErrorIs(t, err, ErrCategoryDuplicate)

	_, err = f.service.CreateCategory(ctx, shared.Actor{ID: 12}, 1, "Fees", CategoryExpense, "")
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestGetOrCreateCategoryIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.GetOrCreateCategory(ctx, 10, 1, "Inter-Business Transfer", CategoryBoth, "Transfers between owned businesses")
	require.NoError(t, err)
	second, err := f.service.GetOrCreateCategory(ctx, 10, 1, "Inter-Business Transfer", CategoryBoth, "Transfers between owned businesses")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, f.repo.categories, 1)
}

func TestGetOrCreateCategorySurvivesInsertRace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A concurrent caller creates the category between our miss and our
	// insert; the conflict path must re-read the winner's row.
	var winner Category
	f.repo.insertHook = func() {
		f.repo.insertHook = nil
		var err error
		winner, err = f.repo.InsertCategory(ctx, Category{BusinessID: 1, Name: "Shipping", Type: CategoryExpense, CreatedBy: 99})
		require.NoError(t, err)
	}

	got, err := f.service.GetOrCreateCategory(ctx, 10, 1, "Shipping", CategoryExpense, "")
	require.NoError(t, err)
	require.Equal(t, winner.ID, got.ID)
	require.Equal(t, int64(99), got.CreatedBy)
	require.Len(t, f.repo.categories, 1)
}

func TestCreateDefaultCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := shared.Actor{ID: 10}

	created, err := f.service.CreateDefaultCategories(ctx, owner, 1)
	require.NoError(t, err)
	require.Len(t, created, 7)

	names := make(map[string]CategoryType, len(created))
	for _, c := range created {
		names[c.Name] = c.Type
	}
	require.Equal(t, CategoryIncome, names["Sales Revenue"])
	require.Equal(t, CategoryExpense, names["Rent"])
	require.Equal(t, CategoryBoth, names["Miscellaneous"])

	// Re-seeding never duplicates.
	again, err := f.service.CreateDefaultCategories(ctx, owner, 1)
	require.NoError(t, err)
	require.Len(t, again, 7)
	require.Len(t, f.repo.categories, 7)

	_, err = f.service.CreateDefaultCategories(ctx, shared.Actor{ID: 13}, 1)
	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestSummaryDefaultsToCurrentMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := shared.Actor{ID: 10}
	f.service.WithNow(func() time.Time { return date(2026, time.March, 20) })

	misc := f.category(t, "Miscellaneous", CategoryBoth)
	_, err := f.service.Append(ctx, owner, 1, AppendInput{CategoryID: misc.ID, Type: TypeIncome, Amount: money("500.00"), Date: date(2026, time.March, 5)})
	require.NoError(t, err)
	_, err = f.service.Append(ctx, owner, 1, AppendInput{CategoryID: misc.ID, Type: TypeExpense, Amount: money("120.00"), Date: date(2026, time.March, 10)})
	require.NoError(t, err)
	// Outside the default window.
	_, err = f.service.Append(ctx, owner, 1, AppendInput{CategoryID: misc.ID, Type: TypeIncome, Amount: money("999.00"), Date: date(2026, time.February, 27)})
	require.NoError(t, err)

	summary, err := f.service.Summary(ctx, owner, 1, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.True(t, summary.TotalIncome.Equal(money("500.00")))
	require.True(t, summary.TotalExpenses.Equal(money("120.00")))
	require.True(t, summary.NetAmount.Equal(money("380.00")))
	require.Equal(t, 2, summary.TransactionCount)
	require.Equal(t, date(2026, time.March, 1), summary.PeriodStart)

	_, err = f.service.Summary(ctx, shared.Actor{ID: 99}, 1, time.Time{}, time.Time{})
	require.ErrorIs(t, err, ErrAccessDenied)
}
