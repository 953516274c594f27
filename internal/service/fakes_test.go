// fakes_test.go — in-memory реализации репозиториев и внешних клиентов
// для unit-тестов сервисного слоя.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/pegasustools/admin-module/internal/domain/model"
	"github.com/pegasustools/admin-module/internal/keycloak"
	"github.com/pegasustools/admin-module/internal/legacy"
	"github.com/pegasustools/admin-module/internal/repository"
)

var errInjected = errors.New("injected failure")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Репозитории ---

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
	// failCreate — email-адреса, вставка которых завершается ошибкой
	failCreate map[string]bool
	failUpdate bool
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*model.User{}, failCreate: map[string]bool{}}
}

func (r *fakeUserRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate[u.Email] {
		return errInjected
	}
	if _, ok := r.users[u.ID]; ok {
		return repository.ErrConflict
	}
	c := *u
	r.users[u.ID] = &c
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *fakeUserRepo) List(_ context.Context, _ model.UserFilter) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.User, 0, len(r.users))
	for _, id := range slices.Sorted(maps.Keys(r.users)) {
		c := *r.users[id]
		out = append(out, &c)
	}
	return out, nil
}

func (r *fakeUserRepo) Count(_ context.Context, _ model.UserFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users), nil
}

func (r *fakeUserRepo) GetCreditsForUpdate(_ context.Context, id string) (*string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u.Credits, nil
}

func (r *fakeUserRepo) UpdateCredits(_ context.Context, id, credits string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate {
		return errInjected
	}
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Credits = &credits
	return nil
}

func (r *fakeUserRepo) snapshot() map[string]model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]model.User, len(r.users))
	for id, u := range r.users {
		out[id] = *u
	}
	return out
}

func (r *fakeUserRepo) restore(s map[string]model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = make(map[string]*model.User, len(s))
	for id, u := range s {
		c := u
		r.users[id] = &c
	}
}

type fakeOperationRepo struct {
	mu  sync.Mutex
	ops []*model.Operation
	// failUID — операции с этим uid не вставляются
	failUID string
}

func (r *fakeOperationRepo) Create(_ context.Context, op *model.Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUID != "" && op.UID == r.failUID {
		return errInjected
	}
	c := *op
	r.ops = append(r.ops, &c)
	return nil
}

func (r *fakeOperationRepo) ListByUser(_ context.Context, uid string, limit, offset int) ([]*model.Operation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Operation
	for _, op := range r.ops {
		if op.UID == uid {
			out = append(out, op)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

type fakeDistributorRepo struct {
	mu    sync.Mutex
	items map[string]*model.Distributor
	// emails — занятые email
	emails     map[string]bool
	failUpdate bool
}

func newFakeDistributorRepo() *fakeDistributorRepo {
	return &fakeDistributorRepo{items: map[string]*model.Distributor{}, emails: map[string]bool{}}
}

func (r *fakeDistributorRepo) Create(_ context.Context, d *model.Distributor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.emails[d.Email] {
		return repository.ErrConflict
	}
	r.emails[d.Email] = true
	c := *d
	r.items[d.ID] = &c
	return nil
}

func (r *fakeDistributorRepo) GetByID(_ context.Context, id string) (*model.Distributor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *d
	return &c, nil
}

func (r *fakeDistributorRepo) List(_ context.Context, status *string, _, _ int) ([]*model.Distributor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Distributor
	for _, id := range slices.Sorted(maps.Keys(r.items)) {
		d := r.items[id]
		if status != nil && d.Status != *status {
			continue
		}
		c := *d
		out = append(out, &c)
	}
	return out, nil
}

func (r *fakeDistributorRepo) Count(ctx context.Context, status *string) (int, error) {
	items, err := r.List(ctx, status, 0, 0)
	return len(items), err
}

func (r *fakeDistributorRepo) GetBalanceForUpdate(_ context.Context, id string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return decimal.Zero, repository.ErrNotFound
	}
	return d.CurrentBalance, nil
}

func (r *fakeDistributorRepo) UpdateBalance(_ context.Context, id string, balance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdate {
		return errInjected
	}
	d, ok := r.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.CurrentBalance = balance
	return nil
}

func (r *fakeDistributorRepo) balance(id string) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id].CurrentBalance
}

func (r *fakeDistributorRepo) snapshot() map[string]decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(r.items))
	for id, d := range r.items {
		out[id] = d.CurrentBalance
	}
	return out
}

func (r *fakeDistributorRepo) restore(s map[string]decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, b := range s {
		r.items[id].CurrentBalance = b
	}
}

type fakeLedgerRepo struct {
	mu         sync.Mutex
	entries    []*model.CreditEntry
	failAppend bool
}

func (r *fakeLedgerRepo) Append(_ context.Context, e *model.CreditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAppend {
		return errInjected
	}
	c := *e
	r.entries = append(r.entries, &c)
	return nil
}

func (r *fakeLedgerRepo) ListByDistributor(_ context.Context, distributorID string, _, _ int) ([]*model.CreditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.CreditEntry
	for _, e := range r.entries {
		if e.DistributorID == distributorID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeLedgerRepo) CountByDistributor(ctx context.Context, distributorID string) (int, error) {
	items, err := r.ListByDistributor(ctx, distributorID, 0, 0)
	return len(items), err
}

// fakeTxRunner имитирует транзакцию: при ошибке fn состояние
// репозиториев откатывается к снимку.
type fakeTxRunner struct {
	users        *fakeUserRepo
	distributors *fakeDistributorRepo
	ledger       *fakeLedgerRepo
}

func (f *fakeTxRunner) RunCreditTx(_ context.Context, fn func(repos repository.CreditRepos) error) error {
	users := f.users.snapshot()
	balances := f.distributors.snapshot()
	f.ledger.mu.Lock()
	ledgerLen := len(f.ledger.entries)
	f.ledger.mu.Unlock()

	err := fn(repository.CreditRepos{
		Users:        f.users,
		Distributors: f.distributors,
		Credits:      f.ledger,
	})
	if err != nil {
		f.users.restore(users)
		f.distributors.restore(balances)
		f.ledger.mu.Lock()
		f.ledger.entries = f.ledger.entries[:ledgerLen]
		f.ledger.mu.Unlock()
	}
	return err
}

// --- Внешние клиенты ---

type fakeLegacyStore struct {
	users      map[string]model.LegacyUser
	operations map[string]model.LegacyOperation
	// rawUsers, rawOperations — записи в исходном JSON, добавляются к типизированным
	rawUsers      map[string]string
	rawOperations map[string]string

	signInErr error
	usersErr  error
	opsErr    error

	signInCalls int
}

func (f *fakeLegacyStore) SignIn(_ context.Context, _, _ string) (*legacy.Session, error) {
	f.signInCalls++
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return &legacy.Session{IDToken: "id-token", LocalID: "admin-uid"}, nil
}

func (f *fakeLegacyStore) FetchUsers(_ context.Context, _ string) (model.LegacyRecords, error) {
	if f.usersErr != nil {
		return nil, f.usersErr
	}
	return toLegacyRecords(f.users, f.rawUsers)
}

func (f *fakeLegacyStore) FetchOperations(_ context.Context, _ string) (model.LegacyRecords, error) {
	if f.opsErr != nil {
		return nil, f.opsErr
	}
	return toLegacyRecords(f.operations, f.rawOperations)
}

// toLegacyRecords собирает коллекцию так, как её вернул бы клиент:
// nil при отсутствии записей обоих видов.
func toLegacyRecords[T any](typed map[string]T, raw map[string]string) (model.LegacyRecords, error) {
	if typed == nil && raw == nil {
		return nil, nil
	}
	records := make(model.LegacyRecords, len(typed)+len(raw))
	for key, rec := range typed {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		records[key] = data
	}
	for key, data := range raw {
		records[key] = json.RawMessage(data)
	}
	return records, nil
}

type fakeIDP struct {
	mu        sync.Mutex
	accessErr error
	// byEmail — созданные пользователи: email → запрос
	byEmail map[string]keycloak.NewUser
	ids     map[string]string
	deleted []string
	seq     int
}

func newFakeIDP() *fakeIDP {
	return &fakeIDP{byEmail: map[string]keycloak.NewUser{}, ids: map[string]string{}}
}

func (f *fakeIDP) CheckAccess(_ context.Context) error { return f.accessErr }

func (f *fakeIDP) CreateUser(_ context.Context, u keycloak.NewUser) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[u.Email]; ok {
		return "", keycloak.ErrUserExists
	}
	f.seq++
	id := fmt.Sprintf("kc-%03d", f.seq)
	f.byEmail[u.Email] = u
	f.ids[u.Email] = id
	return id, nil
}

func (f *fakeIDP) DeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	for email, kcID := range f.ids {
		if kcID == id {
			delete(f.ids, email)
			delete(f.byEmail, email)
		}
	}
	return nil
}
