// Package memory provides map-backed repositories for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nrbnayon/silver-gym/models"
	"github.com/nrbnayon/silver-gym/repositories"
)

// UserRepository is an in-memory repositories.UserRepository.
type UserRepository struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*models.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[uuid.UUID]*models.User)}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := models.NormalizeEmail(user.Email)
	for _, existing := range r.users {
		if existing.Email == email || (user.Phone != "" && existing.Phone == user.Phone) {
			return repositories.ErrDuplicate
		}
	}
	stored := *user
	stored.Email = email
	r.users[user.ID] = &stored
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := *user
	return &out, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	if phone == "" {
		return nil, repositories.ErrNotFound
	}
	return r.find(func(u *models.User) bool { return u.Phone == phone })
}

func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	r.mu.RLock()
	all := make([]*models.User, 0, len(r.users))
	for _, u := range r.users {
		out := *u
		all = append(all, &out)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	return page(all, limit, offset), nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, id uuid.UUID, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	user.Role = role
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *UserRepository) CountByRole(ctx context.Context, role string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, u := range r.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

// LockRoleHolders is CountByRole; callers serialize their own
// read-then-write sequences against this store.
func (r *UserRepository) LockRoleHolders(ctx context.Context, role string) (int, error) {
	return r.CountByRole(ctx, role)
}

// WithTx is a no-op; writes are applied immediately.
func (r *UserRepository) WithTx(repositories.Transaction) repositories.UserRepository {
	return r
}

func (r *UserRepository) find(match func(*models.User) bool) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if match(u) {
			out := *u
			return &out, nil
		}
	}
	return nil, repositories.ErrNotFound
}

// SignupProgressRepository is an in-memory repositories.SignupProgressRepository.
type SignupProgressRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*models.SignupProgress
}

func NewSignupProgressRepository() *SignupProgressRepository {
	return &SignupProgressRepository{records: make(map[uuid.UUID]*models.SignupProgress)}
}

func (r *SignupProgressRepository) Get(ctx context.Context, flowID uuid.UUID) (*models.SignupProgress, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.records[flowID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return cloneProgress(p), nil
}

func (r *SignupProgressRepository) Save(ctx context.Context, progress *models.SignupProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[progress.FlowID] = cloneProgress(progress)
	return nil
}

func (r *SignupProgressRepository) Delete(ctx context.Context, flowID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, flowID)
	return nil
}

func (r *SignupProgressRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, p := range r.records {
		if p.UpdatedAt.Before(before) {
			delete(r.records, id)
			n++
		}
	}
	return n, nil
}

func (r *SignupProgressRepository) WithTx(repositories.Transaction) repositories.SignupProgressRepository {
	return r
}

// cloneProgress deep-copies the step payloads so callers cannot mutate stored state.
func cloneProgress(p *models.SignupProgress) *models.SignupProgress {
	out := *p
	if p.Signup != nil {
		s := *p.Signup
		out.Signup = &s
	}
	if p.Business != nil {
		b := *p.Business
		out.Business = &b
	}
	if p.Contact != nil {
		c := *p.Contact
		out.Contact = &c
	}
	return &out
}

// AuditRepository keeps audit entries in insertion order.
type AuditRepository struct {
	mu   sync.RWMutex
	logs []*models.AuditLog
}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := *log
	r.logs = append(r.logs, &entry)
	return nil
}

func (r *AuditRepository) ListRecent(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	return r.filter(func(*models.AuditLog) bool { return true }, limit, offset), nil
}

func (r *AuditRepository) GetByActor(ctx context.Context, actorID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	return r.filter(func(l *models.AuditLog) bool {
		return l.ActorID != nil && *l.ActorID == actorID
	}, limit, offset), nil
}

func (r *AuditRepository) filter(match func(*models.AuditLog) bool, limit, offset int) []*models.AuditLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.AuditLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		if match(r.logs[i]) {
			entry := *r.logs[i]
			out = append(out, &entry)
		}
	}
	return page(out, limit, offset)
}

// AttemptRepository keeps event times per scope key.
type AttemptRepository struct {
	mu     sync.Mutex
	events map[string][]time.Time
}

func NewAttemptRepository() *AttemptRepository {
	return &AttemptRepository{events: make(map[string][]time.Time)}
}

func (r *AttemptRepository) Record(ctx context.Context, scopeKey string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[scopeKey] = append(r.events[scopeKey], at)
	return nil
}

func (r *AttemptRepository) Count(ctx context.Context, scopeKey string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, at := range r.events[scopeKey] {
		if !at.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *AttemptRepository) Clear(ctx context.Context, scopeKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.events, scopeKey)
	return nil
}

func (r *AttemptRepository) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for key, times := range r.events {
		kept := times[:0]
		for _, at := range times {
			if at.Before(before) {
				removed++
				continue
			}
			kept = append(kept, at)
		}
		if len(kept) == 0 {
			delete(r.events, key)
			continue
		}
		r.events[key] = kept
	}
	return removed, nil
}

// RevocationRepository maps revoked token IDs to their expiry.
type RevocationRepository struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
}

func NewRevocationRepository() *RevocationRepository {
	return &RevocationRepository{revoked: make(map[string]time.Time)}
}

func (r *RevocationRepository) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.revoked[tokenID] = expiresAt
	return nil
}

func (r *RevocationRepository) IsRevoked(ctx context.Context, tokenID string, now time.Time) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exp, ok := r.revoked[tokenID]
	return ok && now.Before(exp), nil
}

func (r *RevocationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for id, exp := range r.revoked {
		if !now.Before(exp) {
			delete(r.revoked, id)
			removed++
		}
	}
	return removed, nil
}

// TransactionManager runs fn directly; the memory stores have no rollback.
type TransactionManager struct{}

func (TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return transaction{ctx: ctx}, nil
}

func (tm TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	return fn(ctx, transaction{ctx: ctx})
}

type transaction struct{ ctx context.Context }

func (transaction) Commit() error              { return nil }
func (transaction) Rollback() error            { return nil }
func (t transaction) Context() context.Context { return t.ctx }

// NewRepositories returns a fresh set of in-memory repositories.
func NewRepositories() *repositories.Repositories {
	return &repositories.Repositories{
		Users:          NewUserRepository(),
		SignupProgress: NewSignupProgressRepository(),
		AuditLogs:      NewAuditRepository(),
		LoginAttempts:  NewAttemptRepository(),
		RevokedTokens:  NewRevocationRepository(),
	}
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
