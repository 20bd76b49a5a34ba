package testutil

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"oauthbridge.io/bridge/internal/action"
	"oauthbridge.io/bridge/internal/domain"
	apperrors "oauthbridge.io/bridge/internal/pkg/errors"
)

// Operations that can be made to fail with MemStore.FailOn.
const (
	OpUserCreate     = "users.create"
	OpUserDelete     = "users.delete"
	OpAccountCreate  = "accounts.create"
	OpAccountGet     = "accounts.get"
	OpRolesReplace   = "roles.replace"
	OpClientsList    = "clients.list"
	OpActionsList    = "actions.list"
	OpSinkUpsert     = "sink.upsert"
	OpSinkInsert     = "sink.insert"
	OpProvidersFetch = "providers.get"
)

// MemStore is an in-memory implementation of every repository interface.
// It enforces the same uniqueness rules as the PostgreSQL schema.
type MemStore struct {
	mu        sync.Mutex
	providers map[string]*domain.Provider
	clients   map[string]*domain.ProviderClient
	users     map[string]*domain.User
	accounts  map[string]*domain.SocialAccount
	userRoles map[string][]string
	roles     map[string]*domain.Role
	actions   []*domain.LoginAction
	rows      map[string][]map[string]action.Value
	failures  map[string]error

	// BeforeAccountCreate runs before a social account insert, outside the lock.
	BeforeAccountCreate func(ctx context.Context, acct *domain.SocialAccount)

	Providers *MemProviders
	Clients   *MemClients
	Users     *MemUsers
	Accounts  *MemAccounts
	Roles     *MemRoles
	Actions   *MemActions
	Sink      *MemSink
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	s := &MemStore{
		providers: make(map[string]*domain.Provider),
		clients:   make(map[string]*domain.ProviderClient),
		users:     make(map[string]*domain.User),
		accounts:  make(map[string]*domain.SocialAccount),
		userRoles: make(map[string][]string),
		roles:     make(map[string]*domain.Role),
		rows:      make(map[string][]map[string]action.Value),
		failures:  make(map[string]error),
	}
	s.Providers = &MemProviders{s}
	s.Clients = &MemClients{s}
	s.Users = &MemUsers{s}
	s.Accounts = &MemAccounts{s}
	s.Roles = &MemRoles{s}
	s.Actions = &MemActions{s}
	s.Sink = &MemSink{s}
	return s
}

// FailOn makes every later call of op return err. A nil err clears it.
func (s *MemStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// fail must be called with s.mu held.
func (s *MemStore) fail(op string) error {
	return s.failures[op]
}

// UserCount returns the number of users.
func (s *MemStore) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// AccountCount returns the number of social accounts.
func (s *MemStore) AccountCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// RolesOf returns the user's role ids, sorted.
func (s *MemStore) RolesOf(userID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]string{}, s.userRoles[userID]...)
	sort.Strings(out)
	return out
}

// Rows returns a copy of the rows written to table.
func (s *MemStore) Rows(table string) []map[string]action.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]action.Value, 0, len(s.rows[table]))
	for _, r := range s.rows[table] {
		out = append(out, copyRow(r))
	}
	return out
}

func accountKey(providerID, uid string) string {
	return providerID + "\x00" + uid
}

func notFound(kind, key string) error {
	return fmt.Errorf("%s %q: %w", kind, key, apperrors.ErrNotFound)
}

func conflict(kind, key string) error {
	return fmt.Errorf("%s %q: %w", kind, key, apperrors.ErrConflict)
}

// MemProviders stores providers.
type MemProviders struct{ s *MemStore }

// Create inserts a provider; names are unique.
func (r *MemProviders) Create(ctx context.Context, p *domain.Provider) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.providers {
		if strings.EqualFold(existing.Name, p.Name) {
			return conflict("provider", p.Name)
		}
	}
	if _, dup := r.s.providers[p.ID]; dup {
		return conflict("provider", p.ID)
	}
	cp := *p
	r.s.providers[p.ID] = &cp
	return nil
}

// GetByName returns the provider with the given name.
func (r *MemProviders) GetByName(ctx context.Context, name string) (*domain.Provider, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpProvidersFetch); err != nil {
		return nil, err
	}
	for _, p := range r.s.providers {
		if strings.EqualFold(p.Name, name) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, notFound("provider", name)
}

// GetByID returns the provider with the given id.
func (r *MemProviders) GetByID(ctx context.Context, id string) (*domain.Provider, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.providers[id]
	if !ok {
		return nil, notFound("provider", id)
	}
	cp := *p
	return &cp, nil
}

// MemClients stores provider clients.
type MemClients struct{ s *MemStore }

// Create inserts a provider client.
func (r *MemClients) Create(ctx context.Context, c *domain.ProviderClient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, dup := r.s.clients[c.ID]; dup {
		return conflict("provider client", c.ID)
	}
	cp := *c
	r.s.clients[c.ID] = &cp
	return nil
}

// GetByID returns the client with the given id.
func (r *MemClients) GetByID(ctx context.Context, id string) (*domain.ProviderClient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.clients[id]
	if !ok {
		return nil, notFound("provider client", id)
	}
	cp := *c
	return &cp, nil
}

// ListByIDs returns the clients among ids that exist.
func (r *MemClients) ListByIDs(ctx context.Context, ids []string) ([]*domain.ProviderClient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpClientsList); err != nil {
		return nil, err
	}
	var out []*domain.ProviderClient
	for _, id := range ids {
		if c, ok := r.s.clients[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MemUsers stores users.
type MemUsers struct{ s *MemStore }

// Create inserts a user; non-empty emails are unique.
func (r *MemUsers) Create(ctx context.Context, u *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpUserCreate); err != nil {
		return err
	}
	if _, dup := r.s.users[u.ID]; dup {
		return conflict("user", u.ID)
	}
	if u.Email != "" {
		for _, existing := range r.s.users {
			if existing.Email == u.Email {
				return conflict("user email", u.Email)
			}
		}
	}
	cp := *u
	cp.Roles = nil
	r.s.users[u.ID] = &cp
	return nil
}

// GetByID returns the user with its roles.
func (r *MemUsers) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	return r.withRoles(u), nil
}

// GetByEmail returns the user with the given email.
func (r *MemUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if email != "" && u.Email == email {
			return r.withRoles(u), nil
		}
	}
	return nil, notFound("user email", email)
}

// Delete removes the user, its roles and its social accounts.
func (r *MemUsers) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpUserDelete); err != nil {
		return err
	}
	if _, ok := r.s.users[id]; !ok {
		return notFound("user", id)
	}
	delete(r.s.users, id)
	delete(r.s.userRoles, id)
	for k, a := range r.s.accounts {
		if a.UserID == id {
			delete(r.s.accounts, k)
		}
	}
	return nil
}

func (r *MemUsers) withRoles(u *domain.User) *domain.User {
	cp := *u
	cp.Roles = append([]string{}, r.s.userRoles[u.ID]...)
	return &cp
}

// MemAccounts stores social accounts.
type MemAccounts struct{ s *MemStore }

// Create inserts a link; (provider_id, oauth_uid) is unique.
func (r *MemAccounts) Create(ctx context.Context, acct *domain.SocialAccount) error {
	if hook := r.s.BeforeAccountCreate; hook != nil {
		hook(ctx, acct)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpAccountCreate); err != nil {
		return err
	}
	key := accountKey(acct.ProviderID, acct.OAuthUID)
	if _, dup := r.s.accounts[key]; dup {
		return conflict("social account", acct.OAuthUID)
	}
	if _, ok := r.s.users[acct.UserID]; !ok {
		return notFound("user", acct.UserID)
	}
	cp := *acct
	r.s.accounts[key] = &cp
	return nil
}

// GetByProviderUID returns the link for (providerID, oauthUID).
func (r *MemAccounts) GetByProviderUID(ctx context.Context, providerID, oauthUID string) (*domain.SocialAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpAccountGet); err != nil {
		return nil, err
	}
	a, ok := r.s.accounts[accountKey(providerID, oauthUID)]
	if !ok {
		return nil, notFound("social account", oauthUID)
	}
	cp := *a
	return &cp, nil
}

// MemRoles stores roles and assignments.
type MemRoles struct{ s *MemStore }

// Create inserts a role.
func (r *MemRoles) Create(ctx context.Context, role *domain.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, dup := r.s.roles[role.ID]; dup {
		return conflict("role", role.ID)
	}
	cp := *role
	r.s.roles[role.ID] = &cp
	return nil
}

// ReplaceUserRoles replaces the user's role set.
func (r *MemRoles) ReplaceUserRoles(ctx context.Context, userID string, roleIDs []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpRolesReplace); err != nil {
		return err
	}
	if _, ok := r.s.users[userID]; !ok {
		return notFound("user", userID)
	}
	r.s.userRoles[userID] = append([]string{}, roleIDs...)
	return nil
}

// MemActions stores login actions.
type MemActions struct{ s *MemStore }

// Create appends a login action.
func (r *MemActions) Create(ctx context.Context, a *domain.LoginAction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *a
	r.s.actions = append(r.s.actions, &cp)
	return nil
}

// ListForClients returns actions attached to any of ids.
func (r *MemActions) ListForClients(ctx context.Context, ids []string) ([]*domain.LoginAction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpActionsList); err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []*domain.LoginAction
	for _, a := range r.s.actions {
		for _, cid := range a.ProviderClientIDs {
			if _, ok := want[cid]; ok {
				cp := *a
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

// ListAll returns every login action.
func (r *MemActions) ListAll(ctx context.Context) ([]*domain.LoginAction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*domain.LoginAction, 0, len(r.s.actions))
	for _, a := range r.s.actions {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

// MemSink stores entity rows by table.
type MemSink struct{ s *MemStore }

// Upsert updates every row matching keys, or inserts attrs when none match.
func (r *MemSink) Upsert(ctx context.Context, entity *action.EntityDescriptor, keys []string, attrs map[string]action.Value) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpSinkUpsert); err != nil {
		return err
	}
	matched := false
	for _, row := range r.s.rows[entity.Table] {
		if !rowMatches(row, keys, attrs) {
			continue
		}
		matched = true
		for k, v := range attrs {
			row[k] = v
		}
	}
	if !matched {
		r.s.rows[entity.Table] = append(r.s.rows[entity.Table], copyRow(attrs))
	}
	return nil
}

// Insert appends a row.
func (r *MemSink) Insert(ctx context.Context, entity *action.EntityDescriptor, attrs map[string]action.Value) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail(OpSinkInsert); err != nil {
		return err
	}
	r.s.rows[entity.Table] = append(r.s.rows[entity.Table], copyRow(attrs))
	return nil
}

func rowMatches(row map[string]action.Value, keys []string, attrs map[string]action.Value) bool {
	for _, k := range keys {
		have, ok := row[k]
		if !ok || !have.Equal(attrs[k]) {
			return false
		}
	}
	return true
}

func copyRow(r map[string]action.Value) map[string]action.Value {
	out := make(map[string]action.Value, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
