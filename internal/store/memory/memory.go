package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/store"
	"bazar/backend/internal/xid"
)

type Store struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	suppliers   map[string]domain.Supplier
	clients     map[string]domain.Client
	products    map[string]domain.Product
	movements   map[string][]domain.StockMovement
	movementSeq int64
	invoices    map[string]domain.Invoice
	invoiceSeq  map[int]int
	skuSeq      map[string]int
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		users:      make(map[string]domain.User),
		suppliers:  make(map[string]domain.Supplier),
		clients:    make(map[string]domain.Client),
		products:   make(map[string]domain.Product),
		movements:  make(map[string][]domain.StockMovement),
		invoices:   make(map[string]domain.Invoice),
		invoiceSeq: make(map[int]int),
		skuSeq:     make(map[string]int),
	}
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Username, user.Username) {
			return nil, fmt.Errorf("%w: username already exists", store.ErrDuplicate)
		}
		if strings.EqualFold(existing.Email, user.Email) {
			return nil, fmt.Errorf("%w: email already exists", store.ErrDuplicate)
		}
	}
	if user.ID == "" {
		user.ID = xid.New()
	}
	s.users[user.ID] = user
	out := cloneUser(user)
	return &out, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneUser(user)
	return &out, nil
}

func (s *Store) GetUserByLogin(_ context.Context, login string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	login = strings.TrimSpace(login)
	for _, user := range s.users {
		if strings.EqualFold(user.Username, login) || strings.EqualFold(user.Email, login) {
			out := cloneUser(user)
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context, filter store.ListFilter) (store.Page[domain.User], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter = filter.Normalize()
	items := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		if filter.Status != "" && user.Status != filter.Status {
			continue
		}
		if !matches(filter.Search, user.Username, user.Email, user.Profile.FirstName, user.Profile.LastName) {
			continue
		}
		items = append(items, cloneUser(user))
	}
	sortItems(items, filter.Sort, "username", map[string]func(a, b domain.User) int{
		"username":  func(a, b domain.User) int { return cmp.Compare(a.Username, b.Username) },
		"email":     func(a, b domain.User) int { return cmp.Compare(a.Email, b.Email) },
		"role":      func(a, b domain.User) int { return cmp.Compare(a.Role, b.Role) },
		"createdAt": func(a, b domain.User) int { return a.CreatedAt.Compare(b.CreatedAt) },
	})
	return paginate(items, filter), nil
}

func (s *Store) CountUsers(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users), nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return nil, store.ErrNotFound
	}
	for id, existing := range s.users {
		if id == user.ID {
			continue
		}
		if strings.EqualFold(existing.Email, user.Email) {
			return nil, fmt.Errorf("%w: email already exists", store.ErrDuplicate)
		}
	}
	s.users[user.ID] = cloneUser(user)
	out := cloneUser(user)
	return &out, nil
}

func (s *Store) RecordLoginFailure(_ context.Context, id string, maxAttempts int, lockFor time.Duration, now time.Time) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	user.RegisterFailedLogin(maxAttempts, lockFor, now)
	s.users[id] = user
	out := cloneUser(user)
	return &out, nil
}

func (s *Store) RecordLoginSuccess(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	user.RegisterSuccessfulLogin(now)
	s.users[id] = user
	return nil
}

func matches(search string, fields ...string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

// sortItems orders by "field" or "-field"; unknown fields fall back to
// the collection default.
func sortItems[T any](items []T, spec string, fallback string, keys map[string]func(a, b T) int) {
	spec = strings.TrimSpace(spec)
	desc := strings.HasPrefix(spec, "-")
	field := strings.TrimPrefix(spec, "-")
	compare, ok := keys[field]
	if !ok {
		desc = strings.HasPrefix(fallback, "-")
		compare = keys[strings.TrimPrefix(fallback, "-")]
	}
	if compare == nil {
		return
	}
	slices.SortStableFunc(items, func(a, b T) int {
		if desc {
			return compare(b, a)
		}
		return compare(a, b)
	})
}

func paginate[T any](items []T, filter store.ListFilter) store.Page[T] {
	total := len(items)
	start := filter.Offset()
	if start < 0 || start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return store.Page[T]{Items: items[start:end], Total: total}
}

func cloneUser(src domain.User) domain.User {
	out := src
	if src.LockUntil != nil {
		t := *src.LockUntil
		out.LockUntil = &t
	}
	if src.LastLogin != nil {
		t := *src.LastLogin
		out.LastLogin = &t
	}
	return out
}
