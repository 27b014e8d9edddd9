package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mansoorceksport/deviceauth/internal/domain"
)

var idSeq atomic.Int64

func nextID() string {
	return fmt.Sprintf("%024d", idSeq.Add(1))
}

// plainHasher keeps tests fast; bcrypt is covered in credentials_test.go
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }
func (plainHasher) Verify(password, hash string) bool   { return hash == "hashed:"+password }

// memAccounts implements domain.AccountRepository
type memAccounts struct {
	mu       sync.Mutex
	byID     map[string]domain.Account
	failWith error
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: map[string]domain.Account{}}
}

func (m *memAccounts) Create(ctx context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, existing := range m.byID {
		if existing.Username == a.Username {
			return domain.ErrDuplicateUsername
		}
	}
	now := time.Now().UTC()
	a.ID, a.CreatedAt, a.UpdatedAt = nextID(), now, now
	m.byID[a.ID] = *a
	return nil
}

func (m *memAccounts) FindByUsername(ctx context.Context, username string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, a := range m.byID {
		if a.Username == username {
			a := a
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memAccounts) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	a, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (m *memAccounts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

// memDevices implements domain.DeviceRepository
type memDevices struct {
	mu   sync.Mutex
	byID map[string]*domain.Device
}

func newMemDevices() *memDevices {
	return &memDevices{byID: map[string]*domain.Device{}}
}

func cloneDevice(d *domain.Device) *domain.Device {
	c := *d
	c.Hosts = append([]domain.HostEntry(nil), d.Hosts...)
	c.Agents = append([]domain.AgentEntry(nil), d.Agents...)
	return &c
}

func (m *memDevices) Create(ctx context.Context, d *domain.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.AccountID == d.AccountID && existing.Identifier == d.Identifier {
			return domain.ErrDuplicateDevice
		}
	}
	now := time.Now().UTC()
	d.ID, d.CreatedAt, d.UpdatedAt = nextID(), now, now
	m.byID[d.ID] = cloneDevice(d)
	return nil
}

func (m *memDevices) Find(ctx context.Context, accountID, identifier string) (*domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.byID {
		if d.AccountID == accountID && d.Identifier == identifier {
			return cloneDevice(d), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memDevices) FindByID(ctx context.Context, id string) (*domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneDevice(d), nil
}

func (m *memDevices) FindByIdentifier(ctx context.Context, identifier string) ([]*domain.Device, error) {
	return m.filter(func(d *domain.Device) bool { return d.Identifier == identifier }), nil
}

func (m *memDevices) FindByAccount(ctx context.Context, accountID string) ([]*domain.Device, error) {
	return m.filter(func(d *domain.Device) bool { return d.AccountID == accountID }), nil
}

func (m *memDevices) AppendObservation(ctx context.Context, d *domain.Device, address, agent string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[d.ID]
	if !ok {
		return domain.ErrNotFound
	}
	d.Observe(address, agent, time.Now().UTC())
	stored.Observe(address, agent, time.Now().UTC())
	return nil
}

func (m *memDevices) filter(keep func(*domain.Device) bool) []*domain.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Device{}
	for _, d := range m.byID {
		if keep(d) {
			out = append(out, cloneDevice(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// memSessions implements domain.SessionRepository
type memSessions struct {
	mu          sync.Mutex
	all         []*domain.Session
	revokeCalls int
	block       bool // FindByToken waits for ctx to end
}

func (m *memSessions) Create(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	s.ID, s.CreatedAt, s.UpdatedAt = nextID(), now, now
	c := *s
	m.all = append(m.all, &c)
	return nil
}

func (m *memSessions) FindByToken(ctx context.Context, deviceIDs []string, token string) ([]*domain.Session, error) {
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	ids := map[string]bool{}
	for _, id := range deviceIDs {
		ids[id] = true
	}
	return m.filter(func(s *domain.Session) bool { return ids[s.DeviceID] && s.Token == token }), nil
}

func (m *memSessions) FindActive(ctx context.Context, deviceID string) ([]*domain.Session, error) {
	return m.filter(func(s *domain.Session) bool { return s.DeviceID == deviceID && s.RevokedAt == nil }), nil
}

func (m *memSessions) FindLatest(ctx context.Context, deviceID string) (*domain.Session, error) {
	matches := m.filter(func(s *domain.Session) bool { return s.DeviceID == deviceID })
	if len(matches) == 0 {
		return nil, domain.ErrNotFound
	}
	return matches[len(matches)-1], nil
}

func (m *memSessions) Revoke(ctx context.Context, s *domain.Session, reason domain.RevokedReason) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revokeCalls++
	for _, stored := range m.all {
		if stored.ID != s.ID {
			continue
		}
		if stored.RevokedAt != nil {
			return domain.ErrAlreadyRevoked
		}
		now := time.Now().UTC()
		stored.RevokedAt, stored.RevokedReason = &now, reason
		s.RevokedAt, s.RevokedReason = &now, reason
		return nil
	}
	return domain.ErrNotFound
}

func (m *memSessions) RevokeExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.all {
		if s.RevokedAt == nil && s.IsExpired(now) {
			at := now
			s.RevokedAt, s.RevokedReason = &at, domain.RevokedExpired
			n++
		}
	}
	return n, nil
}

func (m *memSessions) filter(keep func(*domain.Session) bool) []*domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Session{}
	for _, s := range m.all {
		if keep(s) {
			c := *s
			out = append(out, &c)
		}
	}
	return out
}

// expire moves every session with token into the past
func (m *memSessions) expire(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.all {
		if s.Token == token {
			s.ExpiresAt = time.Now().Add(-time.Minute)
		}
	}
}

func (m *memSessions) byToken(token string) []*domain.Session {
	return m.filter(func(s *domain.Session) bool { return s.Token == token })
}

func (m *memSessions) revokes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeCalls
}
