package domain

import (
	"context"
	"time"
)

// Platform tags
const (
	PlatformWeb     = "web"
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

// ValidPlatform reports whether p is one of the supported platform tags
func ValidPlatform(p string) bool {
	switch p {
	case PlatformWeb, PlatformIOS, PlatformAndroid:
		return true
	}
	return false
}

// HostEntry is one observed network address
type HostEntry struct {
	Address   string    `bson:"address" json:"address"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// AgentEntry is one observed client-agent string
type AgentEntry struct {
	Raw       string    `bson:"raw" json:"raw"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// Device is a logical client installation belonging to one account
type Device struct {
	ID         string       `bson:"_id,omitempty" json:"id"`
	AccountID  string       `bson:"account_id" json:"accountId"`
	Identifier string       `bson:"identifier" json:"identifier"`
	Platform   string       `bson:"platform" json:"platform"`
	Hosts      []HostEntry  `bson:"hosts" json:"hosts"`
	Agents     []AgentEntry `bson:"agents" json:"agents"`
	CreatedAt  time.Time    `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time    `bson:"updated_at" json:"updatedAt"`
}

// LastHost returns the most recent address, or "" when none was observed
func (d *Device) LastHost() string {
	if len(d.Hosts) == 0 {
		return ""
	}
	return d.Hosts[len(d.Hosts)-1].Address
}

// LastAgent returns the most recent agent string, or "" when none was observed
func (d *Device) LastAgent() string {
	if len(d.Agents) == 0 {
		return ""
	}
	return d.Agents[len(d.Agents)-1].Raw
}

// Observe appends address and agent to the history only when each differs
// from the current tail. Empty values are ignored. It returns the entries it
// appended so stores can persist just those.
func (d *Device) Observe(address, agent string, now time.Time) (*HostEntry, *AgentEntry) {
	var host *HostEntry
	var ag *AgentEntry

	if address != "" && d.LastHost() != address {
		host = &HostEntry{Address: address, CreatedAt: now}
		d.Hosts = append(d.Hosts, *host)
	}
	if agent != "" && d.LastAgent() != agent {
		ag = &AgentEntry{Raw: agent, CreatedAt: now}
		d.Agents = append(d.Agents, *ag)
	}
	if host != nil || ag != nil {
		d.UpdatedAt = now
	}
	return host, ag
}

// DeviceView is the public projection used by the device listing
type DeviceView struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	Platform   string    `json:"platform"`
	Agent      string    `json:"agent"`
	Host       string    `json:"host"`
	LoggedIn   bool      `json:"loggedIn"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TransformDevice projects a device; latest may be nil
func TransformDevice(d *Device, latest *Session, now time.Time) DeviceView {
	return DeviceView{
		ID:         d.ID,
		Identifier: d.Identifier,
		Platform:   d.Platform,
		Agent:      d.LastAgent(),
		Host:       d.LastHost(),
		LoggedIn:   latest != nil && latest.IsValid(now),
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// DeviceRepository defines the device store
type DeviceRepository interface {
	// Create inserts a device, returning ErrDuplicateDevice when the
	// (account, identifier) pair already exists
	Create(ctx context.Context, device *Device) error

	Find(ctx context.Context, accountID, identifier string) (*Device, error)
	FindByID(ctx context.Context, id string) (*Device, error)

	// FindByIdentifier returns every device carrying identifier, across accounts
	FindByIdentifier(ctx context.Context, identifier string) ([]*Device, error)
	FindByAccount(ctx context.Context, accountID string) ([]*Device, error)

	// AppendObservation records address/agent using the tail-dedup rule
	AppendObservation(ctx context.Context, device *Device, address, agent string) error
}
