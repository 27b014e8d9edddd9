package service

import (
	"context"
	"errors"
	"time"

	"github.com/mansoorceksport/deviceauth/internal/domain"
	"golang.org/x/sync/errgroup"
)

// deviceLookupConcurrency bounds parallel session lookups per listing
const deviceLookupConcurrency = 8

// AccountService serves the authenticated read side: profile and devices
type AccountService struct {
	accounts domain.AccountRepository
	devices  domain.DeviceRepository
	sessions domain.SessionRepository
	inst     *instrument
	now      func() time.Time
}

// NewAccountService creates a new account service
func NewAccountService(
	accounts domain.AccountRepository,
	devices domain.DeviceRepository,
	sessions domain.SessionRepository,
	timeout time.Duration,
) *AccountService {
	return &AccountService{
		accounts: accounts,
		devices:  devices,
		sessions: sessions,
		inst:     newInstrument(timeout),
		now:      time.Now,
	}
}

// Me returns the public projection of the account
func (s *AccountService) Me(ctx context.Context, accountID string) (*domain.AccountView, error) {
	var view domain.AccountView
	err := s.inst.run(ctx, "me", func(ctx context.Context) error {
		account, err := s.accounts.FindByID(ctx, accountID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewNotFound("Not found.")
			}
			return err
		}
		view = domain.TransformAccount(account)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Devices lists every device of the account with its login state
func (s *AccountService) Devices(ctx context.Context, accountID string) ([]domain.DeviceView, error) {
	var views []domain.DeviceView
	err := s.inst.run(ctx, "devices", func(ctx context.Context) error {
		devices, err := s.devices.FindByAccount(ctx, accountID)
		if err != nil {
			return err
		}

		latest := make([]*domain.Session, len(devices))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(deviceLookupConcurrency)
		for i, d := range devices {
			g.Go(func() error {
				session, err := s.sessions.FindLatest(gctx, d.ID)
				if err != nil {
					if errors.Is(err, domain.ErrNotFound) {
						return nil
					}
					return err
				}
				latest[i] = session
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		now := s.now()
		views = make([]domain.DeviceView, 0, len(devices))
		for i, d := range devices {
			views = append(views, domain.TransformDevice(d, latest[i], now))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}
