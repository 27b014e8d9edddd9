package service

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mansoorceksport/deviceauth/internal/config"
	"github.com/mansoorceksport/deviceauth/internal/domain"
	"github.com/oklog/ulid/v2"
)

const (
	minPasswordLength = 8

	msgLoginFailed     = "We couldn't log you in with the provided credentials"
	msgPasswordsMatch  = "Your passwords must match."
	msgPasswordLength  = "Passwords must be at least 8 characters."
	msgUsernameTaken   = "This username is taken."
	msgUsernameMissing = "A username is required."
	msgPlatform        = "Platform must be one of web, ios or android."
	msgInvalidToken    = "Invalid token"
	msgTokenExpired    = "Token expired"
	msgLoggedOut       = "Logged out successfully"
	msgNotPermitted    = "Not permitted."
)

// ClientInfo describes the device a request comes from
type ClientInfo struct {
	Identifier string
	Platform   string
	Address    string
	Agent      string
}

// RegisterInput contains the registration form
type RegisterInput struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// LoginInput contains the login form
type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshInput identifies the refresh token being exchanged
type RefreshInput struct {
	Identifier string
	Token      string
	Address    string
	Agent      string
}

// LogoutInput names the device to log out. BoundDevice is the device claim
// of the caller's access token, empty when the token carries none.
type LogoutInput struct {
	AccountID   string
	BoundDevice string
	Identifier  string
}

// AuthResult is returned by register and login
type AuthResult struct {
	Account          domain.AccountView `json:"account"`
	ClientID         string             `json:"clientId"`
	AccessToken      string             `json:"accessToken"`
	RefreshToken     string             `json:"refreshToken"`
	RefreshExpiresAt time.Time          `json:"refreshExpiresAt"`
}

// RefreshResult is returned by refresh. The refresh token is the one that
// was presented; it is echoed so the caller can renew its cookie.
type RefreshResult struct {
	ClientID         string    `json:"clientId"`
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"-"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// AuthService is the session lifecycle engine: register, login, refresh, logout
type AuthService struct {
	accounts domain.AccountRepository
	devices  domain.DeviceRepository
	sessions domain.SessionRepository
	hasher   PasswordHasher
	signer   TokenSigner
	cfg      config.AuthConfig
	inst     *instrument
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new auth service
func NewAuthService(
	accounts domain.AccountRepository,
	devices domain.DeviceRepository,
	sessions domain.SessionRepository,
	hasher PasswordHasher,
	signer TokenSigner,
	cfg config.AuthConfig,
) *AuthService {
	return &AuthService{
		accounts: accounts,
		devices:  devices,
		sessions: sessions,
		hasher:   hasher,
		signer:   signer,
		cfg:      cfg,
		inst:     newInstrument(cfg.OperationTimeout),
		now:      time.Now,
	}
}

// Register creates an account and issues its first credentials
func (s *AuthService) Register(ctx context.Context, in RegisterInput, client ClientInfo) (*AuthResult, error) {
	var result *AuthResult
	err := s.inst.run(ctx, "register", func(ctx context.Context) error {
		if err := validateRegistration(in, client); err != nil {
			return err
		}

		hash, err := s.hasher.Hash(in.Password)
		if err != nil {
			return err
		}

		account := &domain.Account{Username: in.Username, PasswordHash: hash}
		if err := s.accounts.Create(ctx, account); err != nil {
			if errors.Is(err, domain.ErrDuplicateUsername) {
				return domain.NewValidationError(msgUsernameTaken, "username")
			}
			return err
		}

		result, err = s.issueCredentials(ctx, account, client)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Login verifies the password and issues new credentials for the device.
// Unknown usernames and wrong passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, in LoginInput, client ClientInfo) (*AuthResult, error) {
	var result *AuthResult
	err := s.inst.run(ctx, "login", func(ctx context.Context) error {
		account, err := s.accounts.FindByUsername(ctx, in.Username)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// keep the unknown-user path as slow as a wrong password
				s.hasher.Verify(in.Password, s.timingHash())
				return loginFailed()
			}
			return err
		}

		if !s.hasher.Verify(in.Password, account.PasswordHash) {
			return loginFailed()
		}

		result, err = s.issueCredentials(ctx, account, client)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, in RefreshInput) (*RefreshResult, error) {
	var result *RefreshResult
	err := s.inst.run(ctx, "refresh", func(ctx context.Context) error {
		if in.Identifier == "" || in.Token == "" {
			return domain.NewForbidden(msgInvalidToken)
		}

		devices, err := s.devices.FindByIdentifier(ctx, in.Identifier)
		if err != nil {
			return err
		}
		byID := make(map[string]*domain.Device, len(devices))
		ids := make([]string, 0, len(devices))
		for _, d := range devices {
			byID[d.ID] = d
			ids = append(ids, d.ID)
		}

		matches, err := s.sessions.FindByToken(ctx, ids, in.Token)
		if err != nil {
			return err
		}

		for _, session := range matches {
			if session.IsRevoked() {
				continue
			}

			if session.IsExpired(s.now()) {
				// consumes the token: the next attempt finds it revoked
				if err := s.sessions.Revoke(ctx, session, domain.RevokedExpired); err != nil && !errors.Is(err, domain.ErrAlreadyRevoked) {
					return err
				}
				return domain.NewForbidden(msgTokenExpired)
			}

			device, ok := byID[session.DeviceID]
			if !ok {
				return domain.NewForbidden(msgInvalidToken)
			}
			if err := s.devices.AppendObservation(ctx, device, in.Address, in.Agent); err != nil {
				return err
			}

			account, err := s.accounts.FindByID(ctx, session.AccountID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return domain.NewForbidden(msgInvalidToken)
				}
				return err
			}

			accessToken, err := s.signAccess(account, device.Identifier)
			if err != nil {
				return err
			}

			result = &RefreshResult{
				ClientID:         device.Identifier,
				AccessToken:      accessToken,
				RefreshToken:     session.Token,
				RefreshExpiresAt: session.ExpiresAt,
			}
			return nil
		}

		// no match at all, or every match already revoked
		return domain.NewForbidden(msgInvalidToken)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Logout revokes the most recently issued active session on the device.
// Sessions on other devices are untouched. With device binding on, a token
// may only log out the device it was issued to.
func (s *AuthService) Logout(ctx context.Context, in LogoutInput) (string, error) {
	err := s.inst.run(ctx, "logout", func(ctx context.Context) error {
		identifier, err := s.logoutTarget(in)
		if err != nil {
			return err
		}

		device, err := s.devices.Find(ctx, in.AccountID, identifier)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.NewNotFound("Device not found.")
			}
			return err
		}

		active, err := s.sessions.FindActive(ctx, device.ID)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return domain.NewForbidden("This device is not logged in.")
		}

		latest := active[len(active)-1]
		if err := s.sessions.Revoke(ctx, latest, domain.RevokedLogout); err != nil && !errors.Is(err, domain.ErrAlreadyRevoked) {
			return err
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return msgLoggedOut, nil
}

func (s *AuthService) logoutTarget(in LogoutInput) (string, error) {
	if s.cfg.BindDevice && in.BoundDevice != "" {
		if in.Identifier != "" && in.Identifier != in.BoundDevice {
			return "", domain.NewForbidden(msgNotPermitted)
		}
		return in.BoundDevice, nil
	}
	if in.Identifier == "" {
		return "", domain.NewValidationError("A device identifier is required.", "identifier")
	}
	return in.Identifier, nil
}

// issueCredentials finds or creates the device, records the observation,
// mints a refresh session and signs an access token
func (s *AuthService) issueCredentials(ctx context.Context, account *domain.Account, client ClientInfo) (*AuthResult, error) {
	identifier := client.Identifier
	if identifier == "" {
		identifier = ulid.Make().String()
	}

	device, err := s.findOrCreateDevice(ctx, account.ID, identifier, client.Platform)
	if err != nil {
		return nil, err
	}

	if err := s.devices.AppendObservation(ctx, device, client.Address, client.Agent); err != nil {
		return nil, err
	}

	token, err := GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		AccountID: account.ID,
		DeviceID:  device.ID,
		Token:     token,
		ExpiresAt: s.now().UTC().Add(s.cfg.RefreshTokenExpiry()),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	accessToken, err := s.signAccess(account, device.Identifier)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		Account:          domain.TransformAccount(account),
		ClientID:         device.Identifier,
		AccessToken:      accessToken,
		RefreshToken:     session.Token,
		RefreshExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *AuthService) findOrCreateDevice(ctx context.Context, accountID, identifier, platform string) (*domain.Device, error) {
	device, err := s.devices.Find(ctx, accountID, identifier)
	if err == nil {
		return device, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// an existing device keeps its platform; only a new one needs a valid tag
	if !domain.ValidPlatform(platform) {
		return nil, domain.NewValidationError(msgPlatform, "platform")
	}

	device = &domain.Device{
		AccountID:  accountID,
		Identifier: identifier,
		Platform:   platform,
	}
	if err := s.devices.Create(ctx, device); err != nil {
		if errors.Is(err, domain.ErrDuplicateDevice) {
			// a concurrent login created it first
			return s.devices.Find(ctx, accountID, identifier)
		}
		return nil, err
	}
	return device, nil
}

// signAccess embeds the device identifier only when binding is enabled,
// so every token this process signs has the same shape
func (s *AuthService) signAccess(account *domain.Account, identifier string) (string, error) {
	claims := domain.AccessClaims{Account: domain.TransformAccount(account)}
	if s.cfg.BindDevice {
		claims.DeviceID = identifier
	}
	token, err := s.signer.Sign(claims)
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *AuthService) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("timing-equaliser-password")
		if err == nil {
			s.dummyHash = h
		}
	})
	return s.dummyHash
}

func validateRegistration(in RegisterInput, client ClientInfo) error {
	if in.Password != in.ConfirmPassword {
		return domain.NewValidationError(msgPasswordsMatch, "password", "confirmPassword")
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLength {
		return domain.NewValidationError(msgPasswordLength, "password", "confirmPassword")
	}
	if in.Username == "" {
		return domain.NewValidationError(msgUsernameMissing, "username")
	}
	if !domain.ValidPlatform(client.Platform) {
		return domain.NewValidationError(msgPlatform, "platform")
	}
	return nil
}

func loginFailed() error {
	return domain.NewAuthenticationError(msgLoginFailed, "username", "password")
}
