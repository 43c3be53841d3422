package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/alexedwards/argon2id"

	"github.com/grantdelgado/unveil-sub008/internal/domain"
	"github.com/grantdelgado/unveil-sub008/internal/repo/postgres"
	"github.com/grantdelgado/unveil-sub008/internal/repo/redisstore"
	"github.com/grantdelgado/unveil-sub008/internal/smsprovider"
	"github.com/grantdelgado/unveil-sub008/pkg/auth"
	"github.com/grantdelgado/unveil-sub008/pkg/config"
	"github.com/grantdelgado/unveil-sub008/pkg/events"
	"github.com/grantdelgado/unveil-sub008/pkg/logger"
)

const maxCodeAttempts = 5

// AuthService signs users in with a one-time SMS code. Codes are stored as
// argon2id hashes; the raw code exists only in the outbound SMS.
type AuthService struct {
	users   postgres.UserRepository
	guests  postgres.GuestRepository
	codes   postgres.AccessCodeRepository
	limiter *redisstore.Limiter
	sender  smsprovider.Sender
	bus     events.Publisher
	cfg     config.AuthConfig
	brand   string
}

func NewAuthService(
	users postgres.UserRepository,
	guests postgres.GuestRepository,
	codes postgres.AccessCodeRepository,
	limiter *redisstore.Limiter,
	sender smsprovider.Sender,
	bus events.Publisher,
	cfg config.AuthConfig,
	brand string,
) *AuthService {
	return &AuthService{
		users:   users,
		guests:  guests,
		codes:   codes,
		limiter: limiter,
		sender:  sender,
		bus:     bus,
		cfg:     cfg,
		brand:   brand,
	}
}

// ErrRateLimited is returned when a phone has requested too many codes.
type RateLimitedError struct{}

func (e *RateLimitedError) Error() string {
	return "too many code requests, try again later"
}

// RequestCode sends a fresh sign-in code to the phone. Sends are rate
// limited per phone; the response never reveals whether the phone belongs
// to a known user.
func (s *AuthService) RequestCode(ctx context.Context, rawPhone string) error {
	phone := domain.NormalizePhone(rawPhone)
	if phone == "" {
		return domain.Invalid("phone", "invalid phone number")
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "otp:"+phone)
		if err != nil {
			logger.WarnContext(ctx, "OTP rate limiter unavailable", "error", err)
		}
		if !allowed {
			return &RateLimitedError{}
		}
	}

	code, err := randomCode()
	if err != nil {
		return err
	}
	hash, err := argon2id.CreateHash(code, argon2id.DefaultParams)
	if err != nil {
		return err
	}

	if err := s.codes.Create(ctx, phone, hash, time.Now().Add(s.cfg.OTPCodeTTL)); err != nil {
		return err
	}

	body := fmt.Sprintf("Your %s sign-in code is %s. It expires in %d minutes.",
		s.brand, code, int(s.cfg.OTPCodeTTL.Minutes()))
	if _, err := s.sender.Send(ctx, phone, body); err != nil {
		return fmt.Errorf("failed to send sign-in code: %w", err)
	}
	return nil
}

// VerifyCode exchanges a valid code for a session token, creating the user
// on first sign-in and linking any unclaimed guest rows that carry the
// phone. Guest rows already claimed by a different account are left alone.
func (s *AuthService) VerifyCode(ctx context.Context, rawPhone, code string) (string, *domain.User, error) {
	phone := domain.NormalizePhone(rawPhone)
	if phone == "" {
		return "", nil, domain.Invalid("phone", "invalid phone number")
	}

	active, err := s.codes.GetActive(ctx, phone)
	if err != nil {
		return "", nil, err
	}
	if active == nil || active.Attempts >= maxCodeAttempts {
		return "", nil, domain.Invalid("code", "invalid or expired code")
	}

	match, err := argon2id.ComparePasswordAndHash(code, active.CodeHash)
	if err != nil {
		return "", nil, err
	}
	if !match {
		if err := s.codes.IncrementAttempts(ctx, active.ID); err != nil {
			logger.WarnContext(ctx, "Failed to count code attempt", "error", err)
		}
		return "", nil, domain.Invalid("code", "invalid or expired code")
	}

	if err := s.codes.Consume(ctx, active.ID); err != nil {
		return "", nil, err
	}

	user, err := s.users.FindOrCreateByPhone(ctx, phone)
	if err != nil {
		return "", nil, err
	}

	s.linkGuests(ctx, phone, user)

	token, err := auth.NewSessionToken(user.ID, user.Phone, s.cfg.JWTSecret, s.cfg.SessionTTL)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// linkGuests auto-claims guest rows matching the phone. A row claimed by a
// different account is a conflict; it is logged and skipped rather than
// failing the sign-in.
func (s *AuthService) linkGuests(ctx context.Context, phone string, user *domain.User) {
	conflict, err := s.guests.FindLinkConflict(ctx, phone, user.ID)
	if err != nil {
		logger.WarnContext(ctx, "Guest link conflict check failed", "error", err)
	} else if conflict {
		logger.WarnContext(ctx, "Guest rows already claimed by another account", "user_id", user.ID)
	}

	linked, err := s.guests.LinkUserByPhone(ctx, phone, user.ID)
	if err != nil {
		logger.WarnContext(ctx, "Guest auto-link failed", "error", err, "user_id", user.ID)
		return
	}
	for _, guestID := range linked {
		if s.bus == nil {
			break
		}
		if err := s.bus.Publish(ctx, events.GuestLinked, events.GuestEvent{
			GuestID:    guestID,
			OccurredAt: time.Now().UTC(),
		}); err != nil {
			logger.ErrorContext(ctx, "Failed to publish guest linked event", "guest_id", guestID, "error", err)
		}
	}
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
