package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/tally/internal/auth/domain"
	"github.com/aussiebroadwan/tally/internal/auth/store"
	"github.com/aussiebroadwan/tally/pkg/autherr"
	"github.com/aussiebroadwan/tally/pkg/cryptox"
	"github.com/aussiebroadwan/tally/pkg/idx"
	"github.com/aussiebroadwan/tally/pkg/jwtx"
	"github.com/aussiebroadwan/tally/pkg/otpx"
	"github.com/aussiebroadwan/tally/pkg/slogx"
)

const (
	DefaultChallengeTTL     = 5 * time.Minute
	DefaultLockoutThreshold = 5
	DefaultLockoutWindow    = 15 * time.Minute
	DefaultLockoutDuration  = 15 * time.Minute
)

type LoginConfig struct {
	ChallengeTTL time.Duration

	// LockoutThreshold failed passwords within LockoutWindow lock the
	// credential for LockoutDuration.
	LockoutThreshold int
	LockoutWindow    time.Duration
	LockoutDuration  time.Duration

	Now func() time.Time
}

func (c LoginConfig) withDefaults() LoginConfig {
	if c.ChallengeTTL <= 0 {
		c.ChallengeTTL = DefaultChallengeTTL
	}
	if c.LockoutThreshold <= 0 {
		c.LockoutThreshold = DefaultLockoutThreshold
	}
	if c.LockoutWindow <= 0 {
		c.LockoutWindow = DefaultLockoutWindow
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = DefaultLockoutDuration
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// LoginService drives password login, the MFA challenge step and the token
// lifecycle that follows:
//
//	credentials_pending -> password_verified -> mfa_pending -> authenticated
//	                                         \-> authenticated
//
// with backup_code_pending reachable from mfa_pending.
type LoginService struct {
	Store   store.Store
	Cache   store.Cache
	Hasher  *cryptox.Hasher
	TOTP    *otpx.Engine
	Tokens  *jwtx.TokenService
	Secrets *cryptox.SecretBox

	cfg LoginConfig

	// dummyHash is verified against when the email is unknown or locked so
	// those paths cost the same as a wrong password.
	dummyHash func() (string, error)
}

func NewLoginService(
	st store.Store,
	cache store.Cache,
	hasher *cryptox.Hasher,
	totp *otpx.Engine,
	tokens *jwtx.TokenService,
	secrets *cryptox.SecretBox,
	cfg LoginConfig,
) *LoginService {
	return &LoginService{
		Store:   st,
		Cache:   cache,
		Hasher:  hasher,
		TOTP:    totp,
		Tokens:  tokens,
		Secrets: secrets,
		cfg:     cfg.withDefaults(),
		dummyHash: sync.OnceValues(func() (string, error) {
			b := make([]byte, 16)
			if _, err := rand.Read(b); err != nil {
				return "", err
			}
			return hasher.Hash(hex.EncodeToString(b))
		}),
	}
}

// Login checks email and password. With MFA enabled the result carries a
// challenge id and no tokens.
func (s *LoginService) Login(ctx context.Context, email, password string) (domain.LoginResult, error) {
	l := slogx.FromContext(ctx)
	now := s.cfg.Now()
	pending := domain.LoginResult{State: domain.LoginStateCredentialsPending}

	email = NormalizeEmail(email)
	c, err := s.Store.Credentials().GetCredentialByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return pending, fmt.Errorf("get credential: %w", err)
		}
		s.burnVerify(password)
		s.recordFailure(ctx, email, nil)
		l.Info("login failed", "reason", "unknown_email")
		return pending, ErrInvalidCredentials
	}

	if c.IsLocked(now, s.cfg.LockoutDuration) {
		s.burnVerify(password)
		l.Warn("login attempt on locked credential", "user_id", c.UserID)
		return pending, ErrInvalidCredentials
	}

	ok, err := s.Hasher.Verify(c.PasswordHash, password)
	if err != nil {
		return pending, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.recordFailure(ctx, email, &c)
		l.Info("login failed", "reason", "wrong_password", "user_id", c.UserID)
		return pending, ErrInvalidCredentials
	}

	// password_verified
	s.clearFailures(ctx, email, c)
	s.rehashIfNeeded(ctx, c, password)

	if c.MFAEnabled() {
		return s.startChallenge(ctx, c, now)
	}

	pair, err := s.issue(c, "")
	if err != nil {
		return pending, err
	}
	l.Info("login succeeded", "user_id", c.UserID, "session_id", pair.SessionID)
	return domain.LoginResult{
		State:  domain.LoginStateAuthenticated,
		UserID: c.UserID,
		Tokens: &pair,
	}, nil
}

func (s *LoginService) startChallenge(ctx context.Context, c domain.Credential, now time.Time) (domain.LoginResult, error) {
	methods := []domain.MFAMethod{domain.MFAMethodTOTP}
	remaining, err := s.Store.BackupCodes().CountUnusedBackupCodes(ctx, c.UserID)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("count backup codes: %w", err)
	}
	if remaining > 0 {
		methods = append(methods, domain.MFAMethodBackupCode)
	}

	ch := domain.MFAChallenge{
		ID:        idx.NewAt(now).String(),
		UserID:    c.UserID,
		SessionID: idx.NewAt(now).String(),
		Methods:   methods,
		ExpiresAt: now.Add(s.cfg.ChallengeTTL),
	}
	if err := s.Cache.Challenges().CreateChallenge(ctx, ch); err != nil {
		return domain.LoginResult{}, fmt.Errorf("create MFA challenge: %w", err)
	}

	slogx.FromContext(ctx).Info("MFA challenge issued", "user_id", c.UserID, "challenge_id", ch.ID)
	return domain.LoginResult{
		State:       domain.LoginStateMFAPending,
		UserID:      c.UserID,
		ChallengeID: ch.ID,
		Methods:     methods,
	}, nil
}

// VerifyMFA answers a pending challenge. Unknown or expired challenges fail
// with autherr.ErrExpired. A wrong code fails with ErrInvalidCredentials
// until the attempt limit, where the challenge is destroyed and
// autherr.ErrMFAMaxAttempts is returned.
//
// A backup code is spent only when its challenge is consumed in the same
// step; a challenge that expires or is lost to a concurrent answer leaves
// the code unused.
func (s *LoginService) VerifyMFA(
	ctx context.Context,
	challengeID string,
	method domain.MFAMethod,
	code string,
) (domain.LoginResult, error) {
	const op = "service.VerifyMFA"
	l := slogx.FromContext(ctx)

	pending := domain.LoginResult{State: domain.LoginStateMFAPending, ChallengeID: challengeID}
	if method == domain.MFAMethodBackupCode {
		pending.State = domain.LoginStateBackupCodePending
	}

	ch, err := s.Cache.Challenges().GetChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return restart(), autherr.New(autherr.KindExpired, op, "challenge expired or unknown")
		}
		return pending, fmt.Errorf("get MFA challenge: %w", err)
	}
	pending.UserID = ch.UserID
	pending.Methods = ch.Methods

	if !ch.Allows(method) {
		return pending, ErrMethodNotAllowed
	}

	c, err := s.Store.Credentials().GetCredentialByID(ctx, ch.UserID)
	if err != nil {
		return pending, fmt.Errorf("get credential: %w", err)
	}

	ok, consumed, err := s.checkSecondFactor(ctx, c, challengeID, method, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return restart(), autherr.New(autherr.KindExpired, op, "challenge expired or already used")
		}
		return pending, err
	}
	if !ok {
		attempts, exhausted, err := s.Cache.Challenges().RecordFailure(ctx, challengeID, domain.MaxMFAAttempts)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return restart(), autherr.New(autherr.KindExpired, op, "challenge expired or unknown")
			}
			return pending, fmt.Errorf("record MFA failure: %w", err)
		}
		l.Warn("MFA verification failed",
			slog.String("user_id", ch.UserID),
			slog.String("method", string(method)),
			slog.Int("attempts", attempts),
		)
		if exhausted {
			return restart(), autherr.New(autherr.KindMFAMaxAttempts, op, "too many failed attempts")
		}
		return pending, ErrInvalidCredentials
	}

	// Only one caller can consume the challenge; a concurrent success or
	// expiry between the read above and here loses.
	if !consumed {
		if _, err := s.Cache.Challenges().ConsumeChallenge(ctx, challengeID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return restart(), autherr.New(autherr.KindExpired, op, "challenge expired or already used")
			}
			return pending, fmt.Errorf("consume MFA challenge: %w", err)
		}
	}

	pair, err := s.issue(c, ch.SessionID)
	if err != nil {
		return pending, err
	}
	l.Info("login succeeded", "user_id", c.UserID, "session_id", pair.SessionID, "method", string(method))
	return domain.LoginResult{
		State:  domain.LoginStateAuthenticated,
		UserID: c.UserID,
		Tokens: &pair,
	}, nil
}

// checkSecondFactor reports whether code answers the challenge. consumed is
// true when the challenge was already consumed as part of the check.
//
// A backup code is only marked used once the challenge it answers has been
// consumed, so a challenge lost to expiry or a concurrent login never burns
// the code. A challenge that is gone yields store.ErrNotFound.
func (s *LoginService) checkSecondFactor(
	ctx context.Context,
	c domain.Credential,
	challengeID string,
	method domain.MFAMethod,
	code string,
) (ok, consumed bool, err error) {
	if !c.MFAEnabled() {
		return false, false, nil
	}

	switch method {
	case domain.MFAMethodTOTP:
		secret, err := openSecret(s.Secrets, c.MFASecret)
		if err != nil {
			return false, false, err
		}
		return s.TOTP.VerifyToken(secret, code), false, nil

	case domain.MFAMethodBackupCode:
		if !otpx.LooksLikeBackupCode(code) {
			return false, false, nil
		}

		var challengeErr error
		used, err := s.Store.BackupCodes().ConsumeBackupCode(ctx, c.UserID, func(hash string) bool {
			if consumed || challengeErr != nil || !s.TOTP.VerifyBackupCode(hash, code) {
				return false
			}
			_, challengeErr = s.Cache.Challenges().ConsumeChallenge(ctx, challengeID)
			consumed = challengeErr == nil
			return consumed
		})
		switch {
		case err != nil:
			return false, consumed, fmt.Errorf("consume backup code: %w", err)
		case challengeErr != nil:
			return false, false, fmt.Errorf("consume MFA challenge: %w", challengeErr)
		case consumed && !used:
			// The code was spent by a concurrent login after this challenge
			// was consumed; the challenge cannot be retried.
			return false, true, store.ErrNotFound
		}
		return used, consumed, nil

	default:
		return false, false, nil
	}
}

// Refresh rotates a refresh token. The presented token is revoked before the
// new pair is minted, and a second presentation of the same token fails.
// Identity claims are reloaded from the credential store.
func (s *LoginService) Refresh(ctx context.Context, refreshToken string) (jwtx.TokenPair, error) {
	const op = "service.Refresh"

	claims, err := s.Tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return jwtx.TokenPair{}, err
	}

	hash := s.Tokens.TokenHash(refreshToken)
	revoked, err := s.Store.RevokedTokens().IsTokenRevoked(ctx, hash)
	if err != nil {
		return jwtx.TokenPair{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		slogx.FromContext(ctx).Warn("revoked refresh token presented",
			"user_id", claims.UserID, "session_id", claims.SessionID)
		return jwtx.TokenPair{}, autherr.New(autherr.KindInvalidToken, op, "token revoked")
	}

	c, err := s.Store.Credentials().GetCredentialByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return jwtx.TokenPair{}, autherr.New(autherr.KindInvalidToken, op, "subject no longer exists")
		}
		return jwtx.TokenPair{}, fmt.Errorf("get credential: %w", err)
	}
	if c.IsLocked(s.cfg.Now(), s.cfg.LockoutDuration) {
		return jwtx.TokenPair{}, autherr.New(autherr.KindInvalidToken, op, "credential locked")
	}

	fresh, err := s.Store.RevokedTokens().RevokeToken(ctx, hash, claims.Expiry())
	if err != nil {
		return jwtx.TokenPair{}, fmt.Errorf("revoke refresh token: %w", err)
	}
	if !fresh {
		return jwtx.TokenPair{}, autherr.New(autherr.KindInvalidToken, op, "token revoked")
	}

	pair, err := s.Tokens.RefreshTokens(refreshToken, identityOf(c, claims.SessionID))
	if err != nil {
		return jwtx.TokenPair{}, err
	}

	slogx.FromContext(ctx).Info("tokens refreshed", "user_id", c.UserID, "session_id", pair.SessionID)
	return pair, nil
}

// Logout revokes the access token and, when given, the refresh token of the
// same user. Already expired tokens need no revocation and are skipped.
func (s *LoginService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	const op = "service.Logout"

	access, err := s.Tokens.VerifyAccessToken(accessToken)
	switch {
	case errors.Is(err, autherr.ErrExpired):
		access = nil
	case err != nil:
		return err
	}

	var refresh *jwtx.Claims
	if refreshToken != "" {
		refresh, err = s.Tokens.VerifyRefreshToken(refreshToken)
		switch {
		case errors.Is(err, autherr.ErrExpired):
			refresh = nil
		case err != nil:
			return err
		}
	}
	if access != nil && refresh != nil && access.UserID != refresh.UserID {
		return autherr.New(autherr.KindInvalidToken, op, "tokens belong to different users")
	}

	revoke := func(token string, claims *jwtx.Claims) error {
		if claims == nil {
			return nil
		}
		if _, err := s.Store.RevokedTokens().RevokeToken(ctx, s.Tokens.TokenHash(token), claims.Expiry()); err != nil {
			return fmt.Errorf("revoke %s token: %w", claims.Type, err)
		}
		return nil
	}
	if err := revoke(accessToken, access); err != nil {
		return err
	}
	if err := revoke(refreshToken, refresh); err != nil {
		return err
	}

	if access != nil {
		slogx.FromContext(ctx).Info("logged out", "user_id", access.UserID, "session_id", access.SessionID)
	}
	return nil
}

// Authenticate verifies an access token and checks it has not been revoked.
func (s *LoginService) Authenticate(ctx context.Context, accessToken string) (*jwtx.Claims, error) {
	claims, err := s.Tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, err
	}

	revoked, err := s.Store.RevokedTokens().IsTokenRevoked(ctx, s.Tokens.TokenHash(accessToken))
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, autherr.New(autherr.KindInvalidToken, "service.Authenticate", "token revoked")
	}
	return claims, nil
}

func (s *LoginService) issue(c domain.Credential, sessionID string) (jwtx.TokenPair, error) {
	pair, err := s.Tokens.GenerateTokenPair(identityOf(c, sessionID))
	if err != nil {
		return jwtx.TokenPair{}, fmt.Errorf("issue tokens: %w", err)
	}
	return pair, nil
}

// burnVerify spends the same hashing work as a real verification.
func (s *LoginService) burnVerify(password string) {
	hash, err := s.dummyHash()
	if err != nil {
		return
	}
	_, _ = s.Hasher.Verify(hash, password)
}

// recordFailure bumps the failure counter for email and locks c once the
// threshold is reached. Cache errors are logged; the login still fails.
func (s *LoginService) recordFailure(ctx context.Context, email string, c *domain.Credential) {
	l := slogx.FromContext(ctx)

	count, err := s.Cache.LoginAttempts().RecordFailedLogin(ctx, email, s.cfg.LockoutWindow)
	if err != nil {
		l.Error("failed to record login failure", "error", err)
		return
	}
	if c == nil || count < int64(s.cfg.LockoutThreshold) {
		return
	}

	if err := s.Store.Credentials().LockCredential(ctx, c.UserID, s.cfg.Now()); err != nil {
		l.Error("failed to lock credential", "error", err, "user_id", c.UserID)
		return
	}
	if err := s.Cache.LoginAttempts().ResetFailedLogins(ctx, email); err != nil {
		l.Error("failed to reset login failures", "error", err)
	}
	l.Warn("credential locked", "user_id", c.UserID, "failures", count)
}

func (s *LoginService) clearFailures(ctx context.Context, email string, c domain.Credential) {
	l := slogx.FromContext(ctx)
	if err := s.Cache.LoginAttempts().ResetFailedLogins(ctx, email); err != nil {
		l.Error("failed to reset login failures", "error", err)
	}
	if c.LockedAt != nil {
		if err := s.Store.Credentials().UnlockCredential(ctx, c.UserID); err != nil {
			l.Error("failed to unlock credential", "error", err, "user_id", c.UserID)
		}
	}
}

// rehashIfNeeded upgrades a hash made under weaker parameters. Failure only
// means the upgrade is retried on the next login.
func (s *LoginService) rehashIfNeeded(ctx context.Context, c domain.Credential, password string) {
	l := slogx.FromContext(ctx)

	stale, err := s.Hasher.NeedsRehash(c.PasswordHash)
	if err != nil || !stale {
		return
	}
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		l.Error("rehash failed", "error", err, "user_id", c.UserID)
		return
	}
	if err := s.Store.Credentials().UpdatePasswordHash(ctx, c.UserID, hash); err != nil {
		l.Error("failed to store rehashed password", "error", err, "user_id", c.UserID)
		return
	}
	l.Info("password rehashed", "user_id", c.UserID)
}

func identityOf(c domain.Credential, sessionID string) jwtx.Identity {
	return jwtx.Identity{
		UserID:         c.UserID,
		Email:          c.Email,
		Roles:          c.Roles,
		OrganizationID: c.OrganizationID,
		SessionID:      sessionID,
	}
}

func restart() domain.LoginResult {
	return domain.LoginResult{State: domain.LoginStateCredentialsPending}
}
