package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/shared"
)

const sessionsTable = "sessions"

// Service wraps authentication and session lifecycle rules.
type Service struct {
	repo     Repository
	cache    SessionCache
	tokens   *Tokens
	recorder *audit.Recorder
	logins   LoginObserver
	ttl      time.Duration
	clock    func() time.Time
	logger   *slog.Logger
}

// LoginObserver is told the outcome of every login attempt.
type LoginObserver interface {
	LoginAttempt(ok bool)
}

// ServiceConfig groups the Service dependencies.
type ServiceConfig struct {
	Repo     Repository
	Cache    SessionCache
	Tokens   *Tokens
	Recorder *audit.Recorder
	Logins   LoginObserver
	TTL      time.Duration
	Clock    func() time.Time
	Logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		repo:     cfg.Repo,
		cache:    cfg.Cache,
		tokens:   cfg.Tokens,
		recorder: cfg.Recorder,
		logins:   cfg.Logins,
		ttl:      cfg.TTL,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

// Authenticate validates username/password credentials and opens a session.
// Unknown users, wrong passwords and non-active accounts all yield
// shared.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password, ip, userAgent string) (*LoginResult, error) {
	res, err := s.authenticate(ctx, strings.TrimSpace(username), password, ip, userAgent)
	if s.logins != nil {
		s.logins.LoginAttempt(err == nil)
	}
	if errors.Is(err, shared.ErrInvalidCredentials) {
		s.logger.Info("login rejected", slog.String("username", strings.TrimSpace(username)), slog.String("ip", ip))
	}
	return res, err
}

func (s *Service) authenticate(ctx context.Context, username, password, ip, userAgent string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, shared.ErrInvalidCredentials
	}
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if user.Status != shared.UserActive {
		return nil, shared.ErrInvalidCredentials
	}

	now := s.now().Truncate(time.Second)
	session := Session{
		SessionID: shared.NewID(),
		UserID:    user.ID,
		Username:  user.Username,
		Status:    user.Status,
		Roles:     append([]shared.RoleName(nil), user.Roles...),
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	actor := session.Principal()
	actor.IP = ip
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertSession(ctx, session); err != nil {
			return err
		}
		_, err := s.recorder.Record(ctx, tx, audit.Entry{
			Table:    sessionsTable,
			Action:   audit.ActionInsert,
			RecordID: session.SessionID,
			New:      session,
			Actor:    actor,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.Issue(session)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Token:   token,
		Session: session,
		User: Me{
			UserID:   user.ID,
			Username: user.Username,
			Email:    user.Email,
			Status:   user.Status,
			Roles:    session.Roles,
		},
	}, nil
}

// Resolve maps a session id to its principal. Revoked or unknown sessions
// yield shared.ErrSessionNotFound; sessions at or past expires_at yield
// shared.ErrSessionExpired.
func (s *Service) Resolve(ctx context.Context, sessionID string) (shared.Principal, error) {
	session, err := s.lookup(ctx, sessionID)
	if err != nil {
		return shared.Principal{}, err
	}
	if session.ExpiredAt(s.now()) {
		return shared.Principal{}, shared.ErrSessionExpired
	}
	return session.Principal(), nil
}

// ResolveToken verifies a bearer token and resolves the session it is bound to.
func (s *Service) ResolveToken(ctx context.Context, token string) (shared.Principal, error) {
	sessionID, userID, err := s.tokens.Parse(token)
	if err != nil {
		return shared.Principal{}, err
	}
	p, err := s.Resolve(ctx, sessionID)
	if err != nil {
		return shared.Principal{}, err
	}
	if !shared.SameID(p.UserID, userID) {
		return shared.Principal{}, shared.ErrSessionNotFound
	}
	return p, nil
}

func (s *Service) lookup(ctx context.Context, sessionID string) (*Session, error) {
	id, err := shared.NormalizeID(sessionID)
	if err != nil {
		return nil, shared.ErrSessionNotFound
	}
	if s.cache != nil {
		cached, revoked, err := s.cache.Get(ctx, id)
		switch {
		case err != nil:
			s.logger.Warn("session cache read", slog.Any("error", err))
		case revoked:
			return nil, shared.ErrSessionNotFound
		case cached != nil:
			return cached, nil
		}
	}
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrSessionNotFound
		}
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Fill(ctx, *session, session.ExpiresAt.Sub(s.now())); err != nil {
			s.logger.Warn("session cache fill", slog.Any("error", err))
		}
	}
	return session, nil
}

// Revoke deletes a session. Requesters may always revoke their own sessions;
// revoking another user's session requires session.revoke_any.
func (s *Service) Revoke(ctx context.Context, sessionID string, requester shared.Principal) error {
	id, err := shared.NormalizeID(sessionID)
	if err != nil {
		return shared.ErrSessionNotFound
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.LockSession(ctx, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return shared.ErrSessionNotFound
			}
			return err
		}
		if !requester.Is(session.UserID) && !rbac.Allowed(requester.Roles, rbac.OpSessionRevokeAny) {
			return shared.Forbidden("cannot revoke another user's session")
		}
		if err := tx.DeleteSession(ctx, id); err != nil {
			return err
		}
		if _, err := s.recorder.Record(ctx, tx, audit.Entry{
			Table:    sessionsTable,
			Action:   audit.ActionDelete,
			RecordID: id,
			Old:      session,
			Actor:    requester,
		}); err != nil {
			return err
		}
		if s.cache != nil {
			if err := s.cache.Revoke(ctx, id, session.ExpiresAt.Sub(s.now())); err != nil {
				return err
			}
		}
		return nil
	})
}

// Logout revokes the requester's current session.
func (s *Service) Logout(ctx context.Context, requester shared.Principal) error {
	return s.Revoke(ctx, requester.SessionID, requester)
}

// ListActive returns non-expired sessions visible to the requester, newest
// first. Holders of session.list_all see every user's sessions.
func (s *Service) ListActive(ctx context.Context, requester shared.Principal) ([]SessionView, error) {
	now := s.now()
	userID := requester.UserID
	if rbac.Allowed(requester.Roles, rbac.OpSessionListAll) {
		userID = ""
	}
	sessions, err := s.repo.ListSessions(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	out := make([]SessionView, 0, len(sessions))
	for _, sess := range sessions {
		if sess.ExpiredAt(now) {
			continue
		}
		out = append(out, SessionView{
			Session:            sess,
			MinutesUntilExpiry: int(sess.ExpiresAt.Sub(now) / time.Minute),
		})
	}
	return out, nil
}

// Me returns the current account details of the requester.
func (s *Service) Me(ctx context.Context, requester shared.Principal) (*Me, error) {
	user, err := s.repo.FindUser(ctx, requester.UserID)
	if err != nil {
		return nil, err
	}
	return &Me{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Status:   user.Status,
		Roles:    user.Roles,
	}, nil
}

// SweepExpired deletes sessions whose expiry has passed. Expired sessions
// are already rejected by Resolve; this only reclaims storage.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}
