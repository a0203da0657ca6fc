package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidOTP         = errors.New("invalid otp")
	ErrOTPExpired         = errors.New("otp expired")
	ErrWeakPassword       = errors.New("password does not meet complexity requirements")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrUserNotFound       = errors.New("user not found")
)

const (
	sessionStagePending = "pending_2fa"
	sessionStageActive  = "active"
)

type Service struct {
	db         *sql.DB
	sessionTTL time.Duration
	otpTTL     time.Duration
	resetTTL   time.Duration
	bcryptCost int
	mailer     Mailer
	baseURL    string
}

type ServiceConfig struct {
	SessionTTL time.Duration
	OTPTTL     time.Duration
	ResetTTL   time.Duration
	BcryptCost int
	Mailer     Mailer
	BaseURL    string
}

type User struct {
	ID               int64      `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	Role             string     `json:"role"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	CreatedAt        time.Time  `json:"created_at"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

// LoginResult reports where the credential check landed. When the account
// has 2FA enabled the session token refers to a pending session that only
// VerifyOTP can promote.
type LoginResult struct {
	User         *User
	SessionToken string
	ExpiresAt    time.Time
	Pending2FA   bool
	RedirectTo   string
}

type LoginAttempt struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	IPAddress string    `json:"ip_address"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"created_at"`
}

func NewService(db *sql.DB, cfg ServiceConfig) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 5 * time.Minute
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = 30 * time.Minute
	}
	if cfg.BcryptCost <= 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		db:         db,
		sessionTTL: cfg.SessionTTL,
		otpTTL:     cfg.OTPTTL,
		resetTTL:   cfg.ResetTTL,
		bcryptCost: cfg.BcryptCost,
		mailer:     cfg.Mailer,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// isRegisterableRole limits self-registration. Admin accounts are
// provisioned out of band, never through the public register endpoint.
func isRegisterableRole(role string) bool {
	return role == "student" || role == "instructor"
}

// ValidatePassword enforces the account password policy: at least eight
// characters with an uppercase letter, a digit, and a symbol.
func ValidatePassword(pw string) error {
	if len(pw) < 8 {
		return ErrWeakPassword
	}
	var hasUpper, hasDigit, hasSymbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r):
			hasSymbol = true
		}
	}
	if !hasUpper || !hasDigit || !hasSymbol {
		return ErrWeakPassword
	}
	return nil
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	role := strings.ToLower(strings.TrimSpace(in.Role))

	if username == "" {
		return nil, errors.New("username is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.New("invalid email")
	}
	if !isRegisterableRole(role) {
		return nil, errors.New("role must be student or instructor")
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	var usernameExists, emailExists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT
			EXISTS(SELECT 1 FROM users WHERE username = $1),
			EXISTS(SELECT 1 FROM users WHERE email = $2)
	`, username, email).Scan(&usernameExists, &emailExists)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if usernameExists {
		return nil, ErrUsernameTaken
	}
	if emailExists {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{Username: username, Email: email, Role: role}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, email, password_hash, role, two_factor_enabled, created_at)
		VALUES ($1, $2, $3, $4, FALSE, now())
		RETURNING id, created_at
	`, username, email, string(hash), role).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Login verifies credentials and opens a session. Every call records a
// login attempt row for the analytics surface; failures to write it are
// logged and never block the login itself.
func (s *Service) Login(ctx context.Context, username, password, ipAddress, userAgent string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		s.recordAttempt(ctx, username, ipAddress, false)
		return nil, ErrInvalidCredentials
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, role, two_factor_enabled, password_hash, created_at, last_login_at
		FROM users
		WHERE username = $1
		LIMIT 1
	`, username)

	var u User
	var passwordHash string
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.TwoFactorEnabled, &passwordHash, &u.CreatedAt, &lastLogin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.recordAttempt(ctx, username, ipAddress, false)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		s.recordAttempt(ctx, username, ipAddress, false)
		return nil, ErrInvalidCredentials
	}

	s.recordAttempt(ctx, username, ipAddress, true)

	if u.TwoFactorEnabled {
		code, err := generateOTPCode(6)
		if err != nil {
			return nil, fmt.Errorf("generate otp: %w", err)
		}
		codeHash, err := bcrypt.GenerateFromPassword([]byte(code), s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash otp: %w", err)
		}
		expiresAt := time.Now().Add(s.otpTTL)
		if _, err := s.db.ExecContext(ctx, `
			UPDATE users
			SET otp_code_hash = $2,
				otp_expires_at = $3
			WHERE id = $1
		`, u.ID, string(codeHash), expiresAt); err != nil {
			return nil, fmt.Errorf("store otp: %w", err)
		}

		token, sessionExpiry, err := s.createSession(ctx, u.ID, sessionStagePending, ipAddress, userAgent)
		if err != nil {
			return nil, err
		}

		if s.mailer != nil {
			if err := s.mailer.SendOTP(ctx, u.Email, code); err != nil {
				log.Printf("smtp otp send failed email=%s err=%v", u.Email, err)
				fmt.Printf("[DEV-OTP-FALLBACK] email=%s code=%s\n", u.Email, code)
			}
		} else {
			fmt.Printf("[DEV-OTP] email=%s code=%s\n", u.Email, code)
		}

		return &LoginResult{
			User:         &u,
			SessionToken: token,
			ExpiresAt:    sessionExpiry,
			Pending2FA:   true,
			RedirectTo:   "/auth/verify-otp",
		}, nil
	}

	token, expiresAt, err := s.createSession(ctx, u.ID, sessionStageActive, ipAddress, userAgent)
	if err != nil {
		return nil, err
	}
	s.touchLastLogin(ctx, u.ID)

	return &LoginResult{
		User:         &u,
		SessionToken: token,
		ExpiresAt:    expiresAt,
		RedirectTo:   HomePathForRole(u.Role),
	}, nil
}

// HomePathForRole is the post-login landing page per role.
func HomePathForRole(role string) string {
	switch role {
	case "student":
		return "/student/dashboard"
	case "admin":
		return "/analytics/login-attempts"
	default:
		return "/exams"
	}
}

// VerifyOTP promotes a pending session to active when the code matches.
// An expired or missing code invalidates the pending session entirely so
// the user has to log in again; a plain mismatch leaves it open for
// another try.
func (s *Service) VerifyOTP(ctx context.Context, sessionToken, code string) (*LoginResult, error) {
	code = strings.TrimSpace(code)
	if strings.TrimSpace(sessionToken) == "" {
		return nil, ErrUnauthorized
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT s.id, u.id, u.username, u.email, u.role, u.two_factor_enabled, u.created_at,
		       u.otp_code_hash, u.otp_expires_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1
		  AND s.stage = 'pending_2fa'
		  AND s.revoked_at IS NULL
		  AND s.expires_at > now()
		LIMIT 1
		FOR UPDATE OF s
	`, hashToken(sessionToken))

	var sessionID int64
	var u User
	var otpHash sql.NullString
	var otpExpires sql.NullTime
	if err := row.Scan(&sessionID, &u.ID, &u.Username, &u.Email, &u.Role, &u.TwoFactorEnabled, &u.CreatedAt, &otpHash, &otpExpires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("load pending session: %w", err)
	}

	if !otpHash.Valid || !otpExpires.Valid || time.Now().After(otpExpires.Time) {
		_, _ = tx.ExecContext(ctx, `
			UPDATE users SET otp_code_hash = NULL, otp_expires_at = NULL WHERE id = $1
		`, u.ID)
		_, _ = tx.ExecContext(ctx, `
			UPDATE sessions SET revoked_at = now() WHERE id = $1
		`, sessionID)
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit expired otp: %w", err)
		}
		return nil, ErrOTPExpired
	}

	if code == "" || bcrypt.CompareHashAndPassword([]byte(otpHash.String), []byte(code)) != nil {
		return nil, ErrInvalidOTP
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET otp_code_hash = NULL, otp_expires_at = NULL, last_login_at = now() WHERE id = $1
	`, u.ID); err != nil {
		return nil, fmt.Errorf("clear otp: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET stage = 'active' WHERE id = $1
	`, sessionID); err != nil {
		return nil, fmt.Errorf("promote session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit otp verify: %w", err)
	}

	return &LoginResult{
		User:         &u,
		SessionToken: sessionToken,
		RedirectTo:   HomePathForRole(u.Role),
	}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET revoked_at = now()
		WHERE token_hash = $1
		  AND revoked_at IS NULL
	`, hashToken(token))
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// GetSessionUser resolves a cookie token into a user. Pending 2FA sessions
// do not count as logged in here.
func (s *Service) GetSessionUser(ctx context.Context, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrUnauthorized
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.email, u.role, u.two_factor_enabled, u.created_at, u.last_login_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1
		  AND s.stage = 'active'
		  AND s.revoked_at IS NULL
		  AND s.expires_at > now()
		LIMIT 1
	`, hashToken(token))

	var u User
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.TwoFactorEnabled, &u.CreatedAt, &lastLogin); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("query session user: %w", err)
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	return &u, nil
}

// SetTwoFactor flips 2FA on an account. Disabling clears any pending code.
func (s *Service) SetTwoFactor(ctx context.Context, userID int64, enabled bool) error {
	var res sql.Result
	var err error
	if enabled {
		res, err = s.db.ExecContext(ctx, `
			UPDATE users SET two_factor_enabled = TRUE WHERE id = $1
		`, userID)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE users
			SET two_factor_enabled = FALSE,
				otp_code_hash = NULL,
				otp_expires_at = NULL
			WHERE id = $1
		`, userID)
	}
	if err != nil {
		return fmt.Errorf("set two factor: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RequestPasswordReset issues a single-use token when the email belongs to
// an account. The outcome is identical either way so the endpoint cannot
// be used to probe which emails exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil
	}

	var userID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM users WHERE email = $1 LIMIT 1
	`, email).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("query reset user: %w", err)
	}

	token, err := generateToken(32)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	expiresAt := time.Now().Add(s.resetTTL)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO password_reset_tokens (user_id, token_hash, expires_at, used, created_at)
		VALUES ($1, $2, $3, FALSE, now())
	`, userID, hashToken(token), expiresAt)
	if err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}

	resetURL := s.baseURL + "/reset-password/" + token
	if s.mailer != nil {
		if err := s.mailer.SendPasswordReset(ctx, email, resetURL); err != nil {
			log.Printf("smtp reset send failed email=%s err=%v", email, err)
			fmt.Printf("[DEV-RESET-FALLBACK] email=%s url=%s\n", email, resetURL)
		}
	} else {
		fmt.Printf("[DEV-RESET] email=%s url=%s\n", email, resetURL)
	}
	return nil
}

// ResetPassword consumes a reset token and sets the new password. Tokens
// are one shot: a used or expired token fails with the same error.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" {
		return ErrInvalidResetToken
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, user_id
		FROM password_reset_tokens
		WHERE token_hash = $1
		  AND used = FALSE
		  AND expires_at > now()
		LIMIT 1
		FOR UPDATE
	`, hashToken(token))

	var tokenID, userID int64
	if err := row.Scan(&tokenID, &userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("load reset token: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET password_hash = $2 WHERE id = $1
	`, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE password_reset_tokens SET used = TRUE WHERE id = $1
	`, tokenID); err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

func (s *Service) createSession(ctx context.Context, userID int64, stage, ipAddress, userAgent string) (string, time.Time, error) {
	token, err := generateToken(32)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate session token: %w", err)
	}
	expiresAt := time.Now().Add(s.sessionTTL)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, token_hash, stage, expires_at, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`, userID, hashToken(token), stage, expiresAt, nullableString(ipAddress), nullableString(userAgent))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("insert session: %w", err)
	}
	return token, expiresAt, nil
}

func (s *Service) recordAttempt(ctx context.Context, username, ipAddress string, success bool) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO login_attempts (username, ip_address, success, created_at)
		VALUES ($1, $2, $3, now())
	`, strings.TrimSpace(username), strings.TrimSpace(ipAddress), success)
	if err != nil {
		log.Printf("record login attempt failed username=%s err=%v", username, err)
	}
}

func (s *Service) touchLastLogin(ctx context.Context, userID int64) {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_login_at = now() WHERE id = $1
	`, userID); err != nil {
		log.Printf("touch last login failed user=%d err=%v", userID, err)
	}
}

func nullableString(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func generateOTPCode(digits int) (string, error) {
	if digits <= 0 {
		digits = 6
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
