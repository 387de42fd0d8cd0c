// Package auth gates authentication: password verification against a
// policy, TOTP-based MFA, and minting a session+token pair on success.
// It has no event-sourced aggregate of its own — it is a thin
// composition over internal/readmodel (user lookup) and
// internal/session (session + token issuance).
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"iamcore/internal/readmodel"
	"iamcore/internal/session"
	"iamcore/pkg/idgen"
)

// InvalidCredentialsError is returned for an unknown username or a
// password that fails to verify against the stored hash.
type InvalidCredentialsError struct{}

func (e *InvalidCredentialsError) Error() string { return "auth: invalid credentials" }

// MfaRequiredError signals a password-correct login that still needs a
// second factor. MFAToken is a freshly minted id that Authenticate does
// not store or check afterwards; the follow-up call repeats the username
// and password together with MFACode.
type MfaRequiredError struct {
	MFAToken string
}

func (e *MfaRequiredError) Error() string { return "auth: mfa required" }

// PasswordPolicyError reports every policy rule a candidate password
// violates.
type PasswordPolicyError struct {
	Violations []string
}

func (e *PasswordPolicyError) Error() string {
	return fmt.Sprintf("auth: password policy violated: %s", strings.Join(e.Violations, "; "))
}

// PasswordPolicy is the configurable password strength policy (§6.5).
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSymbol    bool
	MaxAge           time.Duration
	PreventReuse     int
}

// DefaultPasswordPolicy is a conservative baseline used when callers
// supply no policy.
var DefaultPasswordPolicy = PasswordPolicy{
	MinLength:        8,
	RequireUppercase: true,
	RequireLowercase: true,
	RequireNumber:    true,
	RequireSymbol:    false,
}

// ValidatePassword checks password against policy and returns the list
// of violated rules (empty if password satisfies every rule).
func ValidatePassword(password string, policy PasswordPolicy) []string {
	var violations []string
	if len(password) < policy.MinLength {
		violations = append(violations, fmt.Sprintf("must be at least %d characters", policy.MinLength))
	}
	var hasUpper, hasLower, hasNumber, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsNumber(r):
			hasNumber = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	if policy.RequireUppercase && !hasUpper {
		violations = append(violations, "must contain an uppercase letter")
	}
	if policy.RequireLowercase && !hasLower {
		violations = append(violations, "must contain a lowercase letter")
	}
	if policy.RequireNumber && !hasNumber {
		violations = append(violations, "must contain a number")
	}
	if policy.RequireSymbol && !hasSymbol {
		violations = append(violations, "must contain a symbol")
	}
	return violations
}

// HashPassword hashes password with bcrypt at the given cost; a cost of
// 0 means bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// mfaConfig is the shape stored in projections.users.mfa_configs.
type mfaConfig struct {
	Type   string `json:"type"`
	Secret string `json:"secret"`
}

var totpCodePattern = regexp.MustCompile(`^[0-9]{6}$`)

// verifyTOTP checks code against secret using the standard 30-second,
// 6-digit HMAC-SHA1 TOTP algorithm (RFC 6238), trying the current and
// immediately adjacent time steps to tolerate clock skew.
func verifyTOTP(secret, code string) bool {
	if !totpCodePattern.MatchString(code) {
		return false
	}
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(strings.ToUpper(secret))
	if err != nil {
		return false
	}
	step := time.Now().Unix() / 30
	for _, candidate := range []int64{step - 1, step, step + 1} {
		if generateTOTP(key, candidate) == code {
			return true
		}
	}
	return false
}

func generateTOTP(key []byte, step int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(step))
	mac := hmac.New(sha1.New, key)
	mac.Write(buf[:])
	sum := mac.Sum(nil)
	offset := sum[len(sum)-1] & 0x0f
	code := (uint32(sum[offset])&0x7f)<<24 | uint32(sum[offset+1])<<16 | uint32(sum[offset+2])<<8 | uint32(sum[offset+3])
	return fmt.Sprintf("%06d", code%1_000_000)
}

// userLookup is the narrow slice of readmodel.UserQueries that
// Authenticate needs, so tests can supply a fake instead of a database.
type userLookup interface {
	GetByUsername(ctx context.Context, instanceID, username string) (readmodel.User, bool, error)
}

// sessionIssuer is the narrow slice of session.Store Authenticate needs.
type sessionIssuer interface {
	Create(ctx context.Context, id, userID, instanceID string, metadata json.RawMessage) (session.Session, error)
}

// tokenIssuer is the narrow slice of session.TokenService Authenticate needs.
type tokenIssuer interface {
	GenerateTokenPair(ctx context.Context, claims session.Claims) (session.TokenPair, error)
}

// Request is the input to Authenticate.
type Request struct {
	Username   string
	Password   string
	InstanceID string
	MFACode    string
	Metadata   json.RawMessage
}

// Result is Authenticate's outcome on a successful login.
type Result struct {
	Success   bool
	UserID    string
	SessionID string
	Tokens    session.TokenPair
}

// Provider authenticates users and issues sessions/tokens on success.
type Provider struct {
	users    userLookup
	sessions sessionIssuer
	tokens   tokenIssuer
	ids      *idgen.Generator
}

// NewProvider constructs a Provider.
func NewProvider(users userLookup, sessions sessionIssuer, tokens tokenIssuer, ids *idgen.Generator) *Provider {
	return &Provider{users: users, sessions: sessions, tokens: tokens, ids: ids}
}

// Authenticate implements §4.I's five-step login: look up the user,
// verify the password, gate on MFA when enabled, then mint a session
// and token pair.
func (p *Provider) Authenticate(ctx context.Context, req Request) (Result, error) {
	user, found, err := p.users.GetByUsername(ctx, req.InstanceID, req.Username)
	if err != nil {
		return Result{}, fmt.Errorf("auth: lookup user: %w", err)
	}
	if !found {
		return Result{}, &InvalidCredentialsError{}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return Result{}, &InvalidCredentialsError{}
	}

	var cfg mfaConfig
	mfaEnabled := len(user.MFAConfigs) > 0 && json.Unmarshal(user.MFAConfigs, &cfg) == nil && cfg.Secret != ""
	if mfaEnabled {
		if req.MFACode == "" {
			token, err := p.ids.NewPrefixedID("mfa")
			if err != nil {
				return Result{}, fmt.Errorf("auth: generate mfa token: %w", err)
			}
			return Result{}, &MfaRequiredError{MFAToken: token}
		}
		if !verifyTOTP(cfg.Secret, req.MFACode) {
			return Result{}, &InvalidCredentialsError{}
		}
	}

	sessionID, err := p.ids.NewPrefixedID("sess")
	if err != nil {
		return Result{}, fmt.Errorf("auth: generate session id: %w", err)
	}
	sess, err := p.sessions.Create(ctx, sessionID, user.ID, req.InstanceID, req.Metadata)
	if err != nil {
		return Result{}, fmt.Errorf("auth: create session: %w", err)
	}

	email := ""
	if len(user.Emails) > 0 {
		email = user.Emails[0]
	}
	tokens, err := p.tokens.GenerateTokenPair(ctx, session.Claims{
		Subject:    user.ID,
		InstanceID: req.InstanceID,
		OrgID:      user.OrgID,
		Email:      email,
	})
	if err != nil {
		return Result{}, fmt.Errorf("auth: mint tokens: %w", err)
	}

	return Result{Success: true, UserID: user.ID, SessionID: sess.ID, Tokens: tokens}, nil
}
