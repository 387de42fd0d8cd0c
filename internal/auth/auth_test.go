package auth

import (
	"context"
	"encoding/base32"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"iamcore/internal/readmodel"
	"iamcore/internal/session"
	"iamcore/pkg/idgen"
)

func newTestGenerator(t *testing.T) *idgen.Generator {
	t.Helper()
	gen, err := idgen.NewGenerator(1)
	require.NoError(t, err)
	return gen
}

type fakeUsers struct {
	user  readmodel.User
	found bool
}

func (f fakeUsers) GetByUsername(ctx context.Context, instanceID, username string) (readmodel.User, bool, error) {
	return f.user, f.found, nil
}

type fakeSessions struct{}

func (fakeSessions) Create(ctx context.Context, id, userID, instanceID string, metadata json.RawMessage) (session.Session, error) {
	return session.Session{ID: id, UserID: userID, InstanceID: instanceID}, nil
}

type fakeTokens struct{}

func (fakeTokens) GenerateTokenPair(ctx context.Context, claims session.Claims) (session.TokenPair, error) {
	return session.TokenPair{AccessToken: "access-" + claims.Subject, RefreshToken: "refresh-" + claims.Subject}, nil
}

func hashed(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthenticate_Success(t *testing.T) {
	users := fakeUsers{found: true, user: readmodel.User{
		ID: "u1", OrgID: "org1", Emails: []string{"u1@example.com"}, PasswordHash: hashed(t, "correct-horse"),
	}}
	p := NewProvider(users, fakeSessions{}, fakeTokens{}, newTestGenerator(t))

	res, err := p.Authenticate(context.Background(), Request{Username: "u1", Password: "correct-horse", InstanceID: "inst1"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "u1", res.UserID)
	assert.NotEmpty(t, res.Tokens.AccessToken)
}

func TestAuthenticate_WrongPassword(t *testing.T) {
	users := fakeUsers{found: true, user: readmodel.User{ID: "u1", PasswordHash: hashed(t, "correct-horse")}}
	p := NewProvider(users, fakeSessions{}, fakeTokens{}, newTestGenerator(t))

	_, err := p.Authenticate(context.Background(), Request{Username: "u1", Password: "wrong", InstanceID: "inst1"})
	require.Error(t, err)
	assert.IsType(t, &InvalidCredentialsError{}, err)
}

func TestAuthenticate_UnknownUser(t *testing.T) {
	p := NewProvider(fakeUsers{found: false}, fakeSessions{}, fakeTokens{}, newTestGenerator(t))

	_, err := p.Authenticate(context.Background(), Request{Username: "ghost", Password: "anything", InstanceID: "inst1"})
	require.Error(t, err)
	assert.IsType(t, &InvalidCredentialsError{}, err)
}

func TestAuthenticate_RequiresMFAWhenConfigured(t *testing.T) {
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte("a-shared-secret!"))
	cfg, err := json.Marshal(mfaConfig{Type: "totp", Secret: secret})
	require.NoError(t, err)
	users := fakeUsers{found: true, user: readmodel.User{ID: "u1", PasswordHash: hashed(t, "correct-horse"), MFAConfigs: cfg}}
	p := NewProvider(users, fakeSessions{}, fakeTokens{}, newTestGenerator(t))

	_, err = p.Authenticate(context.Background(), Request{Username: "u1", Password: "correct-horse", InstanceID: "inst1"})
	require.Error(t, err)
	mfaErr, ok := err.(*MfaRequiredError)
	require.True(t, ok)
	assert.NotEmpty(t, mfaErr.MFAToken)
}

func TestAuthenticate_MFACodeAccepted(t *testing.T) {
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte("a-shared-secret!"))
	cfg, err := json.Marshal(mfaConfig{Type: "totp", Secret: secret})
	require.NoError(t, err)
	users := fakeUsers{found: true, user: readmodel.User{ID: "u1", PasswordHash: hashed(t, "correct-horse"), MFAConfigs: cfg}}
	p := NewProvider(users, fakeSessions{}, fakeTokens{}, newTestGenerator(t))

	code := currentTOTPForTest(t, secret)
	res, err := p.Authenticate(context.Background(), Request{Username: "u1", Password: "correct-horse", InstanceID: "inst1", MFACode: code})
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func currentTOTPForTest(t *testing.T, secret string) string {
	t.Helper()
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	require.NoError(t, err)
	return generateTOTP(key, time.Now().Unix()/30)
}

func TestValidatePassword(t *testing.T) {
	violations := ValidatePassword("short", DefaultPasswordPolicy)
	assert.NotEmpty(t, violations)

	violations = ValidatePassword("LongEnough1", DefaultPasswordPolicy)
	assert.Empty(t, violations)
}

func TestVerifyTOTP_RejectsMalformedCode(t *testing.T) {
	assert.False(t, verifyTOTP("ABCDEFGH", "12a456"))
	assert.False(t, verifyTOTP("ABCDEFGH", "12345"))
}
