package token

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/algobattle/algobattle-server/internal/migrations"
	"github.com/algobattle/algobattle-server/internal/models"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

var testKey = Key{Secret: testSecret, Method: jwt.SigningMethodHS256}

func TestNewKey(t *testing.T) {
	for _, algorithm := range []string{"HS256", "HS384", "HS512"} {
		t.Run(algorithm, func(t *testing.T) {
			key, err := NewKey(testSecret, algorithm)
			require.NoError(t, err)
			assert.Equal(t, algorithm, key.Method.Alg())
		})
	}

	t.Run("RejectsAsymmetric", func(t *testing.T) {
		_, err := NewKey(testSecret, "RS256")
		assert.Error(t, err)
	})

	t.Run("RejectsNone", func(t *testing.T) {
		_, err := NewKey(testSecret, "none")
		assert.Error(t, err)
	})
}

func TestLoginTokenRoundTrip(t *testing.T) {
	signed, err := NewLoginToken(testKey, "student@example.com", time.Now())
	require.NoError(t, err)

	email, err := ParseLoginToken(testKey, signed)
	require.NoError(t, err)
	assert.Equal(t, "student@example.com", email)
}

// The configured algorithm must be used for signing and enforced when
// verifying.
func TestConfiguredAlgorithm(t *testing.T) {
	hs384, err := NewKey(testSecret, "HS384")
	require.NoError(t, err)

	signed, err := NewLoginToken(hs384, "student@example.com", time.Now())
	require.NoError(t, err)

	parsed, err := jwt.Parse(
		signed,
		func(*jwt.Token) (any, error) { return testSecret, nil },
		jwt.WithValidMethods([]string{"HS384"}),
	)
	require.NoError(t, err)
	assert.Equal(t, "HS384", parsed.Method.Alg())

	email, err := ParseLoginToken(hs384, signed)
	require.NoError(t, err)
	assert.Equal(t, "student@example.com", email)

	// a server configured for HS256 must reject HS384 tokens even though
	// the secret matches
	_, err = ParseLoginToken(testKey, signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginTokenExpired(t *testing.T) {
	signed, err := NewLoginToken(testKey, "student@example.com", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	_, err = ParseLoginToken(testKey, signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginTokenWrongKey(t *testing.T) {
	signed, err := NewLoginToken(testKey, "student@example.com", time.Now())
	require.NoError(t, err)

	other := Key{Secret: []byte("fedcba9876543210fedcba9876543210"), Method: jwt.SigningMethodHS256}
	_, err = ParseLoginToken(other, signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginTokenGarbage(t *testing.T) {
	_, err := ParseLoginToken(testKey, "not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginTokenRejectsUserToken(t *testing.T) {
	user := models.User{
		Model:   models.Model{ID: uuid.New()},
		TokenID: uuid.New(),
	}
	signed, err := NewUserToken(testKey, &user, time.Now())
	require.NoError(t, err)

	_, err = ParseLoginToken(testKey, signed)
	assert.ErrorIs(t, err, ErrInvalidToken, "session tokens must not work as login tokens")
}

func TestUserTokenSessions(t *testing.T) {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16.4-alpine",
		postgres.WithDatabase("algobattle"),
		postgres.WithUsername("algobattle"),
		postgres.WithPassword("algobattle"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	defer func() {
		err := testcontainers.TerminateContainer(postgresContainer)
		assert.NoError(t, err, "failed to terminate container")
	}()
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := postgresContainer.ConnectionString(ctx)
	require.NoError(t, err, "failed to get connection string to container")

	db, err := gorm.Open(gormpostgres.Open(dsn))
	require.NoError(t, err, "failed to connect to the database")
	require.NoError(t, migrations.Up(ctx, db), "failed to migrate db")

	user := models.User{Email: "student@example.com", Name: "student"}
	require.NoError(t, db.Create(&user).Error)
	require.NoError(t, db.First(&user, user.ID).Error)

	signed, err := NewUserToken(testKey, &user, time.Now())
	require.NoError(t, err)

	t.Run("RoundTrip", func(t *testing.T) {
		loaded, err := ParseUserToken(ctx, db, testKey, signed)
		require.NoError(t, err)
		assert.Equal(t, user.ID, loaded.ID)
	})

	t.Run("RotationInvalidatesSessions", func(t *testing.T) {
		require.NoError(t, user.RotateToken(ctx, db))

		_, err := ParseUserToken(ctx, db, testKey, signed)
		assert.ErrorIs(t, err, ErrInvalidToken, "old sessions must die with the token id")

		fresh, err := NewUserToken(testKey, &user, time.Now())
		require.NoError(t, err)
		loaded, err := ParseUserToken(ctx, db, testKey, fresh)
		require.NoError(t, err)
		assert.Equal(t, user.ID, loaded.ID)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		ghost := models.User{
			Model:   models.Model{ID: uuid.New()},
			TokenID: uuid.New(),
		}
		signed, err := NewUserToken(testKey, &ghost, time.Now())
		require.NoError(t, err)

		_, err = ParseUserToken(ctx, db, testKey, signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
