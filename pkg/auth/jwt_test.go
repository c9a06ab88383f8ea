package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	manager := NewManager("secret", time.Hour, "ledger_service")
	userID := uuid.New()

	token, err := manager.Generate(userID)
	require.NoError(t, err)

	parsed, err := manager.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	userID := uuid.New()
	token, err := NewManager("secret-a", time.Hour, "ledger_service").Generate(userID)
	require.NoError(t, err)

	_, err = NewManager("secret-b", time.Hour, "ledger_service").Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	manager := NewManager("secret", time.Hour, "ledger_service")
	manager.ttl = -time.Minute

	token, err := manager.Generate(uuid.New())
	require.NoError(t, err)

	_, err = manager.Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsWrongIssuer(t *testing.T) {
	token, err := NewManager("secret", time.Hour, "other-service").Generate(uuid.New())
	require.NoError(t, err)

	_, err = NewManager("secret", time.Hour, "ledger_service").Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	manager := NewManager("secret", time.Hour, "ledger_service")
	_, err := manager.Validate("not-a-token")
	assert.Error(t, err)
}
