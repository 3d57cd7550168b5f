package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityError(t *testing.T) {
	err := NotFound("GetByID", EntityInstance, "i-1")

	assert.True(t, IsNotFound(err))
	assert.False(t, IsAccessDenied(err))
	assert.Equal(t, "GetByID operation failed for instance i-1: not found", err.Error())

	wrapped := fmt.Errorf("loading: %w", err)
	assert.True(t, IsNotFound(wrapped))

	var entityErr *EntityError
	assert.True(t, errors.As(wrapped, &entityErr))
	assert.Equal(t, EntityInstance, entityErr.Entity)
}

func TestCheckOwner(t *testing.T) {
	assert.NoError(t, CheckOwner("Get", EntityApplication, "a-1", "alice", "alice"))

	err := CheckOwner("Get", EntityApplication, "a-1", "bob", "alice")
	assert.True(t, IsAccessDenied(err))
	assert.False(t, IsNotFound(err))
}
