package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/mso4sc/experiments/pkg/lock"
	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopAbandoner struct{}

func (noopAbandoner) Abandon(context.Context, *models.AppInstance) {}

// sharedLocker stands in for a locker visible to every replica.
type sharedLocker struct {
	lock.Locker
}

func TestNewJanitor_RefusesProcessLocalLocks(t *testing.T) {
	store := memory.NewPersistence()

	janitor, err := newJanitor(store.Instances(), lock.NewMemory(), noopAbandoner{}, "", slog.Default())
	require.NoError(t, err)
	assert.Nil(t, janitor)

	janitor, err = newJanitor(store.Instances(), sharedLocker{lock.NewMemory()}, noopAbandoner{}, "", slog.Default())
	require.NoError(t, err)
	assert.NotNil(t, janitor)

	_, err = newJanitor(store.Instances(), sharedLocker{lock.NewMemory()}, noopAbandoner{}, "not a schedule", slog.Default())
	assert.Error(t, err)
}
