package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omriShneor/babycare_bot/internal/reminder"
	"github.com/omriShneor/babycare_bot/internal/store"
	"github.com/omriShneor/babycare_bot/internal/testutil"
)

var redisT0 = time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)

func TestRedisPersister(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	client, cleanup := testutil.SetupRedisContainer(ctx, t)
	defer cleanup()

	p := store.NewRedisPersister(client, "test:reminders")

	_, err := p.Load(ctx)
	assert.ErrorIs(t, err, store.ErrNoDocument)

	bath, err := testutil.NewReminderBuilder("bath").Fixed().Every(1, reminder.UnitDay).CreatedAt(redisT0).Build()
	require.NoError(t, err)

	s := store.New(p, nil)
	require.NoError(t, s.Load(ctx))
	_, err = s.Add(ctx, 9, bath)
	require.NoError(t, err)

	reloaded := store.New(p, nil)
	require.NoError(t, reloaded.Load(ctx))
	got, err := reloaded.Get(9, 1)
	require.NoError(t, err)
	assert.Equal(t, "bath", got.Name)
	assert.Equal(t, redisT0, got.LastTriggerAt)

	due, err := reloaded.CollectDue(ctx, redisT0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

func TestRedisPersister_QuarantinesCorruptDocument(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	client, cleanup := testutil.SetupRedisContainer(ctx, t)
	defer cleanup()

	require.NoError(t, client.Set(ctx, "test:reminders", "{broken", 0).Err())

	s := store.New(store.NewRedisPersister(client, "test:reminders"), nil)
	assert.ErrorIs(t, s.Load(ctx), store.ErrCorruptDocument)

	exists, err := client.Exists(ctx, "test:reminders").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	keys, err := client.Keys(ctx, "test:reminders:corrupt:*").Result()
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}
