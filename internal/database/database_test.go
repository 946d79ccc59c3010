package database

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDatabase(t *testing.T, db Database, expire func(time.Duration)) {
	t.Helper()

	_, err := db.Get("status.missing")
	assert.Equal(t, ErrNotFound, err)

	require.NoError(t, db.Set("status.1", `{"state":"encoding"}`, 0))

	data, err := db.Get("status.1")
	require.NoError(t, err)
	assert.Equal(t, `{"state":"encoding"}`, data)

	require.NoError(t, db.Set("status.2", "short", time.Minute))
	expire(2 * time.Minute)

	_, err = db.Get("status.2")
	assert.Equal(t, ErrNotFound, err)

	data, err = db.Get("status.1")
	require.NoError(t, err)
	assert.Equal(t, `{"state":"encoding"}`, data)

	require.NoError(t, db.Delete("status.1"))
	require.NoError(t, db.Delete("status.1"))

	_, err = db.Get("status.1")
	assert.Equal(t, ErrNotFound, err)
}

func TestRedis(t *testing.T) {
	s := miniredis.RunT(t)

	db, err := NewRedis(&redis.Options{Addr: s.Addr()})
	require.NoError(t, err)
	defer db.Close()

	testDatabase(t, db, s.FastForward)
}

func TestRedis_Unreachable(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	_, err := NewRedis(&redis.Options{Addr: addr})
	assert.Error(t, err)
}

func TestMemory(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	db := NewMemory()
	db.(*memory).now = func() time.Time { return now }

	testDatabase(t, db, func(d time.Duration) { now = now.Add(d) })
}
