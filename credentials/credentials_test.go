package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestKeyringStoreRoundTrip(t *testing.T) {
	keyring.MockInit()
	store := NewKeyringStore()

	_, err := store.Get()
	require.ErrorIs(t, err, ErrNoAPIKey)

	require.NoError(t, store.Set("abc123"))

	key, err := store.Get()
	require.NoError(t, err)
	assert.Equal(t, "abc123", key)

	require.NoError(t, store.Delete())
	_, err = store.Get()
	assert.ErrorIs(t, err, ErrNoAPIKey)

	// Deleting again is not an error.
	assert.NoError(t, store.Delete())
}

func TestKeyringStoreRejectsEmptyKey(t *testing.T) {
	keyring.MockInit()
	store := NewKeyringStore()
	assert.Error(t, store.Set("   "))
}

func TestEnvStore(t *testing.T) {
	t.Run("set", func(t *testing.T) {
		t.Setenv("TIMEREPORT_API_KEY", "from-env")
		key, err := EnvStore{}.Get()
		require.NoError(t, err)
		assert.Equal(t, "from-env", key)
	})

	t.Run("unset", func(t *testing.T) {
		t.Setenv("TIMEREPORT_API_KEY", "")
		_, err := EnvStore{}.Get()
		assert.ErrorIs(t, err, ErrNoAPIKey)
	})

	t.Run("read only", func(t *testing.T) {
		assert.Error(t, EnvStore{}.Set("x"))
		assert.Error(t, EnvStore{}.Delete())
	})
}

func TestResolveOrder(t *testing.T) {
	keyring.MockInit()
	store := NewKeyringStore()
	require.NoError(t, store.Set("ring-key"))
	t.Setenv("TIMEREPORT_API_KEY", "env-key")

	key, source, err := Resolve(store, EnvStore{}, StaticStore{Key: "file-key"})
	require.NoError(t, err)
	assert.Equal(t, "ring-key", key)
	assert.Contains(t, source, "keyring")

	require.NoError(t, store.Delete())
	key, source, err = Resolve(store, EnvStore{}, StaticStore{Key: "file-key"})
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)
	assert.Contains(t, source, "environment")

	t.Setenv("TIMEREPORT_API_KEY", "")
	key, source, err = Resolve(store, EnvStore{}, StaticStore{Key: "file-key"})
	require.NoError(t, err)
	assert.Equal(t, "file-key", key)
	assert.Equal(t, "config file", source)
}

func TestResolveNoKeyAnywhere(t *testing.T) {
	keyring.MockInit()
	t.Setenv("TIMEREPORT_API_KEY", "")
	_, _, err := Resolve(NewKeyringStore(), EnvStore{}, StaticStore{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}
