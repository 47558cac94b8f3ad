package store

import (
	"path/filepath"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	log := testr.New(t)
	dir := t.TempDir()
	stores := map[string]Store{}
	for _, driver := range []string{DriverMemory, DriverSQLite, DriverBolt} {
		s, err := Open(log, driver, filepath.Join(dir, driver, "stationd.db"))
		require.NoError(t, err, driver)
		t.Cleanup(func() { s.Close() })
		stores[driver] = s
	}
	return stores
}

func TestStoreDefaults(t *testing.T) {
	for driver, s := range openAll(t) {
		t.Run(driver, func(t *testing.T) {
			enabled, err := s.Enabled()
			require.NoError(t, err)
			assert.False(t, enabled)

			ssid, err := s.DefaultSSID()
			require.NoError(t, err)
			assert.Empty(t, ssid)

			_, ok, err := s.Password("Home")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for driver, s := range openAll(t) {
		t.Run(driver, func(t *testing.T) {
			require.NoError(t, s.SetEnabled(true))
			enabled, err := s.Enabled()
			require.NoError(t, err)
			assert.True(t, enabled)
			require.NoError(t, s.SetEnabled(false))
			enabled, err = s.Enabled()
			require.NoError(t, err)
			assert.False(t, enabled)

			require.NoError(t, s.SetDefaultSSID("Home"))
			require.NoError(t, s.SetDefaultSSID("Cafe"))
			ssid, err := s.DefaultSSID()
			require.NoError(t, err)
			assert.Equal(t, "Cafe", ssid)
			require.NoError(t, s.ClearDefaultSSID())
			ssid, err = s.DefaultSSID()
			require.NoError(t, err)
			assert.Empty(t, ssid)
			require.NoError(t, s.ClearDefaultSSID())

			require.NoError(t, s.SetPassword("Home", "one"))
			require.NoError(t, s.SetPassword("Home", "two"))
			require.NoError(t, s.SetPassword("Open", ""))
			pw, ok, err := s.Password("Home")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "two", pw)
			pw, ok, err = s.Password("Open")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Empty(t, pw)

			require.NoError(t, s.ClearPassword("Home"))
			_, ok, err = s.Password("Home")
			require.NoError(t, err)
			assert.False(t, ok)
			require.NoError(t, s.ClearPassword("Home"))
		})
	}
}

func TestStoreListsSSIDs(t *testing.T) {
	for driver, s := range openAll(t) {
		lister, ok := s.(Lister)
		if !ok {
			continue
		}
		t.Run(driver, func(t *testing.T) {
			require.NoError(t, s.SetPassword("b", "x"))
			require.NoError(t, s.SetPassword("a", "y"))
			ssids, err := lister.SSIDs()
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, ssids)
		})
	}
}

func TestStorePersists(t *testing.T) {
	log := testr.New(t)
	for _, driver := range []string{DriverSQLite, DriverBolt} {
		t.Run(driver, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "stationd.db")
			s, err := Open(log, driver, path)
			require.NoError(t, err)
			require.NoError(t, s.SetEnabled(true))
			require.NoError(t, s.SetDefaultSSID("Home"))
			require.NoError(t, s.SetPassword("Home", "secret"))
			require.NoError(t, s.Close())

			s, err = Open(log, driver, path)
			require.NoError(t, err)
			defer s.Close()
			enabled, err := s.Enabled()
			require.NoError(t, err)
			assert.True(t, enabled)
			ssid, err := s.DefaultSSID()
			require.NoError(t, err)
			assert.Equal(t, "Home", ssid)
			pw, ok, err := s.Password("Home")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "secret", pw)
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(testr.New(t), "ini", "")
	assert.Error(t, err)
}

func TestPasswordKey(t *testing.T) {
	assert.Equal(t, "pw-VioU7n[RD>:", PasswordKey("Home"))
	assert.Equal(t, "pw-O3@PAkG8MX3", PasswordKey("Cafe"))
	assert.Equal(t, "pw-GHOWHJnh9M0", PasswordKey(""))

	key := PasswordKey("a somewhat longer network name")
	require.Len(t, key, 14)
	for _, c := range key[3:] {
		assert.True(t, c >= '0' && c <= 'o', "%q", c)
	}
}
