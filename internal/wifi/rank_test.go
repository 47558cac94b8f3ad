package wifi

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankDedup(t *testing.T) {
	ranked := Rank([]RawNetwork{
		{SSID: "Home", RSSI: -40, Auth: AuthOpen},
		{SSID: "Cafe", RSSI: -60, Auth: AuthWPA2PSK},
		{SSID: "Home", RSSI: -30, Auth: AuthOpen},
	})

	assert.Equal(t, []Network{
		{SSID: "Home", Open: true, RSSI: -30, SignalKnown: true},
		{SSID: "Cafe", Open: false, RSSI: -60, SignalKnown: true},
	}, ranked)
}

func TestRankEmpty(t *testing.T) {
	assert.Nil(t, Rank(nil))
	assert.Nil(t, Rank([]RawNetwork{}))
}

func TestRankKeepsStrongestCopyAttributes(t *testing.T) {
	ranked := Rank([]RawNetwork{
		{SSID: "Mesh", RSSI: -70, Auth: AuthOpen},
		{SSID: "Mesh", RSSI: -45, Auth: AuthWPA3PSK},
	})

	require.Len(t, ranked, 1)
	assert.False(t, ranked[0].Open)
	assert.Equal(t, int8(-45), ranked[0].RSSI)
}

func TestRankProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for round := 0; round < 200; round++ {
		raw := make([]RawNetwork, rng.Intn(40))
		strongest := map[string]int8{}
		for i := range raw {
			ssid := fmt.Sprintf("net-%d", rng.Intn(8))
			rssi := int8(-rng.Intn(90) - 10)
			raw[i] = RawNetwork{SSID: ssid, RSSI: rssi}
			if best, ok := strongest[ssid]; !ok || rssi > best {
				strongest[ssid] = rssi
			}
		}

		ranked := Rank(raw)

		require.Len(t, ranked, len(strongest), "round %d", round)
		seen := map[string]bool{}
		for i, n := range ranked {
			require.False(t, seen[n.SSID], "round %d: duplicate %q", round, n.SSID)
			seen[n.SSID] = true
			assert.Equal(t, strongest[n.SSID], n.RSSI, "round %d: %q", round, n.SSID)
			if i > 0 {
				assert.GreaterOrEqual(t, ranked[i-1].RSSI, n.RSSI, "round %d: order", round)
			}
		}
	}
}

func TestRankIgnoresInputOrder(t *testing.T) {
	raw := []RawNetwork{
		{SSID: "a", RSSI: -50},
		{SSID: "b", RSSI: -50},
		{SSID: "a", RSSI: -20},
		{SSID: "c", RSSI: -80},
		{SSID: "b", RSSI: -30},
	}
	want := Rank(raw)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]RawNetwork(nil), raw...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, want, Rank(shuffled))
	}
}
