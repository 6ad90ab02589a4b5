package sampler

import (
	"math/rand/v2"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext_NeverReserved(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	s = s.WithSource(rand.NewPCG(1, 2))

	reserved := make([]netip.Prefix, 0, len(Reserved))
	for _, p := range Reserved {
		reserved = append(reserved, netip.MustParsePrefix(p))
	}

	for i := 0; i < 20000; i++ {
		addr := s.Next()
		require.True(t, addr.Is4(), "sample %d: %s", i, addr)
		for _, p := range reserved {
			require.False(t, p.Contains(addr), "sample %d: %s in %s", i, addr, p)
		}
		require.True(t, IsPublic(addr))
	}
}

func TestNext_Spread(t *testing.T) {
	s, err := New()
	require.NoError(t, err)
	s = s.WithSource(rand.NewPCG(7, 7))

	firstOctets := make(map[byte]struct{})
	for i := 0; i < 5000; i++ {
		firstOctets[s.Next().As4()[0]] = struct{}{}
	}

	// 256 first octets minus 0, 10, 127 and 224..255 leaves 221 candidates
	assert.Greater(t, len(firstOctets), 200)
}

func TestIsPublic(t *testing.T) {
	for _, addr := range []string{"8.8.8.8", "1.1.1.1", "100.128.0.1", "172.32.0.1", "223.255.255.254"} {
		assert.True(t, IsPublic(netip.MustParseAddr(addr)), addr)
	}

	for _, addr := range []string{
		"0.1.2.3", "10.1.1.1", "100.64.0.1", "127.0.0.1", "169.254.1.1", "172.16.5.4",
		"192.0.0.8", "192.0.2.1", "192.168.1.1", "198.18.0.1", "198.19.255.255",
		"224.0.0.1", "239.255.255.250", "240.0.0.1", "255.255.255.255", "::1",
	} {
		assert.False(t, IsPublic(netip.MustParseAddr(addr)), addr)
	}

	assert.True(t, IsPublic(netip.MustParseAddr("::ffff:8.8.8.8")))
}

func TestNew_Exclusions(t *testing.T) {
	s, err := New("8.0.0.0/8", "1.1.1.1")
	require.NoError(t, err)

	assert.False(t, s.Contains(netip.MustParseAddr("8.8.8.8")))
	assert.False(t, s.Contains(netip.MustParseAddr("1.1.1.1")))
	assert.True(t, s.Contains(netip.MustParseAddr("1.1.1.2")))

	s = s.WithSource(rand.NewPCG(3, 4))
	for i := 0; i < 5000; i++ {
		require.NotEqual(t, byte(8), s.Next().As4()[0])
	}
}

func TestNew_InvalidExclusion(t *testing.T) {
	_, err := New("not-a-prefix")
	assert.Error(t, err)

	_, err = New("2001:db8::/32")
	assert.Error(t, err)

	_, err = New("0.0.0.0/0")
	assert.Error(t, err, "nothing left to sample")
}
