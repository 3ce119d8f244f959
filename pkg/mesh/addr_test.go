package mesh

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddrParseFormat(t *testing.T) {
	a, err := ParseAddr("02:1a:ff:00:9b:c4")
	require.NoError(t, err)
	require.Equal(t, Addr{0x02, 0x1a, 0xff, 0x00, 0x9b, 0xc4}, a)
	require.Equal(t, "02:1a:ff:00:9b:c4", a.String())

	for _, bad := range []string{"", "02:1a:ff:00:9b", "02:1a:ff:00:9b:c4:01", "xx:1a:ff:00:9b:c4", "021a:ff:00:9b:c4:00"} {
		_, err := ParseAddr(bad)
		require.Error(t, err, bad)
	}
}

func TestDeriveAddr(t *testing.T) {
	a := DeriveAddr("node-1")
	require.Equal(t, a, DeriveAddr("node-1"))
	require.NotEqual(t, a, DeriveAddr("node-2"))
	require.Equal(t, byte(0x02), a[0]&0x03)
	require.NotEqual(t, Broadcast, a)
	require.False(t, a.IsZero())
}
