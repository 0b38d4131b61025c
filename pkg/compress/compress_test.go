package compress

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncode_SmallPayloadUncompressed(t *testing.T) {
	data := []byte("short")
	out, compressed, err := Encode(data)
	require.NoError(t, err)
	require.False(t, compressed)
	require.Equal(t, data, out)
}

func TestEncode_CompressiblePayloadAboveThreshold(t *testing.T) {
	data := []byte(strings.Repeat("a", 4096))
	out, compressed, err := Encode(data)
	require.NoError(t, err)
	require.True(t, compressed)
	require.Less(t, len(out), len(data))

	back, err := Decode(out, compressed)
	require.NoError(t, err)
	require.Equal(t, data, back)
}

func TestEncode_IncompressiblePayloadKeepsRaw(t *testing.T) {
	// Random-looking bytes that won't meet MinSavings even above Threshold.
	data := make([]byte, Threshold+256)
	for i := range data {
		data[i] = byte(i*2654435761 + 1)
	}
	out, compressed, err := Encode(data)
	require.NoError(t, err)
	if compressed {
		// If it happened to compress, it must still satisfy the ratio gate.
		require.Less(t, float64(len(out)), float64(len(data))*(1-MinSavings))
	} else {
		require.Equal(t, data, out)
	}
}

func TestDecode_PassthroughWhenNotCompressed(t *testing.T) {
	data := []byte("raw bytes")
	out, err := Decode(data, false)
	require.NoError(t, err)
	require.Equal(t, data, out)
}
