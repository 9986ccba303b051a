package remoting

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw := Encode(KindSystem, []byte("hello"))
	frame, ok := Decode(raw)
	require.True(t, ok)
	require.Equal(t, KindSystem, frame.Kind)
	require.Equal(t, []byte("hello"), frame.Payload)
}

func TestDecodeRejectsShortFrames(t *testing.T) {
	_, ok := Decode([]byte{0xF7})
	require.False(t, ok)
}

func TestInstrumentTrailerRoundTrip(t *testing.T) {
	payload := []byte("payload-bytes")
	metadata := []byte("trace-id-123")

	withTrailer := AppendInstrumentTrailer(payload, metadata)
	body, meta, ok := SplitInstrumentTrailer(withTrailer)
	require.True(t, ok)
	require.Equal(t, payload, body)
	require.Equal(t, metadata, meta)
}

func TestSplitInstrumentTrailerFalseWhenNoMarker(t *testing.T) {
	payload := []byte("just a plain payload, no trailer here")
	body, meta, ok := SplitInstrumentTrailer(payload)
	require.False(t, ok)
	require.Nil(t, meta)
	require.Equal(t, payload, body)
}

func TestSplitInstrumentTrailerFalseWhenTooShort(t *testing.T) {
	body, meta, ok := SplitInstrumentTrailer([]byte{1, 2, 3})
	require.False(t, ok)
	require.Nil(t, meta)
	require.Equal(t, []byte{1, 2, 3}, body)
}
