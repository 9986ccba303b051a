package serialization

import (
	"reflect"
	"testing"

	"github.com/babyman/fraktor/internal/system"
	"github.com/stretchr/testify/require"
)

type testPayload struct{ V uint8 }
type secondaryPayload struct{ V uint8 }

func newTestExtension(setup *Setup) *Extension {
	sys := system.NewSystemState(system.DefaultConfig("test"))
	return NewExtension(sys, setup)
}

// S1 — round-trip through a named serializer bound as the fallback.
func TestRoundTripThroughFallback(t *testing.T) {
	setup := NewSetup().
		RegisterSerializer("test", JSONSerializer{}).
		Fallback("test")
	ext := newTestExtension(setup)

	msg, err := ext.Serialize(testPayload{V: 42}, Local)
	require.NoError(t, err)

	v, err := ext.Deserialize(msg, reflect.TypeOf(testPayload{}))
	require.NoError(t, err)
	require.Equal(t, testPayload{V: 42}, v)
}

// S2 — remote scope requires a manifest; a type bound without one fails.
func TestRemoteScopeRequiresManifest(t *testing.T) {
	manifest := "test.Manifest"
	setup := NewSetup().
		RegisterSerializer("primary", JSONSerializer{}).
		Bind(reflect.TypeOf(testPayload{}), "primary", &manifest).
		RegisterSerializer("secondary", JSONSerializer{}).
		Bind(reflect.TypeOf(secondaryPayload{}), "secondary", nil).
		RequireManifestForScope(Remote)
	ext := newTestExtension(setup)

	_, err := ext.SerializeFor(secondaryPayload{V: 1}, Remote, nil)
	require.Error(t, err)
	var manifestErr *ManifestMissingError
	require.ErrorAs(t, err, &manifestErr)
	require.Equal(t, Remote, manifestErr.Scope)
}

// S3 — manifest route falls back to a legacy serializer.
func TestManifestRouteFallsBackToLegacySerializer(t *testing.T) {
	setup := NewSetup().
		RegisterSerializer("current", JSONSerializer{}).
		RegisterSerializer("legacy", legacyByteSerializer{}).
		ManifestRoute("legacy.Manifest", 1, "legacy")
	ext := newTestExtension(setup)

	manifest := "legacy.Manifest"
	msg := SerializedMessage{SerializerID: 420, Manifest: &manifest, Bytes: []byte{11}}

	v, err := ext.Deserialize(msg, nil)
	require.NoError(t, err)
	require.Equal(t, testPayload{V: 11}, v)
}

// legacyByteSerializer decodes a single byte into testPayload, standing in
// for a serializer that predates the current wire format.
type legacyByteSerializer struct{}

func (legacyByteSerializer) ID() SerializerID { return 421 }
func (legacyByteSerializer) ToBinary(v any) ([]byte, error) {
	p := v.(testPayload)
	return []byte{p.V}, nil
}
func (legacyByteSerializer) FromBinary(data []byte, hint reflect.Type) (any, error) {
	return testPayload{V: data[0]}, nil
}

func TestShutdownBlocksFurtherUse(t *testing.T) {
	setup := NewSetup().RegisterSerializer("test", JSONSerializer{}).Fallback("test")
	ext := newTestExtension(setup)
	ext.Shutdown()

	_, err := ext.Serialize(testPayload{V: 1}, Local)
	require.ErrorIs(t, err, ErrUninitialized)

	_, err = ext.Deserialize(SerializedMessage{}, nil)
	require.ErrorIs(t, err, ErrUninitialized)
}
