// Package serialization implements the pluggable codec registry: a
// type-to-serializer binding table, a manifest route table for reading
// legacy wire formats, and call-scope policy enforcement.
package serialization

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/babyman/fraktor/internal/pathreg"
	"github.com/babyman/fraktor/internal/system"
)

// Scope distinguishes an in-process call from one bound for the wire.
type Scope int

const (
	Local Scope = iota
	Remote
)

func (s Scope) String() string {
	if s == Remote {
		return "Remote"
	}
	return "Local"
}

// SerializerID identifies a registered Serializer on the wire. Built-in
// ids are reserved below 100.
type SerializerID int32

// Serializer converts between a Go value and its wire bytes.
type Serializer interface {
	ID() SerializerID
	ToBinary(v any) ([]byte, error)
	FromBinary(data []byte, hint reflect.Type) (any, error)
}

// StringManifestSerializer is an optional upcast: serializers that embed a
// type manifest in the wire format (for cross-version compatibility)
// implement this in addition to Serializer.
type StringManifestSerializer interface {
	Serializer
	Manifest(v any) string
	FromBinaryManifest(data []byte, manifest string) (any, error)
}

// SerializedMessage is the wire-stable envelope produced by Serialize.
type SerializedMessage struct {
	SerializerID SerializerID
	Manifest     *string
	Bytes        []byte
}

// NotSerializableError is returned, and published on the event stream,
// whenever a binding or serializer lookup fails. Serialize failures are
// also recorded as dead letters; Deserialize failures are not.
type NotSerializableError struct {
	TypeName      string
	SerializerID  *SerializerID
	Manifest      *string
	Scope         *Scope
	Pid           *pathreg.Pid
	TransportHint *string
	Cause         error
}

func (e *NotSerializableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("serialization: %s not serializable: %v", e.TypeName, e.Cause)
	}
	return fmt.Sprintf("serialization: %s not serializable", e.TypeName)
}

func (e *NotSerializableError) Unwrap() error { return e.Cause }

// ManifestMissingError is returned when a scope's policy requires a
// manifest but the binding has none.
type ManifestMissingError struct {
	Scope Scope
}

func (e *ManifestMissingError) Error() string {
	return fmt.Sprintf("serialization: manifest required for scope %s", e.Scope)
}

// ErrUninitialized is returned by every operation once Shutdown has run.
var ErrUninitialized = errors.New("serialization: extension is shut down")

type binding struct {
	serializerName string
	manifest       *string
}

type manifestRouteKey struct {
	manifest string
	version  int
}

// Setup collects registrations before NewExtension materializes the
// read-only lookup tables.
type Setup struct {
	serializers    map[string]Serializer
	bindings       map[reflect.Type]binding
	manifestRoutes map[manifestRouteKey]string
	fallback       string
	requireManifest map[Scope]bool
	warnings       []string
}

func NewSetup() *Setup {
	return &Setup{
		serializers:     make(map[string]Serializer),
		bindings:        make(map[reflect.Type]binding),
		manifestRoutes:  make(map[manifestRouteKey]string),
		requireManifest: make(map[Scope]bool),
	}
}

// RegisterSerializer adds a named serializer. Colliding with a built-in id
// (below 100) only produces a warning, recorded for NewExtension to log
// through slog.Warn.
func (s *Setup) RegisterSerializer(name string, ser Serializer) *Setup {
	if ser.ID() < 100 {
		s.warnings = append(s.warnings, fmt.Sprintf("serializer %q registered with reserved id %d", name, ser.ID()))
	}
	s.serializers[name] = ser
	return s
}

// Bind associates a concrete Go type with a registered serializer name,
// and optionally a remote manifest string attached whenever that type is
// serialized.
func (s *Setup) Bind(typ reflect.Type, serializerName string, manifest *string) *Setup {
	s.bindings[typ] = binding{serializerName: serializerName, manifest: manifest}
	return s
}

// ManifestRoute registers how to decode an inbound frame carrying
// (manifest, version) using a legacy serializer.
func (s *Setup) ManifestRoute(manifest string, version int, serializerName string) *Setup {
	s.manifestRoutes[manifestRouteKey{manifest: manifest, version: version}] = serializerName
	return s
}

func (s *Setup) Fallback(name string) *Setup {
	s.fallback = name
	return s
}

func (s *Setup) RequireManifestForScope(scope Scope) *Setup {
	s.requireManifest[scope] = true
	return s
}

// Extension is the materialized, read-only-after-construction codec
// registry, wired to a *system.SystemState for event publication and
// dead-letter recording.
type Extension struct {
	sys *system.SystemState

	serializers     map[string]Serializer
	byID            map[SerializerID]Serializer
	bindings        map[reflect.Type]binding
	manifestRoutes  map[manifestRouteKey]string
	fallback        string
	requireManifest map[Scope]bool

	shutdown atomic.Bool

	transportMu sync.Mutex
	transport   *TransportInformation
}

// TransportInformation is the ambient per-call context serialize/deserialize
// consult for the remote authority driving the current send.
type TransportInformation struct {
	Authority pathreg.Authority
}

func NewExtension(sys *system.SystemState, setup *Setup) *Extension {
	ext := &Extension{
		sys:             sys,
		serializers:     setup.serializers,
		byID:            make(map[SerializerID]Serializer, len(setup.serializers)),
		bindings:        setup.bindings,
		manifestRoutes:  setup.manifestRoutes,
		fallback:        setup.fallback,
		requireManifest: setup.requireManifest,
	}
	for _, ser := range setup.serializers {
		ext.byID[ser.ID()] = ser
	}
	for _, w := range setup.warnings {
		slog.Warn(w)
	}
	return ext
}

// Shutdown makes every subsequent call fail with ErrUninitialized.
func (e *Extension) Shutdown() {
	e.shutdown.Store(true)
}

// WithTransportInformation makes info visible to any Serialize/Deserialize
// call nested inside body, and clears it on every exit path (including a
// panic unwinding through body).
func (e *Extension) WithTransportInformation(info TransportInformation, body func() error) error {
	e.transportMu.Lock()
	previous := e.transport
	e.transport = &info
	e.transportMu.Unlock()

	defer func() {
		e.transportMu.Lock()
		e.transport = previous
		e.transportMu.Unlock()
	}()
	return body()
}

func (e *Extension) currentTransportHint() *string {
	e.transportMu.Lock()
	defer e.transportMu.Unlock()
	if e.transport == nil {
		return nil
	}
	hint := e.transport.Authority.String()
	return &hint
}

func (e *Extension) lookupBinding(typ reflect.Type) (binding, Serializer, bool) {
	b, ok := e.bindings[typ]
	if ok {
		ser, found := e.serializers[b.serializerName]
		return b, ser, found
	}
	if e.fallback != "" {
		ser, found := e.serializers[e.fallback]
		return binding{serializerName: e.fallback}, ser, found
	}
	return binding{}, nil, false
}

// Serialize is Serialize(value, scope) with no specific target pid.
func (e *Extension) Serialize(value any, scope Scope) (SerializedMessage, error) {
	return e.SerializeFor(value, scope, nil)
}

// SerializeFor resolves the binding for value's concrete type, invokes the
// serializer, and attaches a manifest when the binding or the scope's
// policy calls for one.
func (e *Extension) SerializeFor(value any, scope Scope, target *pathreg.Pid) (SerializedMessage, error) {
	if e.shutdown.Load() {
		return SerializedMessage{}, ErrUninitialized
	}

	typ := reflect.TypeOf(value)
	typeName := "<nil>"
	if typ != nil {
		typeName = typ.String()
	}

	b, ser, found := e.lookupBinding(typ)
	if !found {
		return e.fail(typeName, nil, nil, scope, target)
	}

	slog.Debug("serialization cache hit", "type", typeName, "serializer", b.serializerName)

	bytes, err := ser.ToBinary(value)
	if err != nil {
		id := ser.ID()
		return e.fail(typeName, &id, nil, scope, target)
	}

	manifest := b.manifest
	if manifest == nil {
		if smSer, ok := ser.(StringManifestSerializer); ok {
			m := smSer.Manifest(value)
			manifest = &m
		}
	}

	if e.requireManifest[scope] && manifest == nil {
		return SerializedMessage{}, &ManifestMissingError{Scope: scope}
	}

	return SerializedMessage{SerializerID: ser.ID(), Manifest: manifest, Bytes: bytes}, nil
}

func (e *Extension) fail(typeName string, serID *SerializerID, manifest *string, scope Scope, target *pathreg.Pid) (SerializedMessage, error) {
	scopeCopy := scope
	nsErr := &NotSerializableError{
		TypeName:      typeName,
		SerializerID:  serID,
		Manifest:      manifest,
		Scope:         &scopeCopy,
		Pid:           target,
		TransportHint: e.currentTransportHint(),
	}
	e.sys.Events().Publish(system.Event{
		Kind: system.EventSerializationError,
		SerializationErr: &system.SerializationErrorPayload{
			TypeName:      nsErr.TypeName,
			Manifest:      nsErr.Manifest,
			Scope:         strPtr(scope.String()),
			Pid:           target,
			TransportHint: nsErr.TransportHint,
		},
	})
	var pid *pathreg.Pid
	if target != nil {
		pid = target
	}
	e.sys.DeadLetters().RecordEntry(typeName, system.ReasonSerializationError, pid, e.sys.Now())
	return SerializedMessage{}, nsErr
}

// Deserialize resolves a serializer (manifest route first, then id), and
// decodes bytes into a value. hint helps serializers that need a concrete
// target type (e.g. JSON) when the payload alone is insufficient.
func (e *Extension) Deserialize(msg SerializedMessage, hint reflect.Type) (any, error) {
	if e.shutdown.Load() {
		return nil, ErrUninitialized
	}

	var ser Serializer
	if msg.Manifest != nil {
		if name, ok := e.manifestRoutes[manifestRouteKey{manifest: *msg.Manifest, version: 1}]; ok {
			ser = e.serializers[name]
		}
	}
	if ser == nil {
		ser = e.byID[msg.SerializerID]
	}
	if ser == nil {
		slog.Error("manifest not resolved", "manifest", manifestOrEmpty(msg.Manifest))
		id := msg.SerializerID
		e.sys.Events().Publish(system.Event{
			Kind: system.EventSerializationError,
			SerializationErr: &system.SerializationErrorPayload{
				TypeName:     "<unknown>",
				SerializerID: int64Ptr(int64(id)),
				Manifest:     msg.Manifest,
			},
		})
		return nil, &NotSerializableError{TypeName: "<unknown>", SerializerID: &id, Manifest: msg.Manifest}
	}

	if smSer, ok := ser.(StringManifestSerializer); ok && msg.Manifest != nil {
		return smSer.FromBinaryManifest(msg.Bytes, *msg.Manifest)
	}
	return ser.FromBinary(msg.Bytes, hint)
}

// SerializedActorPath returns the canonical URI for pid, prefixed by the
// current transport's authority when WithTransportInformation has one
// active, else the system's local authority.
func (e *Extension) SerializedActorPath(pid pathreg.Pid) (string, error) {
	if e.shutdown.Load() {
		return "", ErrUninitialized
	}
	path, ok := e.sys.ActorPath(pid)
	if !ok {
		return "", fmt.Errorf("serialization: no such actor %s", pid)
	}
	e.transportMu.Lock()
	info := e.transport
	e.transportMu.Unlock()
	if info == nil || info.Authority.Host == "" {
		return path, nil
	}
	parsed, err := pathreg.ParsePath(path)
	if err != nil {
		return "", err
	}
	parsed.Authority = info.Authority
	return parsed.String(), nil
}

func strPtr(s string) *string   { return &s }
func int64Ptr(v int64) *int64   { return &v }
func manifestOrEmpty(m *string) string {
	if m == nil {
		return ""
	}
	return *m
}
