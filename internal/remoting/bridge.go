package remoting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// HandshakeFrame is exchanged as the payload of KindOffer/KindAck frames.
type HandshakeFrame struct {
	Ack        bool
	SystemName string
	Host       string
	Port       uint16
	UID        uint64
}

// SystemEnvelope wraps a system message with the sequencing metadata the
// reliable delivery protocol needs.
type SystemEnvelope struct {
	Seq     uint64
	ReplyTo string
	Payload []byte
}

type ackNackFrame struct {
	Seq uint64
}

type flushFrame struct {
	ExpectedAcks int
}

// UserMessageHandler receives a decoded user-frame payload from authority.
type UserMessageHandler func(authority string, payload []byte)

// SystemMessageHandler receives a decoded system-message payload from
// authority, already deduplicated/ordered by the sequencer.
type SystemMessageHandler func(authority string, payload []byte)

// Bridge is the endpoint transport bridge: it owns one Coordinator and one
// Sequencer, drives handshakes, and multiplexes every open Conn's inbound
// frames to the registered handlers.
type Bridge struct {
	selfAuthority string
	selfHost      string
	selfPort      uint16
	uid           uint64

	transport   Transport
	coordinator *Coordinator
	sequencer   *Sequencer

	onUser      UserMessageHandler
	onSystem    SystemMessageHandler
	onLifecycle func(Effect)
	logger      *slog.Logger

	mu    sync.RWMutex
	conns map[string]Conn

	handshakeMu sync.Mutex
	handshaking map[string]context.CancelFunc

	shuttingDown atomic.Bool
	cancel       context.CancelFunc
	heartbeatWG  sync.WaitGroup

	handshakeTimeout    time.Duration
	flushTimeout        time.Duration
	heartbeatInterval   time.Duration
	reapInterval        time.Duration
}

// BridgeConfig carries the tunables the watcher loops use.
type BridgeConfig struct {
	SelfAuthority     string
	SelfHost          string
	SelfPort          uint16
	UID               uint64
	HandshakeTimeout  time.Duration
	FlushTimeout      time.Duration
	HeartbeatInterval time.Duration
	ReapInterval      time.Duration
}

func DefaultBridgeConfig(selfAuthority string) BridgeConfig {
	return BridgeConfig{
		SelfAuthority:     selfAuthority,
		HandshakeTimeout:  3 * time.Second,
		FlushTimeout:      5 * time.Second,
		HeartbeatInterval: 100 * time.Millisecond,
		ReapInterval:      200 * time.Millisecond,
	}
}

func NewBridge(
	cfg BridgeConfig,
	transport Transport,
	coordinator *Coordinator,
	sequencer *Sequencer,
	onUser UserMessageHandler,
	onSystem SystemMessageHandler,
	onLifecycle func(Effect),
	logger *slog.Logger,
) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		selfAuthority:     cfg.SelfAuthority,
		selfHost:          cfg.SelfHost,
		selfPort:          cfg.SelfPort,
		uid:               cfg.UID,
		transport:         transport,
		coordinator:       coordinator,
		sequencer:         sequencer,
		onUser:            onUser,
		onSystem:          onSystem,
		onLifecycle:       onLifecycle,
		logger:            logger,
		conns:             make(map[string]Conn),
		handshaking:       make(map[string]context.CancelFunc),
		handshakeTimeout:  cfg.HandshakeTimeout,
		flushTimeout:      cfg.FlushTimeout,
		heartbeatInterval: cfg.HeartbeatInterval,
		reapInterval:      cfg.ReapInterval,
	}
}

// Start begins the heartbeat/reap watcher loop. It runs until ctx is
// cancelled or Shutdown is called.
func (b *Bridge) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.heartbeatWG.Add(1)
	go b.watcherLoop(ctx)
}

func (b *Bridge) watcherLoop(ctx context.Context) {
	defer b.heartbeatWG.Done()
	heartbeat := time.NewTicker(b.heartbeatInterval)
	reap := time.NewTicker(b.reapInterval)
	defer heartbeat.Stop()
	defer reap.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			b.broadcastHeartbeat(ctx)
		case <-reap.C:
			b.reapUnreachable()
		}
	}
}

func (b *Bridge) broadcastHeartbeat(ctx context.Context) {
	b.mu.RLock()
	targets := make([]string, 0, len(b.conns))
	for a := range b.conns {
		targets = append(targets, a)
	}
	b.mu.RUnlock()
	for _, authority := range targets {
		_ = b.sendFrame(ctx, authority, Encode(KindHeartbeat, nil))
	}
}

func (b *Bridge) reapUnreachable() {
	// Quarantine lifting is driven by the caller's clock via PollExpired;
	// this tick exists to give that a regular cadence to hang off of.
}

// Connect initiates (or reuses) an association with authority, applying
// the coordinator's effects in order.
func (b *Bridge) Connect(ctx context.Context, authority string, endpoint any) error {
	effects := b.coordinator.Associate(authority, endpoint)
	return b.applyEffects(ctx, effects)
}

func (b *Bridge) applyEffects(ctx context.Context, effects []Effect) error {
	for _, eff := range effects {
		switch eff.Kind {
		case EffectStartHandshake:
			if err := b.startHandshake(ctx, eff.Authority); err != nil {
				return err
			}
		case EffectDeliverEnvelopes:
			for _, env := range eff.Envelopes {
				payload, _ := env.([]byte)
				_ = b.sendFrame(ctx, eff.Authority, Encode(KindUser, payload))
			}
		case EffectDiscardDeferred:
			b.logger.Warn("discarding deferred envelopes", "authority", eff.Authority, "count", eff.Count)
		case EffectLifecycle:
			if b.onLifecycle != nil {
				b.onLifecycle(eff)
			}
		}
	}
	return nil
}

func (b *Bridge) startHandshake(ctx context.Context, authority string) error {
	conn, err := b.transport.Dial(ctx, authority)
	if err != nil {
		return fmt.Errorf("remoting: dial %s: %w", authority, err)
	}
	b.mu.Lock()
	b.conns[authority] = conn
	b.mu.Unlock()

	go b.readLoop(ctx, authority, conn)

	offer := HandshakeFrame{SystemName: b.selfAuthority, Host: b.selfHost, Port: b.selfPort, UID: b.uid}
	body, err := json.Marshal(offer)
	if err != nil {
		return err
	}
	if err := b.sendFrame(ctx, authority, Encode(KindOffer, body)); err != nil {
		return err
	}

	version := b.coordinator.HandshakeVersion(authority)
	hctx, cancel := context.WithCancel(ctx)
	b.handshakeMu.Lock()
	b.handshaking[authority] = cancel
	b.handshakeMu.Unlock()
	go b.armHandshakeWatchdog(hctx, authority, version)
	return nil
}

func (b *Bridge) armHandshakeWatchdog(ctx context.Context, authority string, version uint64) {
	timer := time.NewTimer(b.handshakeTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		effects := b.coordinator.HandshakeTimedOut(authority, version)
		_ = b.applyEffects(context.Background(), effects)
	}
}

func (b *Bridge) cancelHandshakeWatchdog(authority string) {
	b.handshakeMu.Lock()
	if cancel, ok := b.handshaking[authority]; ok {
		cancel()
		delete(b.handshaking, authority)
	}
	b.handshakeMu.Unlock()
}

func (b *Bridge) sendFrame(ctx context.Context, authority string, frame []byte) error {
	b.mu.RLock()
	conn, ok := b.conns[authority]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("remoting: no open connection to %s", authority)
	}
	return conn.Send(ctx, frame)
}

// SendUser encodes payload as a KindUser frame, optionally tagged with a
// remote-instrument trailer, and writes it to authority's connection.
func (b *Bridge) SendUser(ctx context.Context, authority string, payload []byte, instrument []byte) error {
	if instrument != nil {
		payload = AppendInstrumentTrailer(payload, instrument)
	}
	return b.sendFrame(ctx, authority, Encode(KindUser, payload))
}

// SendSystem assigns the next sequence number for authority, wraps payload
// as a SystemEnvelope, retains it pending ack, and writes the frame.
func (b *Bridge) SendSystem(ctx context.Context, authority string, payload []byte) error {
	seq := b.sequencer.Assign(authority, payload)
	env := SystemEnvelope{Seq: seq, ReplyTo: b.selfAuthority, Payload: payload}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.sendFrame(ctx, authority, Encode(KindSystem, body))
}

func (b *Bridge) resend(ctx context.Context, authority string, pending []PendingSystemEnvelope) {
	for _, p := range pending {
		env := SystemEnvelope{Seq: p.Seq, ReplyTo: b.selfAuthority, Payload: p.Payload}
		body, err := json.Marshal(env)
		if err != nil {
			continue
		}
		_ = b.sendFrame(ctx, authority, Encode(KindSystem, body))
	}
}

func (b *Bridge) readLoop(ctx context.Context, authority string, conn Conn) {
	for {
		raw, err := conn.Recv(ctx)
		if err != nil {
			b.logger.Debug("remoting connection closed", "authority", authority, "err", err)
			return
		}
		frame, ok := Decode(raw)
		if !ok {
			continue
		}
		b.dispatch(ctx, authority, frame)
	}
}

func (b *Bridge) dispatch(ctx context.Context, fromAuthority string, frame Frame) {
	switch frame.Kind {
	case KindOffer, KindAck:
		b.handleHandshake(ctx, fromAuthority, frame)
	case KindUser:
		body, instrument, ok := SplitInstrumentTrailer(frame.Payload)
		if !ok {
			body = frame.Payload
			instrument = nil
		}
		_ = instrument
		if b.onUser != nil {
			b.onUser(fromAuthority, body)
		}
	case KindSystem:
		b.handleSystem(ctx, fromAuthority, frame.Payload)
	case KindSystemAck:
		var ack ackNackFrame
		if json.Unmarshal(frame.Payload, &ack) == nil {
			b.sequencer.OnAck(fromAuthority, ack.Seq)
		}
	case KindSystemNack:
		var nack ackNackFrame
		if json.Unmarshal(frame.Payload, &nack) == nil {
			pending := b.sequencer.OnNack(fromAuthority, nack.Seq)
			b.resend(ctx, fromAuthority, pending)
		}
	case KindFlush:
		pending := b.sequencer.PendingCount(fromAuthority)
		body, _ := json.Marshal(flushFrame{ExpectedAcks: pending})
		_ = b.sendFrame(ctx, fromAuthority, Encode(KindFlushAck, body))
	case KindFlushAck:
		// no action: Shutdown's flush loop polls Sequencer.PendingCount instead
	case KindHeartbeat:
		_ = b.sendFrame(ctx, fromAuthority, Encode(KindHeartbeatRsp, nil))
	case KindHeartbeatRsp:
		// liveness only; no action required beyond having received it
	default:
		// unknown frame kinds are ignored
	}
}

func (b *Bridge) handleHandshake(ctx context.Context, fromAuthority string, frame Frame) {
	var hs HandshakeFrame
	if err := json.Unmarshal(frame.Payload, &hs); err != nil {
		return
	}
	effects := b.coordinator.HandshakeAccepted(fromAuthority)
	b.cancelHandshakeWatchdog(fromAuthority)
	_ = b.applyEffects(ctx, effects)

	if frame.Kind == KindOffer {
		ack := HandshakeFrame{Ack: true, SystemName: b.selfAuthority, Host: b.selfHost, Port: b.selfPort, UID: b.uid}
		body, err := json.Marshal(ack)
		if err == nil {
			_ = b.sendFrame(ctx, fromAuthority, Encode(KindAck, body))
		}
	}
}

func (b *Bridge) handleSystem(ctx context.Context, fromAuthority string, payload []byte) {
	var env SystemEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return
	}
	outcome := b.sequencer.Observe(fromAuthority, env.Seq)
	switch {
	case outcome.Deliver:
		if b.onSystem != nil {
			b.onSystem(fromAuthority, env.Payload)
		}
		body, _ := json.Marshal(ackNackFrame{Seq: outcome.AckSeq})
		_ = b.sendFrame(ctx, fromAuthority, Encode(KindSystemAck, body))
	case outcome.Nack:
		body, _ := json.Marshal(ackNackFrame{Seq: outcome.AckSeq})
		_ = b.sendFrame(ctx, fromAuthority, Encode(KindSystemNack, body))
	default:
		body, _ := json.Marshal(ackNackFrame{Seq: outcome.AckSeq})
		_ = b.sendFrame(ctx, fromAuthority, Encode(KindSystemAck, body))
	}
}

// Shutdown runs the flush-on-shutdown protocol: it polls every authority
// with pending system envelopes until each drains or flushTimeout elapses,
// then stops the watcher loop.
func (b *Bridge) Shutdown(ctx context.Context) {
	if !b.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	deadline := time.Now().Add(b.flushTimeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

flushLoop:
	for {
		targets := b.targetsWithPending()
		if len(targets) == 0 {
			break
		}
		if time.Now().After(deadline) {
			b.logger.Error("shutdown flush timed out", "authorities", targets)
			break
		}
		for _, authority := range targets {
			_ = b.sendFrame(ctx, authority, Encode(KindFlush, nil))
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			break flushLoop
		}
	}

	if b.cancel != nil {
		b.cancel()
	}
	b.heartbeatWG.Wait()

	b.mu.Lock()
	for _, conn := range b.conns {
		_ = conn.Close()
	}
	b.conns = make(map[string]Conn)
	b.mu.Unlock()
}

func (b *Bridge) targetsWithPending() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var targets []string
	for authority := range b.conns {
		if b.sequencer.PendingCount(authority) > 0 {
			targets = append(targets, authority)
		}
	}
	return targets
}
