package remoting

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestSequencerAssignIsMonotonicPerAuthority checks that Assign never hands
// out a sequence number smaller than (or equal to) one already given out for
// the same authority, no matter how the authority names and call counts are
// chosen.
func TestSequencerAssignIsMonotonicPerAuthority(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewSequencer()
		authority := rapid.StringMatching(`[a-z]{1,8}@[a-z]{1,8}:[0-9]{2,5}`).Draw(t, "authority")
		calls := rapid.IntRange(1, 50).Draw(t, "calls")

		var last uint64
		for i := 0; i < calls; i++ {
			seq := s.Assign(authority, []byte("payload"))
			if seq <= last {
				t.Fatalf("sequence did not increase: last=%d seq=%d", last, seq)
			}
			last = seq
		}
	})
}

// TestQuarantineExpiryRespectsConfiguredDuration checks that PollExpired
// never lifts a quarantine before the configured duration has elapsed, and
// always lifts it once enough time has passed, for arbitrary elapsed
// durations.
func TestQuarantineExpiryRespectsConfiguredDuration(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		quarantineFor := time.Duration(rapid.IntRange(1, 1000).Draw(t, "quarantineMS")) * time.Millisecond
		elapsed := time.Duration(rapid.IntRange(0, 2000).Draw(t, "elapsedMS")) * time.Millisecond

		var now time.Duration
		clock := func() time.Duration { return now }
		c := NewCoordinator(clock, 3*time.Second, quarantineFor)

		c.InvalidAssociation("peer")
		if c.State("peer") != Quarantined {
			t.Fatalf("expected Quarantined immediately after InvalidAssociation")
		}

		now = elapsed
		lifted := c.PollExpired(now)

		if elapsed < quarantineFor {
			if len(lifted) != 0 {
				t.Fatalf("lifted quarantine before duration elapsed: elapsed=%s quarantineFor=%s", elapsed, quarantineFor)
			}
			if c.State("peer") != Quarantined {
				t.Fatalf("expected still Quarantined")
			}
		} else {
			if len(lifted) != 1 || lifted[0] != "peer" {
				t.Fatalf("expected quarantine lifted once duration elapsed: elapsed=%s quarantineFor=%s", elapsed, quarantineFor)
			}
			if c.State("peer") != Unassociated {
				t.Fatalf("expected Unassociated after lift")
			}
		}
	})
}

// TestFrameEncodeDecodeRoundTrip checks that arbitrary frame kinds and
// payload bytes survive an Encode/Decode round trip unchanged.
func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		kinds := []FrameKind{
			KindOffer, KindAck, KindUser, KindSystem,
			KindSystemAck, KindSystemNack, KindFlush,
			KindFlushAck, KindHeartbeat, KindHeartbeatRsp,
		}
		kind := kinds[rapid.IntRange(0, len(kinds)-1).Draw(t, "kindIndex")]
		payload := []byte(rapid.String().Draw(t, "payload"))

		encoded := Encode(kind, payload)
		frame, ok := Decode(encoded)
		if !ok {
			t.Fatalf("decode failed")
		}
		if frame.Kind != kind {
			t.Fatalf("kind mismatch: got %v want %v", frame.Kind, kind)
		}
		if string(frame.Payload) != string(payload) {
			t.Fatalf("payload mismatch: got %q want %q", frame.Payload, payload)
		}
	})
}
