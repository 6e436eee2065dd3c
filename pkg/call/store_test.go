package call_test

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/oscar-bek/Telegram-clone/pkg/call"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestStore() *call.Store {
	return call.NewStore(newTestLogger(), time.Minute)
}

// --- State Machine Tests ---

func TestCreateAndAccept(t *testing.T) {
	s := newTestStore()

	sess, err := s.Create("alice", "bob", call.MediaVideo)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("Create returned empty call ID")
	}
	if len(sess.ID) < 40 {
		t.Errorf("Call ID too short for required entropy: %q", sess.ID)
	}
	if sess.Status != call.StateRinging {
		t.Errorf("New session status = %q, want ringing", sess.Status)
	}

	accepted, err := s.Accept(sess.ID, "bob")
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if accepted.Status != call.StateConnected {
		t.Errorf("Accepted session status = %q, want connected", accepted.Status)
	}
	if accepted.AcceptedAt == nil {
		t.Error("Accept did not stamp acceptedAt")
	}
}

func TestAcceptGuards(t *testing.T) {
	s := newTestStore()
	sess, _ := s.Create("alice", "bob", call.MediaAudio)

	if _, err := s.Accept(sess.ID, "alice"); !errors.Is(err, call.ErrForbidden) {
		t.Errorf("Accept by caller: err = %v, want ErrForbidden", err)
	}
	if _, err := s.Accept("no-such-call", "bob"); !errors.Is(err, call.ErrNotFound) {
		t.Errorf("Accept unknown call: err = %v, want ErrNotFound", err)
	}

	if _, err := s.Accept(sess.ID, "bob"); err != nil {
		t.Fatalf("First accept failed: %v", err)
	}
	// Accept succeeds at most once.
	if _, err := s.Accept(sess.ID, "bob"); !errors.Is(err, call.ErrInvalidState) {
		t.Errorf("Second accept: err = %v, want ErrInvalidState", err)
	}
}

func TestRejectOnlyFromRinging(t *testing.T) {
	s := newTestStore()
	sess, _ := s.Create("alice", "bob", call.MediaVideo)

	if _, err := s.Reject(sess.ID, "alice"); !errors.Is(err, call.ErrForbidden) {
		t.Errorf("Reject by caller: err = %v, want ErrForbidden", err)
	}

	rejected, err := s.Reject(sess.ID, "bob")
	if err != nil {
		t.Fatalf("Reject failed: %v", err)
	}
	if rejected.Status != call.StateRejected {
		t.Errorf("Rejected snapshot status = %q, want rejected", rejected.Status)
	}
	if _, found := s.Get(sess.ID); found {
		t.Error("Session still stored after rejection")
	}

	// No transition out of a terminal state.
	if _, err := s.Accept(sess.ID, "bob"); !errors.Is(err, call.ErrNotFound) {
		t.Errorf("Accept after reject: err = %v, want ErrNotFound", err)
	}

	sess2, _ := s.Create("alice", "bob", call.MediaVideo)
	s.Accept(sess2.ID, "bob")
	if _, err := s.Reject(sess2.ID, "bob"); !errors.Is(err, call.ErrInvalidState) {
		t.Errorf("Reject after accept: err = %v, want ErrInvalidState", err)
	}
}

func TestEndByEitherParticipant(t *testing.T) {
	s := newTestStore()

	// End from ringing, by the caller.
	sess, _ := s.Create("alice", "bob", call.MediaAudio)
	ended, err := s.End(sess.ID, "alice")
	if err != nil {
		t.Fatalf("End from ringing failed: %v", err)
	}
	if ended.Status != call.StateEnded {
		t.Errorf("Ended snapshot status = %q, want ended", ended.Status)
	}

	// End from connected, by the receiver.
	sess, _ = s.Create("alice", "bob", call.MediaAudio)
	s.Accept(sess.ID, "bob")
	if _, err := s.End(sess.ID, "bob"); err != nil {
		t.Fatalf("End from connected failed: %v", err)
	}

	// The second near-simultaneous end observes NotFound.
	if _, err := s.End(sess.ID, "alice"); !errors.Is(err, call.ErrNotFound) {
		t.Errorf("Second end: err = %v, want ErrNotFound", err)
	}

	sess, _ = s.Create("alice", "bob", call.MediaAudio)
	if _, err := s.End(sess.ID, "mallory"); !errors.Is(err, call.ErrForbidden) {
		t.Errorf("End by non-participant: err = %v, want ErrForbidden", err)
	}
}

// --- Pair Invariant ---

func TestDuplicatePairRejected(t *testing.T) {
	s := newTestStore()

	first, err := s.Create("alice", "bob", call.MediaVideo)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Create("alice", "bob", call.MediaAudio); !errors.Is(err, call.ErrAlreadyInProgress) {
		t.Errorf("Duplicate create: err = %v, want ErrAlreadyInProgress", err)
	}
	if s.Len() != 1 {
		t.Errorf("Store size = %d after rejected duplicate, want 1", s.Len())
	}

	// The reverse ordered pair is a different pair.
	if _, err := s.Create("bob", "alice", call.MediaAudio); err != nil {
		t.Errorf("Reverse pair create failed: %v", err)
	}

	// Ending the first call frees the pair for a new one.
	s.End(first.ID, "alice")
	if _, err := s.Create("alice", "bob", call.MediaVideo); err != nil {
		t.Errorf("Create after end failed: %v", err)
	}
}

// --- Media State ---

func TestUpdateMediaStateRequiresConnected(t *testing.T) {
	s := newTestStore()
	sess, _ := s.Create("alice", "bob", call.MediaVideo)

	if _, err := s.UpdateMediaState(sess.ID, "alice"); !errors.Is(err, call.ErrInvalidState) {
		t.Errorf("Media state while ringing: err = %v, want ErrInvalidState", err)
	}

	s.Accept(sess.ID, "bob")
	got, err := s.UpdateMediaState(sess.ID, "alice")
	if err != nil {
		t.Fatalf("Media state while connected failed: %v", err)
	}
	if got.Peer("alice") != "bob" {
		t.Errorf("Peer lookup: got %q, want bob", got.Peer("alice"))
	}

	if _, err := s.UpdateMediaState(sess.ID, "mallory"); !errors.Is(err, call.ErrForbidden) {
		t.Errorf("Media state by non-participant: err = %v, want ErrForbidden", err)
	}
}

// --- Cleanup ---

func TestPurgeByIdentity(t *testing.T) {
	s := newTestStore()
	ringing, _ := s.Create("alice", "bob", call.MediaAudio)
	connected, _ := s.Create("carol", "alice", call.MediaVideo)
	s.Accept(connected.ID, "alice")
	unrelated, _ := s.Create("dave", "erin", call.MediaAudio)

	ended := s.PurgeByIdentity("alice")
	if len(ended) != 2 {
		t.Fatalf("Purge ended %d sessions, want 2", len(ended))
	}
	for _, sess := range ended {
		if sess.Status != call.StateEnded {
			t.Errorf("Purged session %s status = %q, want ended", sess.ID, sess.Status)
		}
		if sess.ID != ringing.ID && sess.ID != connected.ID {
			t.Errorf("Purge ended unrelated session %s", sess.ID)
		}
	}
	if _, found := s.Get(unrelated.ID); !found {
		t.Error("Purge removed a session the identity was not part of")
	}

	// Safe on identities with nothing in flight.
	if ended := s.PurgeByIdentity("alice"); len(ended) != 0 {
		t.Errorf("Second purge ended %d sessions, want 0", len(ended))
	}
}

func TestExpireRinging(t *testing.T) {
	s := call.NewStore(newTestLogger(), time.Minute)
	ringing, _ := s.Create("alice", "bob", call.MediaVideo)
	connected, _ := s.Create("carol", "dave", call.MediaAudio)
	s.Accept(connected.ID, "dave")

	// Nothing has expired yet.
	if expired := s.ExpireRinging(time.Now()); len(expired) != 0 {
		t.Fatalf("Premature expiry of %d sessions", len(expired))
	}

	expired := s.ExpireRinging(time.Now().Add(2 * time.Minute))
	if len(expired) != 1 {
		t.Fatalf("Expired %d sessions, want 1", len(expired))
	}
	if expired[0].ID != ringing.ID {
		t.Errorf("Expired wrong session: %s", expired[0].ID)
	}
	if expired[0].Status != call.StateFailed {
		t.Errorf("Expired session status = %q, want failed", expired[0].Status)
	}
	if _, found := s.Get(ringing.ID); found {
		t.Error("Expired session still stored")
	}
	if _, found := s.Get(connected.ID); !found {
		t.Error("Connected session was expired")
	}
}

func TestZeroRingTimeoutNeverExpires(t *testing.T) {
	s := call.NewStore(newTestLogger(), 0)
	s.Create("alice", "bob", call.MediaAudio)

	if expired := s.ExpireRinging(time.Now().Add(24 * time.Hour)); len(expired) != 0 {
		t.Errorf("Sessions expired with ring timeout disabled: %d", len(expired))
	}
}

// --- Media Type Parsing ---

func TestParseMediaType(t *testing.T) {
	if _, ok := call.ParseMediaType("audio"); !ok {
		t.Error("audio should parse")
	}
	if _, ok := call.ParseMediaType("video"); !ok {
		t.Error("video should parse")
	}
	if _, ok := call.ParseMediaType("hologram"); ok {
		t.Error("unknown media type should not parse")
	}
	if _, ok := call.ParseMediaType(""); ok {
		t.Error("empty media type should not parse")
	}
}
