package common

import (
	"errors"
	"fmt"
	"testing"
)

// ---------- WipeByteArray ----------

func TestWipeByteArray_ZerosBuffer(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	WipeByteArray(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("expected buf[%d]==0, got %d", i, v)
		}
	}
}

func TestWipeByteArray_NilSafe(t *testing.T) {
	WipeByteArray(nil)
}

// ---------- GenerateRandByteArray ----------

func TestGenerateRandByteArray_Basic(t *testing.T) {
	const n = 24
	buf := GenerateRandByteArray(n)
	if buf == nil {
		t.Fatalf("expected non-nil slice")
	}
	if len(buf) != n {
		t.Fatalf("expected length %d, got %d", n, len(buf))
	}
}

func TestGenerateRandByteArray_EntropyHint(t *testing.T) {
	const n = 32
	a := GenerateRandByteArray(n)
	b := GenerateRandByteArray(n)

	if len(a) != n || len(b) != n {
		t.Fatalf("unexpected lengths: %d, %d", len(a), len(b))
	}

	identical := true
	for i := range a {
		if a[i] != b[i] {
			identical = false
			break
		}
	}
	if identical {
		t.Logf("warning: two GenerateRandByteArray(%d) results are identical; extremely unlikely", n)
	}
}

// ---------- errors ----------

func TestSentinels_MatchThroughWrapping(t *testing.T) {
	sentinels := []error{
		ErrorNotFound,
		ErrReservedSuffix,
		ErrUsernameInUse,
		ErrSecretStore,
		ErrRollbackFailed,
		ErrStaleSecrets,
		ErrMigration,
	}
	for _, s := range sentinels {
		wrapped := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", s))
		if !errors.Is(wrapped, s) {
			t.Fatalf("expected %q to match through wrapping", s)
		}
	}
}

func TestRollbackFailed_JoinedWithCause(t *testing.T) {
	cause := fmt.Errorf("set: %w", ErrSecretStore)
	err := errors.Join(cause, ErrRollbackFailed)
	if !errors.Is(err, ErrSecretStore) || !errors.Is(err, ErrRollbackFailed) {
		t.Fatalf("joined error must match both sentinels: %v", err)
	}
}
