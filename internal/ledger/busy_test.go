package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestRetryOnBusyRetriesOnlyLockErrors(t *testing.T) {
	calls := 0
	err := retryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third call, got err=%v calls=%d", err, calls)
	}

	calls = 0
	boom := errors.New("constraint failed")
	if err := retryOnBusy(context.Background(), func() error { calls++; return boom }); !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("non-busy errors must not retry: err=%v calls=%d", err, calls)
	}

	calls = 0
	err = retryOnBusy(context.Background(), func() error { calls++; return errors.New("database is locked") })
	if err == nil || calls != busyRetryAttempts {
		t.Fatalf("expected %d attempts, got %d (err=%v)", busyRetryAttempts, calls, err)
	}
}

func TestRetryOnBusyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retryOnBusy(ctx, func() error { return errors.New("database is locked") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
