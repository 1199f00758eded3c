package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

var errTransient = errors.New("connection reset")

func TestRetryable(t *testing.T) {
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) should return nil")
	}

	err := Retryable(errTransient)
	if !IsRetryable(err) {
		t.Error("IsRetryable should return true for wrapped error")
	}
	if err.Error() != errTransient.Error() {
		t.Errorf("Error message should be preserved: %s", err.Error())
	}
	if !errors.Is(err, errTransient) {
		t.Error("wrapped error should unwrap to the original")
	}
	if IsRetryable(errTransient) {
		t.Error("IsRetryable should return false for unwrapped error")
	}
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("success first try", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, time.Millisecond, func() error {
			calls++
			return nil
		})
		if err != nil || calls != 1 {
			t.Errorf("err=%v calls=%d, want nil/1", err, calls)
		}
	})

	t.Run("non-retryable stops", func(t *testing.T) {
		calls := 0
		notFound := errors.New("not found")
		err := Retry(ctx, 3, time.Millisecond, func() error {
			calls++
			return notFound
		})
		if err != notFound || calls != 1 {
			t.Errorf("err=%v calls=%d, want notFound/1", err, calls)
		}
	})

	t.Run("retryable then success", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, time.Millisecond, func() error {
			calls++
			if calls < 2 {
				return Retryable(errTransient)
			}
			return nil
		})
		if err != nil || calls != 2 {
			t.Errorf("err=%v calls=%d, want nil/2", err, calls)
		}
	})

	t.Run("attempts exhausted", func(t *testing.T) {
		calls := 0
		err := Retry(ctx, 3, time.Millisecond, func() error {
			calls++
			return Retryable(errTransient)
		})
		if !errors.Is(err, errTransient) || calls != 3 {
			t.Errorf("err=%v calls=%d, want errTransient/3", err, calls)
		}
	})

	t.Run("zero attempts runs once", func(t *testing.T) {
		calls := 0
		_ = Retry(ctx, 0, time.Millisecond, func() error {
			calls++
			return nil
		})
		if calls != 1 {
			t.Errorf("calls=%d, want 1", calls)
		}
	})
}

func TestRetry_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, time.Hour, func() error {
		return Retryable(errTransient)
	})
	if err != context.Canceled {
		t.Errorf("Should return context error: %v", err)
	}
}

func TestPolicy_RetryAfterCapped(t *testing.T) {
	p := Policy{Attempts: 2, Delay: time.Hour, MaxDelay: time.Millisecond}
	calls := 0
	start := time.Now()
	err := p.Do(context.Background(), func() error {
		calls++
		if calls == 1 {
			return RetryAfter(errTransient, time.Hour)
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("err=%v calls=%d, want nil/2", err, calls)
	}
	if time.Since(start) > time.Second {
		t.Error("wait was not capped by MaxDelay")
	}
}

func TestRetryAfter(t *testing.T) {
	if RetryAfter(nil, time.Second) != nil {
		t.Error("RetryAfter(nil) should return nil")
	}
	var re *RetryableError
	if !errors.As(RetryAfter(errTransient, 5*time.Second), &re) || re.After != 5*time.Second {
		t.Errorf("RetryAfter did not record the wait: %+v", re)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"30", 30 * time.Second},
		{"-4", 0},
		{now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"soon", 0},
	}
	for _, tt := range tests {
		if got := ParseRetryAfter(tt.in, now); got != tt.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCountingReader(t *testing.T) {
	var last int64
	r := &CountingReader{R: strings.NewReader("hello world"), Progress: func(n int64) { last = n }}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Errorf("data = %q", data)
	}
	if r.N != 11 || last != 11 {
		t.Errorf("N=%d last=%d, want 11", r.N, last)
	}
}

func TestCountingReader_Err(t *testing.T) {
	boom := errors.New("connection reset by peer")
	r := &CountingReader{R: io.MultiReader(strings.NewReader("abc"), errReader{boom})}
	_, err := io.ReadAll(r)
	if !errors.Is(err, boom) {
		t.Fatalf("ReadAll error = %v", err)
	}
	if r.Err != boom || r.N != 3 {
		t.Errorf("Err=%v N=%d", r.Err, r.N)
	}
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }
