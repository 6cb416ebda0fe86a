package tile

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFutureResolvesOnce(t *testing.T) {
	f := NewFuture()
	if _, _, ok := f.Peek(); ok {
		t.Fatal("new future should be pending")
	}

	want := Result{Key: Key{X: 1, Y: 2, Level: 3}, Data: []byte("png")}
	if !f.Resolve(want, nil) {
		t.Fatal("first Resolve should win")
	}
	if f.Resolve(Result{}, errors.New("late")) {
		t.Fatal("second Resolve should be ignored")
	}

	got, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if string(got.Data) != "png" || got.Key != want.Key {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestFutureWaitHonoursContext(t *testing.T) {
	f := NewFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestFutureSurfacesFailure(t *testing.T) {
	boom := errors.New("boom")
	f := Resolved(Result{}, boom)
	if _, err := f.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestKeyString(t *testing.T) {
	if got := (Key{X: 1, Y: 2, Level: 3}).String(); got != "1-2-3" {
		t.Fatalf("Key.String() = %q", got)
	}
}

func TestCancelFuncNil(t *testing.T) {
	var f CancelFunc
	f.Cancel()
}
