package async

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReturnCompletesOnce(t *testing.T) {
	var calls int
	r := New[float64](func(v float64, err error) { calls++ })

	if r.IsFinished() {
		t.Fatal("new Return must not be finished")
	}
	if _, err := r.Result(); !errors.Is(err, ErrNotFinished) {
		t.Fatalf("expected ErrNotFinished, got %v", err)
	}

	if !r.Complete(1.5, nil) {
		t.Fatal("first Complete must win")
	}
	if r.Complete(2.5, nil) {
		t.Fatal("second Complete must be dropped")
	}

	v, err := r.Wait()
	if err != nil || v != 1.5 {
		t.Errorf("Wait = %v, %v; want 1.5, nil", v, err)
	}
	if calls != 1 {
		t.Errorf("onDone called %d times, want 1", calls)
	}
}

func TestReturnCallbackFromOtherGoroutine(t *testing.T) {
	r := New[bool](nil)
	cb := r.Callback()

	go func() {
		time.Sleep(10 * time.Millisecond)
		cb(true, nil)
	}()

	v, err := r.Wait()
	if err != nil || !v {
		t.Errorf("Wait = %v, %v; want true, nil", v, err)
	}
}

func TestReturnCallbackTypeMismatch(t *testing.T) {
	r := New[bool](nil)
	r.Callback()("not a bool", nil)

	if _, err := r.Result(); !errors.Is(err, ErrResultType) {
		t.Errorf("expected ErrResultType, got %v", err)
	}
}

func TestReturnCallbackNilResult(t *testing.T) {
	r := New[struct{}](nil)
	r.Callback()(nil, nil)

	if _, err := r.Result(); err != nil {
		t.Errorf("Result: %v", err)
	}
}

func TestReturnWaitContext(t *testing.T) {
	r := New[int](nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := r.WaitContext(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestJoin(t *testing.T) {
	var (
		fired  int
		result error
	)
	j := NewJoin(func(err error) {
		fired++
		result = err
	})

	a := j.Add()
	b := j.Add()
	a(nil, nil)

	boom := errors.New("boom")
	b(nil, boom)
	if fired != 0 {
		t.Fatal("Join must not fire before Seal")
	}

	j.Seal()
	if fired != 1 || !errors.Is(result, boom) {
		t.Errorf("fired=%d err=%v; want 1, boom", fired, result)
	}

	// repeated callbacks are ignored
	b(nil, nil)
	if fired != 1 {
		t.Errorf("fired=%d after duplicate callback", fired)
	}
}

func TestJoinEmpty(t *testing.T) {
	fired := false
	j := NewJoin(func(err error) { fired = err == nil })
	j.Seal()
	if !fired {
		t.Error("empty Join must fire on Seal")
	}
}
