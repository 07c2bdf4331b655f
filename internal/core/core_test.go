package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.events, ",")
}

func component(rec *recorder, name string, startErr, stopErr error) Func {
	return Func{
		ID: name,
		OnStart: func(context.Context) error {
			rec.add("start:" + name)
			return startErr
		},
		OnStop: func(context.Context) error {
			rec.add("stop:" + name)
			return stopErr
		},
	}
}

// passive has neither Start nor Stop.
type passive struct{}

func (passive) Name() string { return "passive" }

func TestApp_StartStopOrder(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	app := NewApp(nil)
	app.Add(component(rec, "a", nil, nil), passive{}, component(rec, "b", nil, nil))

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := app.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if got, want := rec.String(), "start:a,start:b,stop:b,stop:a"; got != want {
		t.Errorf("events = %q, want %q", got, want)
	}

	// A second Stop is a no-op.
	if err := app.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error: %v", err)
	}
	if got := strings.Count(rec.String(), "stop:"); got != 2 {
		t.Errorf("stop events = %d, want 2", got)
	}
}

func TestApp_StartFailureRollsBack(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	boom := errors.New("boom")
	app := NewApp(nil)
	app.Add(
		component(rec, "a", nil, nil),
		component(rec, "b", nil, nil),
		component(rec, "c", boom, nil),
		component(rec, "d", nil, nil),
	)

	err := app.Start(context.Background())
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "starting c") {
		t.Fatalf("Start() = %v", err)
	}
	if got, want := rec.String(), "start:a,start:b,start:c,stop:b,stop:a"; got != want {
		t.Errorf("events = %q, want %q", got, want)
	}
}

func TestApp_StopJoinsErrors(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	e1, e2 := errors.New("one"), errors.New("two")
	app := NewApp(nil)
	app.Add(component(rec, "a", nil, e1), component(rec, "b", nil, e2))

	if err := app.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	err := app.Stop(context.Background())
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Errorf("Stop() = %v, want both errors", err)
	}
}
