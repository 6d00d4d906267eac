// Plan and Point - Offline-first Virtual Tour Sync
// Copyright 2026 Plan and Point Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/rrlrodriguez78/plan-and-point-sub002

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runTree serves the tree until the returned stop function is called.
func runTree(t *testing.T, tree *Tree) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	return func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Error("tree did not shut down in time")
		}
	}
}

func waitForStarts(t *testing.T, svc *MockService, n int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for svc.StartCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("%s started %d times, want at least %d", svc, svc.StartCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewTreeDefaults(t *testing.T) {
	tree := NewTree("planpoint", nil, TreeConfig{})
	if tree.Root() == nil {
		t.Fatal("root supervisor is nil")
	}
	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want %+v", tree.config, DefaultTreeConfig())
	}

	custom := NewTree("planpoint", testLogger(), TreeConfig{FailureThreshold: 2, ShutdownTimeout: time.Second})
	if custom.config.FailureThreshold != 2 || custom.config.ShutdownTimeout != time.Second {
		t.Errorf("explicit values were overridden: %+v", custom.config)
	}
	if custom.config.FailureBackoff != 15*time.Second {
		t.Errorf("FailureBackoff = %v, want default", custom.config.FailureBackoff)
	}
}

func TestTreeStartsEveryLayer(t *testing.T) {
	tree := NewTree("planpoint", testLogger(), TreeConfig{ShutdownTimeout: time.Second})
	data := NewMockService("upload-manager")
	msg := NewMockService("websocket-hub")
	api := NewMockService("sync-api")
	tree.AddDataService(data)
	tree.AddMessagingService(msg)
	tree.AddAPIService(api)

	stop := runTree(t, tree)
	for _, svc := range []*MockService{data, msg, api} {
		waitForStarts(t, svc, 1)
	}
	stop()

	for _, svc := range []*MockService{data, msg, api} {
		if svc.StopCount() != svc.StartCount() {
			t.Errorf("%s: %d starts, %d stops", svc, svc.StartCount(), svc.StopCount())
		}
	}
	if report, err := tree.UnstoppedServiceReport(); err != nil || len(report) != 0 {
		t.Errorf("unstopped services = %v, %v", report, err)
	}
}

func TestTreeRestartsFailingService(t *testing.T) {
	tree := NewTree("planpoint", testLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})
	flaky := NewMockService("event-bridge")
	flaky.SetFailCount(2)
	stable := NewMockService("sync-api")
	tree.AddMessagingService(flaky)
	tree.AddAPIService(stable)

	stop := runTree(t, tree)
	defer stop()

	waitForStarts(t, flaky, 3)
	if stable.StartCount() != 1 {
		t.Errorf("stable service started %d times, want 1", stable.StartCount())
	}
}

func TestTreeDoesNotRestartFinishedService(t *testing.T) {
	tree := NewTree("tourctl", testLogger(), TreeConfig{FailureBackoff: 10 * time.Millisecond, ShutdownTimeout: time.Second})
	once := NewMockService("one-shot")
	once.SetError(suture.ErrDoNotRestart)
	tree.AddDataService(once)

	stop := runTree(t, tree)
	waitForStarts(t, once, 1)
	time.Sleep(50 * time.Millisecond)
	stop()

	if once.StartCount() != 1 {
		t.Errorf("started %d times, want 1", once.StartCount())
	}
}

func TestRemoveMessagingService(t *testing.T) {
	tree := NewTree("planpoint", testLogger(), TreeConfig{ShutdownTimeout: time.Second})
	svc := NewMockService("remote-events")
	token := tree.AddMessagingService(svc)

	stop := runTree(t, tree)
	defer stop()
	waitForStarts(t, svc, 1)

	if err := tree.RemoveMessagingService(token); err != nil {
		t.Fatalf("RemoveMessagingService() error = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for svc.StopCount() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("removed service was not stopped")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMockService(t *testing.T) {
	svc := NewMockService("retry")
	svc.SetFailCount(1)
	if err := svc.Serve(context.Background()); !errors.Is(err, ErrSimulated) {
		t.Errorf("first call = %v, want ErrSimulated", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second call = %v, want DeadlineExceeded", err)
	}
	if svc.StartCount() != 2 || svc.String() != "retry" {
		t.Errorf("starts = %d name = %q", svc.StartCount(), svc.String())
	}
}
