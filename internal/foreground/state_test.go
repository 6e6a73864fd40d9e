package foreground

import (
	"context"
	"testing"
	"time"

	"github.com/danmuck/remoteflow/internal/testutil/testlog"
)

func TestStateWatchSeesCurrentThenChanges(t *testing.T) {
	testlog.Start(t)
	s := NewState()
	s.set(true)

	ctx, cancel := context.WithCancel(context.Background())
	watch := s.Watch(ctx)
	if v := <-watch; !v {
		t.Fatalf("expected current value true")
	}
	s.set(false)
	select {
	case v := <-watch:
		if v {
			t.Fatalf("expected false")
		}
	case <-time.After(time.Second):
		t.Fatalf("no change observed")
	}

	cancel()
	select {
	case _, ok := <-watch:
		if ok {
			// a value racing the cancel is fine; the stream must still close
			<-watch
		}
	case <-time.After(time.Second):
		t.Fatalf("watch not closed after cancel")
	}
}

func TestStateSlowWatcherGetsLatest(t *testing.T) {
	testlog.Start(t)
	s := NewState()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watch := s.Watch(ctx)
	<-watch

	s.set(true)
	s.set(false)
	s.set(true)
	deadline := time.After(time.Second)
	for {
		select {
		case v := <-watch:
			if v {
				return
			}
		case <-deadline:
			t.Fatalf("latest value never delivered")
		}
	}
}
