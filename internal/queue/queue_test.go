package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryDeliversInOrder(t *testing.T) {
	q := NewInMemory(8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := []ScanEvent{
		{Subject: "Networks 731", StudentID: "uid-1", Name: "Asha Naidoo"},
		{Subject: "Networks 731", StudentID: "uid-2", Name: "Ben Okafor"},
		{Subject: "PROG-JAVA 731", StudentID: "uid-1", Name: "Asha Naidoo"},
	}
	for _, evt := range events {
		if err := q.Publish(ctx, evt); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	for i, want := range events {
		select {
		case got := <-msgs:
			if got != want {
				t.Errorf("event %d = %+v, want %+v", i, got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d never delivered", i)
		}
	}
}

func TestInMemoryPublishHonorsContext(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())

	if err := q.Publish(ctx, ScanEvent{Subject: "full"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	cancel()
	err := q.Publish(ctx, ScanEvent{Subject: "blocked"})
	if err == nil {
		t.Fatal("Publish into a full queue with a dead context succeeded")
	}
}
