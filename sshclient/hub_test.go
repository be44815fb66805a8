package sshclient

import "testing"

func TestBroadcastHubFansOutToAllSubscribers(t *testing.T) {
	h := newBroadcastHub()
	a := h.subscribe()
	b := h.subscribe()

	c := &Chunk{Seq: 1, Stream: StreamStdout, Bytes: []byte("hi")}
	h.publish(c)

	select {
	case got := <-a.ch:
		if got.Seq != 1 {
			t.Errorf("subscriber a got wrong chunk: %+v", got)
		}
	default:
		t.Fatal("subscriber a did not receive the published chunk")
	}

	select {
	case got := <-b.ch:
		if got.Seq != 1 {
			t.Errorf("subscriber b got wrong chunk: %+v", got)
		}
	default:
		t.Fatal("subscriber b did not receive the published chunk")
	}
}

func TestBroadcastHubDropsWhenSubscriberQueueIsFull(t *testing.T) {
	h := newBroadcastHub()
	sub := h.subscribe()

	for i := 0; i < hubCapacity+10; i++ {
		h.publish(&Chunk{Seq: uint64(i), Stream: StreamStdout})
	}

	if len(sub.ch) != hubCapacity {
		t.Fatalf("expected subscriber queue to be saturated at hubCapacity, got %d", len(sub.ch))
	}
}

func TestBroadcastHubUnsubscribeClosesChannel(t *testing.T) {
	h := newBroadcastHub()
	sub := h.subscribe()
	h.unsubscribe(sub)

	_, ok := <-sub.ch
	if ok {
		t.Fatal("expected subscriber channel to be closed after unsubscribe")
	}
}

func TestBroadcastHubCloseClosesAllSubscriptionsAndRejectsNewOnes(t *testing.T) {
	h := newBroadcastHub()
	sub := h.subscribe()
	h.close()

	_, ok := <-sub.ch
	if ok {
		t.Fatal("expected existing subscription to be closed by hub.close")
	}

	if h.subscribe() != nil {
		t.Fatal("expected subscribe on a closed hub to return nil")
	}
}

func TestBroadcastHubPublishAfterCloseIsNoop(t *testing.T) {
	h := newBroadcastHub()
	h.close()
	h.publish(&Chunk{Seq: 1}) // must not panic
}
