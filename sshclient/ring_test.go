package sshclient

import "testing"

func TestChunkRingAppendAssignsMonotonicSeq(t *testing.T) {
	r := newChunkRing(DefaultRingBytesCapacity)

	first := r.append([]byte("hello"), StreamStdout)
	second := r.append([]byte("world"), StreamStdout)

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected one chunk per append, got %d and %d", len(first), len(second))
	}
	if first[0].Seq != 1 {
		t.Fatalf("expected first chunk seq 1, got %d", first[0].Seq)
	}
	if second[0].Seq != 2 {
		t.Fatalf("expected second chunk seq 2, got %d", second[0].Seq)
	}
}

func TestChunkRingAppendSplitsOnMaxChunkBytes(t *testing.T) {
	r := newChunkRing(DefaultRingBytesCapacity)
	data := make([]byte, MaxChunkBytes+10)
	for i := range data {
		data[i] = byte(i)
	}

	chunks := r.append(data, StreamStdout)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0].Bytes) != MaxChunkBytes {
		t.Errorf("expected first chunk to be exactly MaxChunkBytes, got %d", len(chunks[0].Bytes))
	}
	if len(chunks[1].Bytes) != 10 {
		t.Errorf("expected second chunk to carry the remainder, got %d", len(chunks[1].Bytes))
	}
}

func TestChunkRingEvictsToStayWithinBudget(t *testing.T) {
	r := newChunkRing(100)

	r.append(make([]byte, 60), StreamStdout)
	r.append(make([]byte, 60), StreamStdout)

	stats := r.stats()
	if stats.UsedBytes > 100 {
		t.Fatalf("expected usedBytes to stay within budget, got %d", stats.UsedBytes)
	}
	if stats.DroppedBytesTotal == 0 {
		t.Errorf("expected some bytes to have been evicted")
	}
	if stats.HeadSeq == 0 {
		t.Errorf("expected headSeq to have advanced past the evicted chunk")
	}
}

func TestReadBufferHeadReturnsEverything(t *testing.T) {
	r := newChunkRing(DefaultRingBytesCapacity)
	r.append([]byte("aaa"), StreamStdout)
	r.append([]byte("bbb"), StreamStderr)

	res := r.readBuffer(CursorHead(), 0)
	if len(res.Chunks) != 2 {
		t.Fatalf("expected 2 chunks from head, got %d", len(res.Chunks))
	}
	if res.Dropped != nil {
		t.Errorf("expected no dropped range from a full-history read")
	}
	if res.NextSeq != res.Chunks[len(res.Chunks)-1].Seq+1 {
		t.Errorf("expected NextSeq to follow the last emitted chunk")
	}
}

func TestReadBufferSeqCursorReportsDroppedRangeAfterEviction(t *testing.T) {
	r := newChunkRing(50)
	r.append(make([]byte, 40), StreamStdout) // seq 1, evicted later
	r.append(make([]byte, 40), StreamStdout) // seq 2, evicts seq 1
	r.append(make([]byte, 40), StreamStdout) // seq 3, evicts seq 2

	res := r.readBuffer(CursorAtSeq(1), 0)
	if res.Dropped == nil {
		t.Fatal("expected a dropped range when requesting an evicted seq")
	}
	if res.Dropped.FromSeq != 1 {
		t.Errorf("expected dropped range to start at seq 1, got %d", res.Dropped.FromSeq)
	}
	if len(res.Chunks) == 0 {
		t.Errorf("expected replay to continue from the current head")
	}
}

func TestReadBufferTailBytesWalksBackward(t *testing.T) {
	r := newChunkRing(DefaultRingBytesCapacity)
	r.append([]byte("aaaa"), StreamStdout)
	r.append([]byte("bbbb"), StreamStdout)
	r.append([]byte("cccc"), StreamStdout)

	res := r.readBuffer(CursorTailBytesOf(5), 0)
	if len(res.Chunks) != 2 {
		t.Fatalf("expected the last 2 chunks to cover >=5 tail bytes, got %d chunks", len(res.Chunks))
	}
	if res.Chunks[0].Seq != 2 {
		t.Errorf("expected tail walk to start at seq 2, got %d", res.Chunks[0].Seq)
	}
}

func TestReadBufferLiveCursorReturnsNoHistory(t *testing.T) {
	r := newChunkRing(DefaultRingBytesCapacity)
	r.append([]byte("aaa"), StreamStdout)

	res := r.readBuffer(CursorLive(), 0)
	if len(res.Chunks) != 0 {
		t.Errorf("expected CursorLive to skip history entirely, got %d chunks", len(res.Chunks))
	}
	if res.NextSeq != r.currentSeq()+1 {
		t.Errorf("expected NextSeq to point just past the current tail")
	}
}

func TestReadBufferRespectsMaxBytesButAlwaysEmitsOneChunk(t *testing.T) {
	r := newChunkRing(DefaultRingBytesCapacity)
	r.append(make([]byte, 1000), StreamStdout)
	r.append(make([]byte, 1000), StreamStdout)
	r.append(make([]byte, 1000), StreamStdout)

	res := r.readBuffer(CursorHead(), 1500)
	if len(res.Chunks) != 1 {
		t.Fatalf("expected maxBytes to cap emission to a single chunk, got %d", len(res.Chunks))
	}

	oversized := r.readBuffer(CursorHead(), 1)
	if len(oversized.Chunks) != 1 {
		t.Fatalf("expected at least one chunk even when it alone exceeds maxBytes, got %d", len(oversized.Chunks))
	}
}
