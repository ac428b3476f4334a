package infrastructure

import "testing"

func TestShardKeepsPartitionOnOneWorker(t *testing.T) {
	c := NewOrderEventConsumer(nil, nil, 4, 3)

	for partition := 0; partition < 32; partition++ {
		first := c.shard(partition)
		if first < 0 || first >= c.workers {
			t.Fatalf("shard(%d) = %d, out of worker range", partition, first)
		}
		// 同一分区必须固定落在同一个 worker 上，分区内的提交顺序才有保证
		for i := 0; i < 3; i++ {
			if got := c.shard(partition); got != first {
				t.Fatalf("shard(%d) = %d on repeat, want %d", partition, got, first)
			}
		}
	}
	if got := c.shard(-1); got != 0 {
		t.Errorf("shard(-1) = %d, want 0", got)
	}
}

func TestShardSpreadsPartitionsAcrossWorkers(t *testing.T) {
	c := NewOrderEventConsumer(nil, nil, 4, 3)

	seen := make(map[int]bool)
	for partition := 0; partition < 8; partition++ {
		seen[c.shard(partition)] = true
	}
	if len(seen) != c.workers {
		t.Errorf("workers used = %d, want %d", len(seen), c.workers)
	}
}
