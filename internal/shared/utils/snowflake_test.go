package utils

import "testing"

func TestSnowflake_单调递增且不重复(t *testing.T) {
	s, err := NewSnowflake(3)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	seen := make(map[int64]struct{}, 10000)
	var last int64
	for i := 0; i < 10000; i++ {
		id := s.NextID()
		if id <= last {
			t.Fatalf("期望 id 单调递增，last=%d got=%d", last, id)
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("期望 id 不重复，got=%d", id)
		}
		seen[id] = struct{}{}
		last = id
	}
}

func TestNewSnowflake_节点号越界(t *testing.T) {
	if _, err := NewSnowflake(maxNodeID + 1); err == nil {
		t.Fatalf("期望节点号越界时报错")
	}
}

func TestCounter_从起点递增(t *testing.T) {
	c := NewCounter(100)
	if got := c.NextID(); got != 101 {
		t.Fatalf("期望 101，got=%d", got)
	}
}
