package idgen

import (
	"strings"
	"testing"
)

func TestGenerateUnique(t *testing.T) {
	seen := make(map[int64]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := NextID()
		if _, ok := seen[id]; ok {
			t.Fatalf("ID 重复: %d", id)
		}
		seen[id] = struct{}{}
	}
}

func TestBusinessNumberPrefixes(t *testing.T) {
	cases := []struct {
		no     string
		prefix string
	}{
		{GenerateOrderNo(), "ORD"},
		{GenerateTransactionNo(), "TXN"},
		{GenerateDepositNo(), "DEP"},
	}
	for _, c := range cases {
		if !strings.HasPrefix(c.no, c.prefix) {
			t.Errorf("期望前缀 %s，实际 %s", c.prefix, c.no)
		}
		if len(c.no) <= len(c.prefix) {
			t.Errorf("业务单号只有前缀: %s", c.no)
		}
	}
}
