package pipeline

import (
	"maps"
	"sync"
)

// QuotaCounter 单次运行内每个类别已接收的条目数。
// 只有成功入库的条目会计数，被策略跳过或失败的条目不占名额。
type QuotaCounter struct {
	mu     sync.Mutex
	limit  int
	counts map[string]int
}

// NewQuotaCounter 创建配额计数器，limit <= 0 表示不限
func NewQuotaCounter(limit int) *QuotaCounter {
	return &QuotaCounter{limit: limit, counts: make(map[string]int)}
}

// Full 类别是否已达上限
func (q *QuotaCounter) Full(category string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limit > 0 && q.counts[category] >= q.limit
}

// TryAccept 在未达上限时占用一个名额，返回占用后的计数
func (q *QuotaCounter) TryAccept(category string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.counts[category]
	if q.limit > 0 && n >= q.limit {
		return n, false
	}
	q.counts[category] = n + 1
	return n + 1, true
}

// Count 返回类别当前计数
func (q *QuotaCounter) Count(category string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.counts[category]
}

// Snapshot 返回计数副本
func (q *QuotaCounter) Snapshot() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return maps.Clone(q.counts)
}

// Reset 清空计数，每次运行开始时调用
func (q *QuotaCounter) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.counts)
}
