package stub

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"yqhp/loadgen/internal/payload"
)

// maxTraces 内存中保留的 trace 数量上限，超出后淘汰最早的
const maxTraces = 10000

// Correlation 同一 trace 下日志的聚合
type Correlation struct {
	TraceID    string `json:"trace_id"`
	Service    string `json:"service"`
	LogCount   int    `json:"log_count"`
	ErrorCount int    `json:"error_count"`
	FirstSeen  string `json:"first_seen"`
	LastSeen   string `json:"last_seen"`
}

// Review 评审记录
type Review struct {
	ID        string `json:"id"`
	Event     string `json:"event"`
	Severity  string `json:"severity"`
	Summary   string `json:"summary"`
	UpdatedAt string `json:"updated_at"`
}

type store struct {
	mu sync.Mutex

	traces      map[string]*Correlation
	order       []string
	errorTraces int

	reviews []*Review
	byID    map[string]*Review
}

func newStore(reviews int, now time.Time) *store {
	s := &store{
		traces: make(map[string]*Correlation),
		byID:   make(map[string]*Review),
	}
	severities := []string{"low", "medium", "high"}
	for i := 1; i <= reviews; i++ {
		r := &Review{
			ID:        fmt.Sprintf("%d", i),
			Event:     fmt.Sprintf("incident-%03d", i),
			Severity:  severities[i%len(severities)],
			Summary:   "pending review",
			UpdatedAt: now.UTC().Format(time.RFC3339),
		}
		s.reviews = append(s.reviews, r)
		s.byID[r.ID] = r
	}
	return s
}

// ingest 按 trace 聚合日志，返回各级别的条数
func (s *store) ingest(batch payload.Batch) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	levels := make(map[string]int)
	for _, rec := range batch.Logs {
		levels[rec.Level]++
		if rec.TraceID == "" {
			continue
		}
		c, ok := s.traces[rec.TraceID]
		if !ok {
			c = &Correlation{TraceID: rec.TraceID, Service: rec.Service, FirstSeen: rec.Timestamp}
			s.traces[rec.TraceID] = c
			s.order = append(s.order, rec.TraceID)
			s.evictLocked()
		}
		c.LogCount++
		if rec.Level == "error" {
			if c.ErrorCount == 0 {
				s.errorTraces++
			}
			c.ErrorCount++
		}
		c.LastSeen = rec.Timestamp
	}
	return levels
}

func (s *store) evictLocked() {
	for len(s.order) > maxTraces {
		if s.traces[s.order[0]].ErrorCount > 0 {
			s.errorTraces--
		}
		delete(s.traces, s.order[0])
		s.order = s.order[1:]
	}
}

// correlations 返回含 error 日志的 trace，按 trace id 排序
func (s *store) correlations(limit int) []Correlation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Correlation, 0)
	for _, c := range s.traces {
		if c.ErrorCount > 0 {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TraceID < out[j].TraceID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *store) correlationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorTraces
}

func (s *store) listReviews() []Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Review, 0, len(s.reviews))
	for _, r := range s.reviews {
		out = append(out, *r)
	}
	return out
}

// updateReview 更新摘要，记录不存在时返回 false
func (s *store) updateReview(id, summary string, now time.Time) (Review, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return Review{}, false
	}
	r.Summary = summary
	r.UpdatedAt = now.UTC().Format(time.RFC3339)
	return *r, true
}
