package engine

import "sync"

// ProgressSnapshot is a point-in-time copy of the live cursor.
type ProgressSnapshot struct {
	ExecutionID string `json:"execution_id"`
	FileName    string `json:"file_name"`
	FilePath    string `json:"file_path"`
	Index       int64  `json:"index"`
	Total       *int64 `json:"total,omitempty"`
}

// Progress is the in-memory "currently processing" cursor of a running
// execution. Writes come from the single transfer goroutine; reads come
// from concurrent status queries and never block the write path beyond the
// mutex hold.
type Progress struct {
	mu          sync.RWMutex
	executionID string
	fileName    string
	filePath    string
	index       int64
	total       *int64
}

func NewProgress(executionID string) *Progress {
	return &Progress{executionID: executionID}
}

// Advance moves the cursor to the next per-file record.
func (p *Progress) Advance(fileName, filePath string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index++
	p.fileName = fileName
	p.filePath = filePath
	return p.index
}

// SetTotal records the total once known; later calls are ignored.
func (p *Progress) SetTotal(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total == nil {
		p.total = &total
	}
}

func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap := ProgressSnapshot{
		ExecutionID: p.executionID,
		FileName:    p.fileName,
		FilePath:    p.filePath,
		Index:       p.index,
	}
	if p.total != nil {
		t := *p.total
		snap.Total = &t
	}
	return snap
}

// progressRegistry tracks the live cursor of every running execution.
type progressRegistry struct {
	mu sync.RWMutex
	m  map[string]*Progress
}

func newProgressRegistry() *progressRegistry {
	return &progressRegistry{m: make(map[string]*Progress)}
}

func (r *progressRegistry) add(p *Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[p.executionID] = p
}

func (r *progressRegistry) remove(executionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, executionID)
}

func (r *progressRegistry) get(executionID string) (*Progress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.m[executionID]
	return p, ok
}
