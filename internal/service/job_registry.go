package service

import (
	"courseforge_backend/pkg/logger"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// JobRegistry 登记在跑的后台生成任务，是回答
// “这个 jobID 是否还有任务在执行”的唯一出处，也是将来接取消的挂点。
// 当前没有取消语义：删除记录只关流，不停任务。
type JobRegistry struct {
	mu      sync.Mutex
	running map[string]bool
}

func NewJobRegistry() *JobRegistry {
	return &JobRegistry{running: make(map[string]bool)}
}

// TryStart 占用 jobID，已有任务在跑则返回 false
func (r *JobRegistry) TryStart(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running[jobID] {
		return false
	}
	r.running[jobID] = true
	return true
}

func (r *JobRegistry) Finish(jobID string) {
	r.mu.Lock()
	delete(r.running, jobID)
	r.mu.Unlock()
}

func (r *JobRegistry) IsRunning(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[jobID]
}

// Go 在登记后的 goroutine 里执行任务，panic 只杀任务不杀进程
func (r *JobRegistry) Go(jobID string, fn func()) bool {
	if !r.TryStart(jobID) {
		return false
	}
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Log.Error("background job panicked",
					zap.String("jobId", jobID),
					zap.String("panic", fmt.Sprint(rec)),
				)
			}
			r.Finish(jobID)
		}()
		fn()
	}()
	return true
}
