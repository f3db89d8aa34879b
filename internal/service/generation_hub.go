package service

import (
	"context"
	"courseforge_backend/internal/model"
	"courseforge_backend/pkg/logger"
	"courseforge_backend/pkg/monitoring"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const eventChannel = "generation_events"

// Subscriber 一条打开的进度流
type Subscriber struct {
	Outbound chan model.GenerationEvent
	done     chan struct{}
	closing  sync.Once
}

func (s *Subscriber) close() {
	s.closing.Do(func() {
		close(s.done)
	})
}

// hubMessage redis 通道上的载荷
type hubMessage struct {
	JobID string                `json:"jobId"`
	Event model.GenerationEvent `json:"event"`
}

// GenerationHub 按 jobID 维护打开的进度流并广播事件。
// 纯推送原语：不缓冲、不回放，晚到的订阅者靠首帧状态快照对齐。
// 配置了 redis 时事件经 pub/sub 中转，多实例部署下各实例都能推送本地订阅者。
type GenerationHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Subscriber]bool
	redis       *redis.Client
	keepAlive   time.Duration
	ctx         context.Context
}

func NewGenerationHub(rdb *redis.Client, keepAliveSeconds int) *GenerationHub {
	if keepAliveSeconds <= 0 {
		keepAliveSeconds = 30
	}
	return &GenerationHub{
		subscribers: make(map[string]map[*Subscriber]bool),
		redis:       rdb,
		keepAlive:   time.Duration(keepAliveSeconds) * time.Second,
		ctx:         context.Background(),
	}
}

// Run 启动 redis 订阅转发，单机部署（redis 为 nil）时无事可做
func (h *GenerationHub) Run() {
	if h.redis == nil {
		return
	}

	pubsub := h.redis.Subscribe(h.ctx, eventChannel)
	ch := pubsub.Channel()
	for msg := range ch {
		var m hubMessage
		if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
			logger.Log.Error("generation pubsub unmarshal error", zap.Error(err))
			continue
		}
		h.deliverLocal(m.JobID, m.Event)
	}
}

func (h *GenerationHub) Subscribe(jobID string) *Subscriber {
	sub := &Subscriber{
		Outbound: make(chan model.GenerationEvent, 16),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	subs, ok := h.subscribers[jobID]
	if !ok {
		subs = make(map[*Subscriber]bool)
		h.subscribers[jobID] = subs
	}
	subs[sub] = true
	h.mu.Unlock()

	monitoring.SSEOpenStreams.Inc()
	return sub
}

func (h *GenerationHub) Unsubscribe(jobID string, sub *Subscriber) {
	h.mu.Lock()
	if subs, ok := h.subscribers[jobID]; ok {
		if subs[sub] {
			delete(subs, sub)
			monitoring.SSEOpenStreams.Dec()
		}
		if len(subs) == 0 {
			delete(h.subscribers, jobID)
		}
	}
	h.mu.Unlock()
	sub.close()
}

// Publish 把事件广播给该 jobID 的所有订阅者，发布方不感知投递失败
func (h *GenerationHub) Publish(jobID string, event model.GenerationEvent) {
	event.JobID = jobID

	if h.redis != nil {
		payload, _ := json.Marshal(hubMessage{JobID: jobID, Event: event})
		if err := h.redis.Publish(h.ctx, eventChannel, payload).Err(); err != nil {
			logger.Log.Warn("generation event publish failed, delivering locally", zap.Error(err))
			h.deliverLocal(jobID, event)
		}
		return
	}

	h.deliverLocal(jobID, event)
}

func (h *GenerationHub) deliverLocal(jobID string, event model.GenerationEvent) {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subscribers[jobID]))
	for sub := range h.subscribers[jobID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.Outbound <- event:
		default:
			// 写不进去说明通道已断或消费停滞，摘除该订阅者，不影响其他人
			logger.Log.Warn("dropping stalled progress stream", zap.String("jobId", jobID))
			h.Unsubscribe(jobID, sub)
		}
	}
}

// ClientCount 当前 jobID 打开的流数量
func (h *GenerationHub) ClientCount(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[jobID])
}

// CloseJob 强制关闭某 jobID 的全部流（记录被删除时调用）。
// 只停通知，不停后台任务本身。
func (h *GenerationHub) CloseJob(jobID string) {
	h.mu.Lock()
	subs := h.subscribers[jobID]
	delete(h.subscribers, jobID)
	h.mu.Unlock()

	for sub := range subs {
		sub.close()
		monitoring.SSEOpenStreams.Dec()
	}
}

// ServeSSE 把一条 gin 连接升级为 text/event-stream：
// 先推一帧当前状态快照，之后转发事件并按周期发注释保活
func (h *GenerationHub) ServeSSE(c *gin.Context, jobID string, snapshot interface{}) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sub := h.Subscribe(jobID)
	defer h.Unsubscribe(jobID, sub)

	// 首帧：当前完整状态，晚到的订阅者无需单独拉取
	if err := writeSSEEvent(c.Writer, model.GenerationEvent{
		Type:  model.EventStatus,
		JobID: jobID,
		Data:  snapshot,
	}); err != nil {
		return
	}
	flusher.Flush()

	keepalive := time.NewTicker(h.keepAlive)
	defer keepalive.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case <-keepalive.C:
			if _, err := fmt.Fprint(c.Writer, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case event := <-sub.Outbound:
			if err := writeSSEEvent(c.Writer, event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event model.GenerationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}
