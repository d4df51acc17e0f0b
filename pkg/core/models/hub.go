package models

import (
	"sync"

	"SeqNet/pkg/network"
)

// subscriberBuffer 每个订阅者缓冲的汇报数，缓冲满时丢弃新汇报
const subscriberBuffer = 64

// Hub 将训练汇报广播给所有订阅者
type Hub struct {
	mu     sync.Mutex
	subs   map[chan network.EpochReport]struct{}
	closed bool
}

// NewHub 创建广播器
func NewHub() *Hub {
	return &Hub{subs: make(map[chan network.EpochReport]struct{})}
}

// Subscribe 订阅训练汇报，返回的函数用于取消订阅
// 广播器关闭后返回已关闭的通道
func (h *Hub) Subscribe() (<-chan network.EpochReport, func()) {
	ch := make(chan network.EpochReport, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// Publish 非阻塞地发送汇报，慢订阅者会丢失消息
func (h *Hub) Publish(r network.EpochReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- r:
		default:
		}
	}
}

// Subscribers 当前订阅者数量
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close 关闭所有订阅通道
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = nil
}
