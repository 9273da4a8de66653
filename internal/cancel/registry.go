package cancel

import (
	"sync"
	"sync/atomic"
)

// Handle 一次进行中的流式回合持有的取消标记
type Handle struct {
	key     string
	flagged atomic.Bool
	done    chan struct{}
	once    sync.Once
}

// Done 置位时关闭，供阻塞中的读取及时退出
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) signal() {
	h.flagged.Store(true)
	h.once.Do(func() { close(h.done) })
}

// Signalled 是否已被请求停止，非阻塞
func (h *Handle) Signalled() bool {
	return h.flagged.Load()
}

// Registry 进程内的取消标记表，键为对话ID
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Handle
}

// NewRegistry 创建取消标记表
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Handle)}
}

// Register 为对话登记新的取消标记，覆盖同键的旧登记
func (r *Registry) Register(key string) *Handle {
	h := &Handle{key: key, done: make(chan struct{})}
	r.mu.Lock()
	r.entries[key] = h
	r.mu.Unlock()
	return h
}

// Signal 置位对话的取消标记，键不存在时静默返回 false
func (r *Registry) Signal(key string) bool {
	r.mu.Lock()
	h, ok := r.entries[key]
	r.mu.Unlock()
	if !ok {
		return false
	}
	h.signal()
	return true
}

// Unregister 移除登记，仅当表中仍是该 handle 时才删除，可重复调用
func (r *Registry) Unregister(h *Handle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	if cur, ok := r.entries[h.key]; ok && cur == h {
		delete(r.entries, h.key)
	}
	r.mu.Unlock()
}

// Len 当前登记数量
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
