package host

import (
	"sync"
	"time"
)

// Debouncer 按 key 合并短时间内的多次保存，只执行最后一次
type Debouncer struct {
	delay   time.Duration
	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string]func()
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]func()),
	}
}

// Trigger 登记 key 对应的保存函数并重置计时；delay 为 0 时立即执行
func (d *Debouncer) Trigger(key string, fn func()) {
	if d.delay <= 0 {
		fn()
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[key] = fn
	if timer, ok := d.timers[key]; ok {
		timer.Stop()
	}
	d.timers[key] = time.AfterFunc(d.delay, func() { d.fire(key) })
}

func (d *Debouncer) fire(key string) {
	d.mu.Lock()
	fn, ok := d.pending[key]
	delete(d.pending, key)
	delete(d.timers, key)
	d.mu.Unlock()

	if ok {
		fn()
	}
}

// Pending 尚未执行的保存数量
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush 立即执行所有尚未执行的保存
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fns := make([]func(), 0, len(d.pending))
	for key, fn := range d.pending {
		fns = append(fns, fn)
		if timer, ok := d.timers[key]; ok {
			timer.Stop()
		}
	}
	d.pending = make(map[string]func())
	d.timers = make(map[string]*time.Timer)
	d.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
