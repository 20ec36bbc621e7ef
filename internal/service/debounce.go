// internal/service/debounce.go
package service

import (
	"sync"
	"time"
)

// KeyedDebouncer はキーごとに独立したデバウンスタイマーを持ちます。
// 記述式回答の自動保存に使用: 同じ問題への連続入力は最後の1回だけ保存し、
// 別の問題のタイマーはキャンセルしない (共有タイマー1本だと、2問を続けて
// 編集したとき先の問題の保存が落ちる)。
type KeyedDebouncer struct {
	mu     sync.Mutex
	delay  time.Duration
	timers map[string]*time.Timer
	// Flush用に最後にスケジュールした処理を保持
	pending map[string]func()
}

func NewKeyedDebouncer(delay time.Duration) *KeyedDebouncer {
	return &KeyedDebouncer{
		delay:   delay,
		timers:  make(map[string]*time.Timer),
		pending: make(map[string]func()),
	}
}

// Trigger はキーのタイマーを張り直します。delay経過後にfnが1回だけ実行されます。
func (d *KeyedDebouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	d.pending[key] = fn
	d.timers[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		fn, ok := d.pending[key]
		delete(d.pending, key)
		delete(d.timers, key)
		d.mu.Unlock()
		if ok && fn != nil {
			fn()
		}
	})
}

// FlushAll は待機中の処理をすべて即時実行します (提出前の書き出しに使用)。
func (d *KeyedDebouncer) FlushAll() {
	d.mu.Lock()
	fns := make([]func(), 0, len(d.pending))
	for key, fn := range d.pending {
		if t, ok := d.timers[key]; ok {
			t.Stop()
		}
		if fn != nil {
			fns = append(fns, fn)
		}
		delete(d.pending, key)
		delete(d.timers, key)
	}
	d.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// StopAll は待機中の処理を実行せずに破棄します。
func (d *KeyedDebouncer) StopAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, t := range d.timers {
		t.Stop()
		delete(d.timers, key)
		delete(d.pending, key)
	}
}
