package service

import (
	"sort"
	"sync"
)

// ClaimRegistry 跨账号的颜色互斥注册表。
// 获取顺序固定：先拿全局 claimer 锁，再按字典序逐个拿颜色锁，
// 全部到手后放掉 claimer 锁、保留颜色锁——这是唯一的防死锁机制，
// 任何调用方都不得绕过本 API 触碰锁表。
type ClaimRegistry struct {
	claimer sync.Mutex

	mu    sync.Mutex // 保护 locks / held
	locks map[string]*sync.Mutex
	held  map[string]bool
}

func NewClaimRegistry() *ClaimRegistry {
	return &ClaimRegistry{
		locks: map[string]*sync.Mutex{},
		held:  map[string]bool{},
	}
}

// Claims 全局注册表，所有账号循环共用
var Claims = NewClaimRegistry()

func (r *ClaimRegistry) colorLock(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[name]
	if !ok {
		l = &sync.Mutex{}
		r.locks[name] = l
	}
	return l
}

// Acquire 独占认领一组颜色，阻塞直到全部到手。
// 返回的 release 幂等，必须在绘制尝试结束的所有路径上调用（defer）。
func (r *ClaimRegistry) Acquire(names []string) (release func()) {
	sorted := make([]string, 0, len(names))
	seen := map[string]bool{}
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			sorted = append(sorted, n)
		}
	}
	sort.Strings(sorted)

	taken := make([]*sync.Mutex, 0, len(sorted))
	r.claimer.Lock()
	for _, n := range sorted {
		l := r.colorLock(n)
		l.Lock()
		taken = append(taken, l)
		r.mu.Lock()
		r.held[n] = true
		r.mu.Unlock()
	}
	r.claimer.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			for i, n := range sorted {
				r.mu.Lock()
				r.held[n] = false
				r.mu.Unlock()
				taken[i].Unlock()
			}
		})
	}
}

// Locked 只读探测颜色是否已被认领，选色阶段用，不阻塞
func (r *ClaimRegistry) Locked(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held[name]
}
