package service

import "sync"

// 状态 API 只读访问各账号调度器的注册表
var (
	regMu      sync.Mutex
	schedulers []*Scheduler
)

// RegisterScheduler 注册账号调度器，启动时调用
func RegisterScheduler(s *Scheduler) {
	regMu.Lock()
	defer regMu.Unlock()
	schedulers = append(schedulers, s)
}

// AllStatuses 全部账号的状态快照
func AllStatuses() []SchedulerStatus {
	regMu.Lock()
	defer regMu.Unlock()
	out := make([]SchedulerStatus, 0, len(schedulers))
	for _, s := range schedulers {
		out = append(out, s.Status())
	}
	return out
}

// FindScheduler 按账号标识查调度器，未找到返回 nil
func FindScheduler(identifier string) *Scheduler {
	regMu.Lock()
	defer regMu.Unlock()
	for _, s := range schedulers {
		if s.Acct.Identifier == identifier {
			return s
		}
	}
	return nil
}
