package tools

import (
	"math/rand"
	"time"
)

// RandBetween [lo, hi) 区间内的随机数
func RandBetween(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + rand.Float64()*(hi-lo)
}

// RandIntBetween [lo, hi] 区间内的随机整数
func RandIntBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rand.Intn(hi-lo+1)
}

// RandDuration 随机时长，秒为单位
func RandDuration(loSecs, hiSecs float64) time.Duration {
	return time.Duration(RandBetween(loSecs, hiSecs) * float64(time.Second))
}

// SleepCtx 可取消的睡眠；被取消时返回 false
func SleepCtx(done <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return false
	case <-t.C:
		return true
	}
}
