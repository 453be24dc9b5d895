package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"wplace/painter/log"
	"wplace/painter/model"
	"wplace/painter/system"
	"wplace/painter/thirdpart"
	"wplace/painter/tools"
)

// Actuator 页面执行器窄接口，由 page 包实现；
// 每次调用都是一个挂起点，UI 元素缺失时返回 *model.QuitError
type Actuator interface {
	MoveByPixel(ctx context.Context, dx, dy int) error
	ClickCurrentPixel(ctx context.Context) error
	OpenPaintPanel(ctx context.Context) error
	SelectColor(ctx context.Context, colorID int) error
	SubmitPaint(ctx context.Context) error
	CurrentCoord() model.PixelCoords
	Close()
}

// ActuatorFactory 在指定坐标打开一个可操作页面
type ActuatorFactory func(ctx context.Context, creds system.Credentials, coord model.PixelCoords) (Actuator, error)

// 调度参数
const (
	tokenExpireAhead = time.Minute
	minBatchPixels   = 10 // 凑不到这个数就不值得开一次页面

	idleWaitFloor  = 600.0  // charge 不足时的等待下限（秒）
	wakeHardCapSec = 3600.0 // 单次休眠上限
	wakeFactor     = 0.85
)

// 账号循环状态机
const (
	StateIdle         = "idle"
	StateChecking     = "checking"
	StateFetchingInfo = "fetching_info"
	StateSelecting    = "selecting"
	StatePainting     = "painting"
	StateSleeping     = "sleeping"
	StateStopped      = "stopped"
)

// Scheduler 单账号绘制调度循环。账号级状态只归本循环所有，
// 跨账号共享的只有颜色认领表。
type Scheduler struct {
	Acct         *system.AccountConfig
	Assembler    *SnapshotAssembler
	Claims       *ClaimRegistry
	OpenActuator ActuatorFactory

	// 可注入便于测试，默认走 thirdpart
	FetchInfo func(ctx context.Context, creds system.Credentials) (*model.UserInfo, error)
	Purchase  func(ctx context.Context, creds system.Credentials, item model.PurchaseItem, amount int) error

	mu       sync.Mutex
	state    string
	lastInfo *model.UserInfo
	nextWake time.Time
	lastErr  string
}

// SchedulerStatus 状态 API 用的只读快照
type SchedulerStatus struct {
	Identifier string         `json:"identifier"`
	State      string         `json:"state"`
	Charges    *model.Charges `json:"charges,omitempty"`
	Droplets   int            `json:"droplets"`
	NextWake   time.Time      `json:"nextWake,omitempty"`
	LastError  string         `json:"lastError,omitempty"`
}

func NewScheduler(acct *system.AccountConfig, assembler *SnapshotAssembler, open ActuatorFactory) *Scheduler {
	return &Scheduler{
		Acct:         acct,
		Assembler:    assembler,
		Claims:       Claims,
		OpenActuator: open,
		FetchInfo:    thirdpart.FetchUserInfo,
		Purchase:     thirdpart.Purchase,
		state:        StateIdle,
	}
}

func (s *Scheduler) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := SchedulerStatus{
		Identifier: s.Acct.Identifier,
		State:      s.state,
		NextWake:   s.nextWake,
		LastError:  s.lastErr,
	}
	if s.lastInfo != nil {
		c := s.lastInfo.Charges
		st.Charges = &c
		st.Droplets = s.lastInfo.Droplets
	}
	return st
}

// Run 账号主循环，ctx 取消或收到账号级致命信号时返回。
// 单轮非致命错误只退避重试，绝不向上抛。
func (s *Scheduler) Run(ctx context.Context) {
	l := log.WithAccount(s.Acct.Identifier)
	l.Info("paint loop started")

	for {
		waitSecs, err := s.runCycle(ctx, l)

		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			s.setState(StateStopped)
			l.Info("paint loop cancelled")
			return
		default:
			var quit *model.QuitError
			if errors.As(err, &quit) {
				s.setState(StateStopped)
				l.Warnf("paint loop stopped: %s", quit.Reason)
				return
			}
			s.mu.Lock()
			s.lastErr = err.Error()
			s.mu.Unlock()
			l.Errorf("cycle failed: %v", err)
			waitSecs = tools.RandBetween(60, 180)
		}

		if waitSecs <= 0 {
			continue // charge 已经够了，立刻进入下一轮
		}
		s.mu.Lock()
		s.nextWake = time.Now().Add(time.Duration(waitSecs * float64(time.Second)))
		s.mu.Unlock()
		s.setState(StateSleeping)
		l.Infof("sleeping for %.1f minutes", waitSecs/60)
		if !tools.SleepCtx(ctx.Done(), time.Duration(waitSecs*float64(time.Second))) {
			s.setState(StateStopped)
			l.Info("paint loop cancelled")
			return
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context, l *logrus.Entry) (float64, error) {
	s.setState(StateChecking)
	if tools.IsTokenExpired(s.Acct.Credentials.Token, tokenExpireAhead) {
		return 0, model.Quitf("session token expired")
	}

	s.setState(StateFetchingInfo)
	info, err := s.fetchInfo(ctx)
	if err != nil {
		return 0, err
	}
	l.Infof("droplets %d, charge %.2f/%d, remaining %.0fs",
		info.Droplets, info.Charges.Count, info.Charges.Max, info.Charges.RemainingSecs())

	if info.Charges.Count < float64(s.Acct.MinPaintCharges) {
		l.Warnf("not enough charges to paint (%.1f < %d)", info.Charges.Count, s.Acct.MinPaintCharges)
		wait := math.Max(idleWaitFloor, info.Charges.RemainingSecs()-tools.RandBetween(10, 20)*60)
		return wait, nil
	}

	painted, err := s.paintOnce(ctx, l, info)
	if err != nil {
		return 0, err
	}

	info, err = s.fetchInfo(ctx)
	if err != nil {
		return 0, err
	}
	if purchased, err := s.autoPurchase(ctx, l, info); err != nil {
		l.Warnf("auto purchase failed: %v", err)
	} else if purchased {
		if info, err = s.fetchInfo(ctx); err != nil {
			return 0, err
		}
	}

	if !painted {
		// 没活可干或凑不满一批，闲置等待
		return tools.RandBetween(25*60, 35*60), nil
	}
	return s.computeWait(info), nil
}

func (s *Scheduler) fetchInfo(ctx context.Context) (*model.UserInfo, error) {
	info, err := s.FetchInfo(ctx, s.Acct.Credentials)
	if err != nil {
		return nil, err
	}
	if info.Banned {
		return nil, model.Quitf("account is banned from painting")
	}
	s.mu.Lock()
	s.lastInfo = info
	s.mu.Unlock()
	return info, nil
}

// paintOnce 选色、聚类、认领并驱动页面画完一批；
// 返回是否确实画了东西
func (s *Scheduler) paintOnce(ctx context.Context, l *logrus.Entry, info *model.UserInfo) (bool, error) {
	s.setState(StateSelecting)
	sel, workRemaining, err := SelectColors(ctx, s.Assembler, s.Acct, info, s.Claims)
	if err != nil {
		return false, err
	}
	if sel == nil {
		if !workRemaining {
			return false, model.Quitf("template complete, no more work")
		}
		l.Warnf("no available colors to paint right now")
		return false, nil
	}
	l.Infof("selected colors %v, %d pixels", sel.ColorNames(), sel.TotalPixels())

	points := make([]ClusterPoint, 0, sel.TotalPixels())
	for _, e := range sel.Entries {
		id := model.ColorsID[e.Name]
		for _, px := range e.Pixels {
			points = append(points, ClusterPoint{X: px.X, Y: px.Y, ColorID: id})
		}
	}
	groups := GroupAdjacent(points, DefaultMinGroupSize, DefaultMergeDistance)

	release := s.Claims.Acquire(sel.ColorNames())
	defer release()

	budget := int(info.Charges.Count) - tools.RandIntBetween(5, 10)
	if budget > len(points) {
		budget = len(points)
	}
	if budget < minBatchPixels {
		l.Warnf("not enough pixels to paint (budget %d)", budget)
		return false, nil
	}

	s.setState(StatePainting)
	if err := s.drive(ctx, l, sel, groups, budget); err != nil {
		return false, err
	}
	release()
	return true, nil
}

// drive 按组序/点序驱动页面：拖动-点击逐像素推进，颜色变化时重新选色
func (s *Scheduler) drive(ctx context.Context, l *logrus.Entry, sel *Selection, groups []*PixelGroup, budget int) error {
	base := sel.Template.Coords
	first := groups[0].Points[0]

	act, err := s.OpenActuator(ctx, s.Acct.Credentials, base.Offset(first.X, first.Y))
	if err != nil {
		return fmt.Errorf("open actuator: %w", err)
	}
	defer act.Close()

	delay := tools.RandDuration(3, 10)
	l.Infof("waiting %.1fs before painting", delay.Seconds())
	if !tools.SleepCtx(ctx.Done(), delay) {
		return ctx.Err()
	}
	if err := act.OpenPaintPanel(ctx); err != nil {
		return err
	}

	painted := 0
	prevX, prevY := first.X, first.Y
	currColor := -1
paintLoop:
	for _, g := range groups {
		for _, p := range g.Points {
			if painted >= budget {
				break paintLoop
			}
			if p.ColorID != currColor {
				if err := act.SelectColor(ctx, p.ColorID); err != nil {
					return err
				}
				currColor = p.ColorID
			}
			if err := act.MoveByPixel(ctx, p.X-prevX, p.Y-prevY); err != nil {
				return err
			}
			if err := act.ClickCurrentPixel(ctx); err != nil {
				return err
			}
			prevX, prevY = p.X, p.Y
			painted++
		}
	}
	l.Infof("clicked %d pixels, submitting", painted)

	delay = tools.RandDuration(3, 10)
	if !tools.SleepCtx(ctx.Done(), delay) {
		return ctx.Err()
	}
	return act.SubmitPaint(ctx)
}

// autoPurchase 按配置把多余 droplets 换成上限/余额，保留储备不动
func (s *Scheduler) autoPurchase(ctx context.Context, l *logrus.Entry, info *model.UserInfo) (bool, error) {
	ap := s.Acct.AutoPurchase
	if ap == nil {
		return false, nil
	}

	affordable := (info.Droplets - ap.RetainDroplets) / model.PurchaseMaxCharge5.Price()
	if affordable <= 0 {
		return false, nil
	}

	switch ap.Type {
	case "max_charges":
		if ap.TargetMax > 0 && info.Charges.Max >= ap.TargetMax {
			return false, nil
		}
		amount := affordable
		if ap.TargetMax > 0 {
			if need := (ap.TargetMax - info.Charges.Max) / 5; need < amount {
				amount = need
			}
		}
		if amount <= 0 {
			return false, nil
		}
		l.Infof("auto-purchasing max charges: current=%d target=%d amount=%d",
			info.Charges.Max, ap.TargetMax, amount)
		return true, s.Purchase(ctx, s.Acct.Credentials, model.PurchaseMaxCharge5, amount)

	case "charges":
		l.Infof("auto-purchasing charges: current=%.1f amount=%d", info.Charges.Count, affordable)
		return true, s.Purchase(ctx, s.Acct.Credentials, model.PurchaseCharge30, affordable)
	}
	return false, fmt.Errorf("unknown auto purchase type %q", ap.Type)
}

// computeWait 下次唤醒：min(剩余恢复时间*系数, 硬上限) 减去小抖动；
// charge 已足够时返回 0，跳过休眠直接下一轮
func (s *Scheduler) computeWait(info *model.UserInfo) float64 {
	if info.Charges.Count >= float64(s.Acct.MinPaintCharges) {
		return 0
	}
	wait := math.Min(info.Charges.RemainingSecs()*wakeFactor, wakeHardCapSec)
	wait -= tools.RandBetween(0, 60)
	if wait < 0 {
		wait = 0
	}
	return wait
}
