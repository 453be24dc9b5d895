package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	"wplace/painter/log"
	"wplace/painter/model"
	"wplace/painter/system"
)

func futureToken(t *testing.T) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString(
		[]byte(fmt.Sprintf(`{"exp":%d}`, time.Now().Add(24*time.Hour).Unix())))
	return header + "." + payload + ".x"
}

type fakeActuator struct {
	coord     model.PixelCoords
	selects   []int
	clicks    []model.PixelCoords
	panel     bool
	submitted bool
	closed    bool
}

func (f *fakeActuator) MoveByPixel(ctx context.Context, dx, dy int) error {
	f.coord = f.coord.Offset(dx, dy)
	return nil
}
func (f *fakeActuator) ClickCurrentPixel(ctx context.Context) error {
	f.clicks = append(f.clicks, f.coord)
	return nil
}
func (f *fakeActuator) OpenPaintPanel(ctx context.Context) error { f.panel = true; return nil }
func (f *fakeActuator) SelectColor(ctx context.Context, colorID int) error {
	f.selects = append(f.selects, colorID)
	return nil
}
func (f *fakeActuator) SubmitPaint(ctx context.Context) error { f.submitted = true; return nil }
func (f *fakeActuator) CurrentCoord() model.PixelCoords       { return f.coord }
func (f *fakeActuator) Close()                                { f.closed = true }

func TestComputeWait(t *testing.T) {
	s := &Scheduler{Acct: &system.AccountConfig{MinPaintCharges: 10}}

	full := &model.UserInfo{Charges: model.Charges{Count: 20, Max: 100, CooldownMs: 30000}}
	if got := s.computeWait(full); got != 0 {
		t.Fatalf("enough charges must not sleep: %v", got)
	}

	low := &model.UserInfo{Charges: model.Charges{Count: 2, Max: 100, CooldownMs: 30000}}
	remaining := low.Charges.RemainingSecs()
	for i := 0; i < 50; i++ {
		got := s.computeWait(low)
		upper := remaining * wakeFactor
		if upper > wakeHardCapSec {
			upper = wakeHardCapSec
		}
		if got > upper || got < upper-60 {
			t.Fatalf("wait %v outside [%v, %v]", got, upper-60, upper)
		}
	}
}

func TestRunCycleWaitsWhenChargesLow(t *testing.T) {
	acct := testAccount(t, twoColorTemplate(), nil)
	acct.Credentials.Token = futureToken(t)

	s := NewScheduler(acct, &SnapshotAssembler{}, nil)
	s.Claims = NewClaimRegistry()
	s.FetchInfo = func(ctx context.Context, creds system.Credentials) (*model.UserInfo, error) {
		return &model.UserInfo{Charges: model.Charges{Count: 3, Max: 100, CooldownMs: 30000}}, nil
	}

	wait, err := s.runCycle(context.Background(), log.WithAccount("test"))
	if err != nil {
		t.Fatal(err)
	}
	// remaining 2910s，等待 = max(600, remaining - 10~20 分钟随机)
	if wait < 600 || wait > 2910 {
		t.Fatalf("wait out of range: %v", wait)
	}
}

func TestRunCycleQuitsOnExpiredToken(t *testing.T) {
	acct := testAccount(t, twoColorTemplate(), nil)
	acct.Credentials.Token = "not-a-jwt"

	s := NewScheduler(acct, &SnapshotAssembler{}, nil)
	_, err := s.runCycle(context.Background(), log.WithAccount("test"))
	var quit *model.QuitError
	if !errors.As(err, &quit) {
		t.Fatalf("expected QuitError, got %v", err)
	}
}

func TestFetchInfoBanned(t *testing.T) {
	acct := testAccount(t, twoColorTemplate(), nil)
	s := NewScheduler(acct, &SnapshotAssembler{}, nil)
	s.FetchInfo = func(ctx context.Context, creds system.Credentials) (*model.UserInfo, error) {
		return &model.UserInfo{Banned: true}, nil
	}

	_, err := s.fetchInfo(context.Background())
	var quit *model.QuitError
	if !errors.As(err, &quit) {
		t.Fatalf("expected QuitError for banned account, got %v", err)
	}
}

func TestPaintOnceQuitsWhenTemplateComplete(t *testing.T) {
	tpl := twoColorTemplate()
	acct := testAccount(t, tpl, nil)
	s := NewScheduler(acct, &SnapshotAssembler{Fetch: canvasFetcher(t, tpl)}, nil)
	s.Claims = NewClaimRegistry()

	info := &model.UserInfo{Charges: model.Charges{Count: 50}}
	_, err := s.paintOnce(context.Background(), log.WithAccount("test"), info)
	var quit *model.QuitError
	if !errors.As(err, &quit) {
		t.Fatalf("expected QuitError for finished template, got %v", err)
	}
}

func TestPaintOnceSkipsSmallBatch(t *testing.T) {
	// 仅 4 个错配像素，凑不满一批，不开页面
	tpl := twoColorTemplate()
	acct := testAccount(t, tpl, nil)
	acct.Template.Crop = &model.CropRect{MinX: 0, MinY: 0, MaxX: 3, MaxY: 1} // 只剩 Red 上半区

	s := NewScheduler(acct, &SnapshotAssembler{Fetch: canvasFetcher(t, nil)}, func(ctx context.Context, creds system.Credentials, coord model.PixelCoords) (Actuator, error) {
		t.Fatal("actuator must not be opened for a small batch")
		return nil, nil
	})
	s.Claims = NewClaimRegistry()

	info := &model.UserInfo{Charges: model.Charges{Count: 12}}
	ok, err := s.paintOnce(context.Background(), log.WithAccount("test"), info)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("small batch must not count as painted")
	}
	// 认领必须已释放
	if s.Claims.Locked("Red") {
		t.Fatal("claims leaked after skipped batch")
	}
}

func TestDrive(t *testing.T) {
	base := model.PixelCoords{TlX: 100, TlY: 100, PxX: 10, PxY: 10}
	sel := &Selection{Template: &model.Template{Coords: base}}

	// 两块不同颜色且相距较远的像素组
	points := append(block(0, 0, 4, 4, 1), block(100, 0, 4, 4, 7)...)
	groups := GroupAdjacent(points, 1, 40)
	if len(groups) != 2 {
		t.Fatalf("setup: expected 2 groups, got %d", len(groups))
	}

	var fake *fakeActuator
	s := &Scheduler{
		Acct: &system.AccountConfig{Identifier: "test"},
		OpenActuator: func(ctx context.Context, creds system.Credentials, coord model.PixelCoords) (Actuator, error) {
			fake = &fakeActuator{coord: coord}
			return fake, nil
		},
	}

	budget := len(points)
	if err := s.drive(context.Background(), log.WithAccount("test"), sel, groups, budget); err != nil {
		t.Fatal(err)
	}

	if !fake.panel || !fake.submitted || !fake.closed {
		t.Fatalf("lifecycle: panel=%v submitted=%v closed=%v", fake.panel, fake.submitted, fake.closed)
	}
	if len(fake.clicks) != budget {
		t.Fatalf("clicks: got %d want %d", len(fake.clicks), budget)
	}
	// 每组一种颜色，只在颜色切换时重新选色
	if len(fake.selects) != 2 {
		t.Fatalf("selects: %v", fake.selects)
	}
	// 点击位置应与组内点序一一对应
	i := 0
	for _, g := range groups {
		for _, p := range g.Points {
			want := base.Offset(p.X, p.Y)
			if fake.clicks[i] != want {
				t.Fatalf("click %d: got %v want %v", i, fake.clicks[i], want)
			}
			i++
		}
	}
}

func TestDriveRespectsBudget(t *testing.T) {
	base := model.PixelCoords{TlX: 0, TlY: 0, PxX: 0, PxY: 0}
	sel := &Selection{Template: &model.Template{Coords: base}}
	points := block(0, 0, 5, 5, 1)
	groups := GroupAdjacent(points, 1, 40)

	var fake *fakeActuator
	s := &Scheduler{
		Acct: &system.AccountConfig{Identifier: "test"},
		OpenActuator: func(ctx context.Context, creds system.Credentials, coord model.PixelCoords) (Actuator, error) {
			fake = &fakeActuator{coord: coord}
			return fake, nil
		},
	}

	if err := s.drive(context.Background(), log.WithAccount("test"), sel, groups, 10); err != nil {
		t.Fatal(err)
	}
	if len(fake.clicks) != 10 {
		t.Fatalf("budget overrun: %d clicks", len(fake.clicks))
	}
	if !fake.submitted {
		t.Fatal("must submit the partial batch")
	}
}

func TestDriveStopsAtBudgetAcrossGroups(t *testing.T) {
	base := model.PixelCoords{TlX: 0, TlY: 0, PxX: 0, PxY: 0}
	sel := &Selection{Template: &model.Template{Coords: base}}

	// 预算在第一组内耗尽，后续分组不得再触碰
	points := append(block(0, 0, 4, 4, 1), block(200, 0, 4, 4, 7)...)
	groups := GroupAdjacent(points, 1, 40)
	if len(groups) != 2 {
		t.Fatalf("setup: expected 2 groups, got %d", len(groups))
	}

	var fake *fakeActuator
	s := &Scheduler{
		Acct: &system.AccountConfig{Identifier: "test"},
		OpenActuator: func(ctx context.Context, creds system.Credentials, coord model.PixelCoords) (Actuator, error) {
			fake = &fakeActuator{coord: coord}
			return fake, nil
		},
	}

	if err := s.drive(context.Background(), log.WithAccount("test"), sel, groups, 12); err != nil {
		t.Fatal(err)
	}
	if len(fake.clicks) != 12 {
		t.Fatalf("clicks: got %d want 12", len(fake.clicks))
	}
	// 第二组的颜色从未被选中
	if len(fake.selects) != 1 || fake.selects[0] != groups[0].Points[0].ColorID {
		t.Fatalf("selects: %v", fake.selects)
	}
	if !fake.submitted {
		t.Fatal("must submit the partial batch")
	}
}

func TestAutoPurchase(t *testing.T) {
	type call struct {
		item   model.PurchaseItem
		amount int
	}
	var calls []call

	acct := &system.AccountConfig{Identifier: "test"}
	s := NewScheduler(acct, &SnapshotAssembler{}, nil)
	s.Purchase = func(ctx context.Context, creds system.Credentials, item model.PurchaseItem, amount int) error {
		calls = append(calls, call{item, amount})
		return nil
	}
	l := log.WithAccount("test")

	// 未配置
	if ok, err := s.autoPurchase(context.Background(), l, &model.UserInfo{Droplets: 9999}); ok || err != nil {
		t.Fatalf("nil config: %v %v", ok, err)
	}

	// max_charges：扣除储备后买得起 5 件，目标差距只需 2 件
	acct.AutoPurchase = &system.AutoPurchase{Type: "max_charges", TargetMax: 110, RetainDroplets: 500}
	info := &model.UserInfo{Droplets: 3000, Charges: model.Charges{Max: 100}}
	ok, err := s.autoPurchase(context.Background(), l, info)
	if err != nil || !ok {
		t.Fatalf("max_charges: %v %v", ok, err)
	}
	if len(calls) != 1 || calls[0].item != model.PurchaseMaxCharge5 || calls[0].amount != 2 {
		t.Fatalf("max_charges call: %+v", calls)
	}

	// 已达目标上限
	info.Charges.Max = 110
	if ok, _ := s.autoPurchase(context.Background(), l, info); ok {
		t.Fatal("target reached, must not purchase")
	}

	// charges：全部多余 droplets 换余额
	calls = nil
	acct.AutoPurchase = &system.AutoPurchase{Type: "charges", RetainDroplets: 1000}
	ok, err = s.autoPurchase(context.Background(), l, &model.UserInfo{Droplets: 2600})
	if err != nil || !ok {
		t.Fatalf("charges: %v %v", ok, err)
	}
	if len(calls) != 1 || calls[0].item != model.PurchaseCharge30 || calls[0].amount != 3 {
		t.Fatalf("charges call: %+v", calls)
	}

	// 扣除储备后买不起
	if ok, _ := s.autoPurchase(context.Background(), l, &model.UserInfo{Droplets: 999}); ok {
		t.Fatal("cannot afford, must not purchase")
	}

	// 未知类型报错
	acct.AutoPurchase = &system.AutoPurchase{Type: "bogus"}
	if _, err := s.autoPurchase(context.Background(), l, &model.UserInfo{Droplets: 9999}); err == nil {
		t.Fatal("unknown type must error")
	}
}
