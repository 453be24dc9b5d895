package page

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wplace/painter/log"
	"wplace/painter/model"
	"wplace/painter/system"
	"wplace/painter/tools"
)

// ZoomLevel 页面缩放级别，决定一个画布像素占多少屏幕像素
type ZoomLevel float64

const (
	Zoom16 ZoomLevel = 16
	Zoom15 ZoomLevel = 15
)

// 各 zoom 级别下单个画布像素的屏幕尺寸（实测标定）
var zoomPixelSize = map[ZoomLevel]float64{
	Zoom16: 16,
	Zoom15: 7.65,
}

const (
	viewportWidth  = 1280
	viewportHeight = 720

	paintBtnSelector = `.disable-pinch-zoom > div.absolute .btn.btn-primary.btn-lg`
)

// Page 定位在某个画布坐标上的 wplace 页面，屏幕中心即当前像素
type Page struct {
	client    *cdpClient
	sessionID string
	targetID  string

	zoom    ZoomLevel
	current model.PixelCoords
}

// Open 建立 CDP 连接、写入会话 cookie 并打开定位到 coord 的页面。
// 调用方负责在所有路径上 Close。
func Open(ctx context.Context, endpoint string, creds system.Credentials, coord model.PixelCoords, zoom ZoomLevel) (*Page, error) {
	client, err := dialCDP(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	p := &Page{client: client, zoom: zoom, current: coord}
	if err := p.setup(ctx, creds, coord); err != nil {
		client.close()
		return nil, err
	}
	return p, nil
}

func (p *Page) setup(ctx context.Context, creds system.Credentials, coord model.PixelCoords) error {
	cookies := []map[string]any{{
		"name": "j", "value": creds.Token,
		"domain": "backend.wplace.live", "path": "/",
		"secure": true, "sameSite": "Lax",
	}}
	if creds.CfClearance != "" {
		cookies = append(cookies, map[string]any{
			"name": "cf_clearance", "value": creds.CfClearance,
			"domain": "backend.wplace.live", "path": "/",
			"secure": true, "sameSite": "Lax",
		})
	}
	if err := p.client.call(ctx, "", "Storage.setCookies", map[string]any{"cookies": cookies}, nil); err != nil {
		return err
	}

	var created struct {
		TargetID string `json:"targetId"`
	}
	err := p.client.call(ctx, "", "Target.createTarget", map[string]any{
		"url":    coord.ShareURL(float64(p.zoom)),
		"width":  viewportWidth,
		"height": viewportHeight,
	}, &created)
	if err != nil {
		return err
	}
	p.targetID = created.TargetID

	var attached struct {
		SessionID string `json:"sessionId"`
	}
	err = p.client.call(ctx, "", "Target.attachToTarget", map[string]any{
		"targetId": p.targetID, "flatten": true,
	}, &attached)
	if err != nil {
		return err
	}
	p.sessionID = attached.SessionID

	return p.waitLoaded(ctx)
}

func (p *Page) waitLoaded(ctx context.Context) error {
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		state, err := p.evaluate(ctx, `document.readyState`)
		if err == nil && state == "complete" {
			// 地图渲染还要一会儿
			if !tools.SleepCtx(ctx.Done(), tools.RandDuration(3, 6)) {
				return ctx.Err()
			}
			return nil
		}
		if !tools.SleepCtx(ctx.Done(), time.Second) {
			return ctx.Err()
		}
	}
	return fmt.Errorf("page load timed out")
}

// evaluate 执行页面表达式并返回其值
func (p *Page) evaluate(ctx context.Context, expr string) (any, error) {
	var out struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	err := p.client.call(ctx, p.sessionID, "Runtime.evaluate", map[string]any{
		"expression":    expr,
		"returnByValue": true,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.ExceptionDetails != nil {
		return nil, fmt.Errorf("evaluate: %s", out.ExceptionDetails.Text)
	}
	var v any
	if len(out.Result.Value) > 0 {
		_ = json.Unmarshal(out.Result.Value, &v)
	}
	return v, nil
}

func (p *Page) mouseEvent(ctx context.Context, typ string, x, y float64, buttons int) error {
	return p.client.call(ctx, p.sessionID, "Input.dispatchMouseEvent", map[string]any{
		"type": typ, "x": x, "y": y,
		"button": "left", "buttons": buttons, "clickCount": 1,
	}, nil)
}

// CurrentCoord 屏幕中心对准的画布坐标
func (p *Page) CurrentCoord() model.PixelCoords { return p.current }

// dragAxis 沿单轴拖动画布 delta 个像素（视角移动方向与像素位移相反）
func (p *Page) dragAxis(ctx context.Context, dx, dy int) error {
	size := zoomPixelSize[p.zoom]
	cx, cy := float64(viewportWidth)/2, float64(viewportHeight)/2

	if err := p.mouseEvent(ctx, "mouseReleased", cx, cy, 0); err != nil {
		return err
	}
	if err := p.mouseEvent(ctx, "mousePressed", cx, cy, 1); err != nil {
		return err
	}
	tx, ty := cx-float64(dx)*size, cy-float64(dy)*size
	steps := tools.RandIntBetween(7, 15)
	for i := 1; i <= steps; i++ {
		f := float64(i) / float64(steps)
		if err := p.mouseEvent(ctx, "mouseMoved", cx+(tx-cx)*f, cy+(ty-cy)*f, 1); err != nil {
			return err
		}
	}
	if !tools.SleepCtx(ctx.Done(), 175*time.Millisecond) {
		return ctx.Err()
	}
	if err := p.mouseEvent(ctx, "mouseReleased", tx, ty, 0); err != nil {
		return err
	}
	p.current = p.current.Offset(dx, dy)
	return nil
}

// MoveByPixel 把画布拖动 (dx, dy) 个像素，两轴分开拖更接近真人操作
func (p *Page) MoveByPixel(ctx context.Context, dx, dy int) error {
	if dx != 0 {
		if err := p.dragAxis(ctx, dx, 0); err != nil {
			return err
		}
	}
	if dy != 0 {
		if err := p.dragAxis(ctx, 0, dy); err != nil {
			return err
		}
	}
	return nil
}

// ClickCurrentPixel 点击屏幕中心的画布像素
func (p *Page) ClickCurrentPixel(ctx context.Context) error {
	cx, cy := float64(viewportWidth)/2, float64(viewportHeight)/2
	if err := p.mouseEvent(ctx, "mousePressed", cx, cy, 1); err != nil {
		return err
	}
	return p.mouseEvent(ctx, "mouseReleased", cx, cy, 0)
}

// OpenPaintPanel 点开绘制面板；按钮找不到说明页面结构变了或账号异常，
// 属于账号级致命
func (p *Page) OpenPaintPanel(ctx context.Context) error {
	found, err := p.evaluate(ctx, fmt.Sprintf(
		`(() => { const b = document.querySelector(%q); if (!b) return false; b.click(); return true; })()`,
		paintBtnSelector))
	if err != nil {
		return err
	}
	if found != true {
		return model.Quitf("paint button not found on page")
	}
	return nil
}

// SelectColor 在绘制面板中选中指定颜色
func (p *Page) SelectColor(ctx context.Context, colorID int) error {
	found, err := p.evaluate(ctx, fmt.Sprintf(
		`(() => { const b = document.getElementById("color-%d"); if (!b) return false; b.click(); return true; })()`,
		colorID))
	if err != nil {
		return err
	}
	if found != true {
		return model.Quitf("color button #%d not found, color may be unavailable", colorID)
	}
	return nil
}

// SubmitPaint 提交本批绘制并等待确认按钮消失
func (p *Page) SubmitPaint(ctx context.Context) error {
	expr := fmt.Sprintf(
		`(() => { const b = document.querySelector(%q); if (!b) return false; b.click(); return true; })()`,
		paintBtnSelector)
	found, err := p.evaluate(ctx, expr)
	if err != nil {
		return err
	}
	if found != true {
		return model.Quitf("submit button not found on page")
	}

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		present, err := p.evaluate(ctx, fmt.Sprintf(`!!document.querySelector(%q)`, paintBtnSelector))
		if err != nil {
			return err
		}
		if present != true {
			return nil
		}
		log.Debugf("waiting for paint submit to complete")
		if !tools.SleepCtx(ctx.Done(), time.Second) {
			return ctx.Err()
		}
	}
	return nil
}

// Close 关闭页面与 CDP 连接，所有退出路径都要调用
func (p *Page) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if p.targetID != "" {
		_ = p.client.call(ctx, "", "Target.closeTarget", map[string]any{"targetId": p.targetID}, nil)
	}
	p.client.close()
}
