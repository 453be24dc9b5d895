package thirdpart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"wplace/painter/model"
	"wplace/painter/system"
)

var wplaceBackendBase = "https://backend.wplace.live"

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36"

var wplaceHTTPClient = &http.Client{Timeout: 20 * time.Second}

// Configure 设置出口代理，进程启动时调用一次，留空走直连
func Configure(proxy string) error {
	if proxy == "" {
		return nil
	}
	u, err := url.Parse(proxy)
	if err != nil {
		return fmt.Errorf("parse proxy: %w", err)
	}
	wplaceHTTPClient.Transport = &http.Transport{Proxy: http.ProxyURL(u)}
	return nil
}

// IsTransient 判断错误是否属于瞬时网络故障（连接失败/超时/5xx），
// 这类错误由调用方就地重试，其余错误不可重试
func IsTransient(err error) bool {
	var fe *model.FetchError
	if errors.As(err, &fe) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe)
}

func newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Origin", "https://wplace.live")
	return req, nil
}

func withCredentials(req *http.Request, creds system.Credentials) {
	req.AddCookie(&http.Cookie{Name: "j", Value: creds.Token})
	if creds.CfClearance != "" {
		req.AddCookie(&http.Cookie{Name: "cf_clearance", Value: creds.CfClearance})
	}
}

// FetchTile 拉取单个 tile 的 PNG 原始字节
func FetchTile(ctx context.Context, tile model.TileCoords) ([]byte, error) {
	rawURL := fmt.Sprintf("%s/files/s0/tiles/%d/%d.png", wplaceBackendBase, tile.TlX, tile.TlY)
	req, err := newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := wplaceHTTPClient.Do(req)
	if err != nil {
		return nil, &model.FetchError{Op: "tile", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &model.FetchError{Op: "tile", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch tile (%d,%d): status %d", tile.TlX, tile.TlY, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// FetchUserInfo 拉取账号信息（charges/droplets/可用颜色/封禁状态）
func FetchUserInfo(ctx context.Context, creds system.Credentials) (*model.UserInfo, error) {
	req, err := newRequest(ctx, http.MethodGet, wplaceBackendBase+"/me", nil)
	if err != nil {
		return nil, err
	}
	withCredentials(req, creds)

	resp, err := wplaceHTTPClient.Do(req)
	if err != nil {
		return nil, &model.FetchError{Op: "user info", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, &model.FetchError{Op: "user info", Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// 凭据失效，账号级致命
		return nil, model.Quitf("credentials rejected: status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch user info: status %d", resp.StatusCode)
	}

	var info model.UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	return &info, nil
}

type purchaseReq struct {
	Product struct {
		ID     int `json:"id"`
		Amount int `json:"amount"`
	} `json:"product"`
}

type purchaseResp struct {
	Success bool `json:"success"`
}

// Purchase 调用商店接口购买 item x amount
func Purchase(ctx context.Context, creds system.Credentials, item model.PurchaseItem, amount int) error {
	var body purchaseReq
	body.Product.ID = int(item)
	body.Product.Amount = amount
	raw, _ := json.Marshal(body)

	req, err := newRequest(ctx, http.MethodPost, wplaceBackendBase+"/purchase", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	withCredentials(req, creds)

	resp, err := wplaceHTTPClient.Do(req)
	if err != nil {
		return &model.FetchError{Op: "purchase", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &model.FetchError{Op: "purchase", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("purchase: status %d", resp.StatusCode)
	}

	var pr purchaseResp
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return fmt.Errorf("purchase: decode response: %w", err)
	}
	if !pr.Success {
		return fmt.Errorf("purchase: rejected by server")
	}
	return nil
}
