package model

import (
	"encoding/base64"
	"math"
	"time"
)

// Charges 账号绘制预算，count 随时间按 1/cooldownMs 速率恢复，封顶 max
type Charges struct {
	CooldownMs int     `json:"cooldownMs"`
	Count      float64 `json:"count"`
	Max        int     `json:"max"`
}

// RemainingSecs 恢复到满预算还需的秒数，count==max 时为 0
func (c Charges) RemainingSecs() float64 {
	return (float64(c.Max) - c.Count) * (float64(c.CooldownMs) / 1000.0)
}

// FavoriteLocation 账号收藏点位
type FavoriteLocation struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (f FavoriteLocation) Coords() PixelCoords {
	return FromLatLon(f.Latitude, f.Longitude)
}

// UserInfo 对应 backend.wplace.live /me 返回的账号信息
type UserInfo struct {
	ID                int                `json:"id"`
	Name              string             `json:"name"`
	Banned            bool               `json:"banned"`
	Charges           Charges            `json:"charges"`
	Country           string             `json:"country"`
	Droplets          int                `json:"droplets"`
	ExtraColorsBitmap int                `json:"extraColorsBitmap"`
	FlagsBitmap       string             `json:"flagsBitmap"`
	EquippedFlag      int                `json:"equippedFlag"`
	FavoriteLocations []FavoriteLocation `json:"favoriteLocations"`
	Level             float64            `json:"level"`
	PixelsPainted     int                `json:"pixelsPainted"`
	Picture           string             `json:"picture"`
	TimeoutUntil      time.Time          `json:"timeoutUntil"`
}

// NextLevelPixels 距下一等级还需绘制的像素数（站点经验公式）
func (u UserInfo) NextLevelPixels() int {
	return int(math.Ceil(math.Pow(math.Floor(u.Level)*math.Pow(30, 0.65), 1/0.65) - float64(u.PixelsPainted)))
}

// OwnColors 账号可用颜色集合：透明 + 全部免费色 + bitmap 标记的付费色
func (u UserInfo) OwnColors() map[string]bool {
	own := map[string]bool{TransparentName: true}
	for name := range FreeColors {
		own[name] = true
	}
	idx := 0
	for _, c := range Palette {
		if !c.Paid {
			continue
		}
		if u.ExtraColorsBitmap&(1<<idx) != 0 {
			own[c.Name] = true
		}
		idx++
	}
	return own
}

// OwnFlags flagsBitmap（base64 小端位图）中置位的 flag id 集合
func (u UserInfo) OwnFlags() map[int]bool {
	b, err := base64.StdEncoding.DecodeString(u.FlagsBitmap)
	if err != nil {
		return nil
	}
	out := make(map[int]bool)
	for i := 0; i < len(b)*8; i++ {
		if b[len(b)-i/8-1]&(1<<(i%8)) != 0 {
			out[i] = true
		}
	}
	return out
}

// ColorEntry 模板 diff 的单色统计；Pixels 为模板本地坐标
type ColorEntry struct {
	Name   string  `json:"name"`
	Paid   bool    `json:"paid"`
	Count  int     `json:"count"`
	Pixels []Point `json:"pixels,omitempty"`
}

// Point 模板本地像素坐标
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PurchaseItem 商店商品 id
type PurchaseItem int

const (
	PurchaseMaxCharge5 PurchaseItem = 70 // 像素上限 +5
	PurchaseCharge30   PurchaseItem = 80 // 像素余额 +30
)

// Price 单价（droplets）
func (p PurchaseItem) Price() int { return 500 }
