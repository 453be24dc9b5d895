package model

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

const (
	TileSize = 1000 // 像素/Tile，wplace 画布固定值
)

// 多点校准得到的墨卡托投影常量，勿随意改动
const (
	MercScaleX  = 325949.3234522017
	MercScaleY  = -325949.3234522014
	MercOffsetX = 1023999.5
	MercOffsetY = 1023999.4999999999
)

// TileCoords 画布 Tile 坐标
type TileCoords struct {
	TlX int `json:"tlx"`
	TlY int `json:"tly"`
}

// AbsCoords 画布绝对像素坐标
type AbsCoords struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// PixelCoords Tile 内像素坐标，PxX/PxY 取值 0~999
type PixelCoords struct {
	TlX int `json:"tlx"`
	TlY int `json:"tly"`
	PxX int `json:"pxx"`
	PxY int `json:"pxy"`
}

func (a AbsCoords) Offset(dx, dy int) AbsCoords {
	return AbsCoords{a.X + dx, a.Y + dy}
}

// ToPixel 绝对坐标换算为 Tile+像素坐标（floor 除法，负数也正确滚动）
func (a AbsCoords) ToPixel() PixelCoords {
	tlx, pxx := floorDivMod(a.X, TileSize)
	tly, pxy := floorDivMod(a.Y, TileSize)
	return PixelCoords{TlX: tlx, TlY: tly, PxX: pxx, PxY: pxy}
}

func floorDivMod(v, m int) (int, int) {
	d := v / m
	r := v % m
	if r < 0 {
		d--
		r += m
	}
	return d, r
}

// ToAbs 换算为绝对像素坐标，与 ToPixel 互逆
func (c PixelCoords) ToAbs() AbsCoords {
	return AbsCoords{
		X: c.TlX*TileSize + c.PxX,
		Y: c.TlY*TileSize + c.PxY,
	}
}

// Offset 按绝对坐标偏移，跨 Tile 自动滚动
func (c PixelCoords) Offset(dx, dy int) PixelCoords {
	return c.ToAbs().Offset(dx, dy).ToPixel()
}

func (c PixelCoords) Tile() TileCoords { return TileCoords{c.TlX, c.TlY} }

func (c PixelCoords) HumanRepr() string {
	return fmt.Sprintf("(%d, %d) + (%d, %d)", c.TlX, c.TlY, c.PxX, c.PxY)
}

// LatLon 经纬度
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ToLatLon 像素坐标 → 经纬度（球面墨卡托反投影）
func (c PixelCoords) ToLatLon() LatLon {
	abs := c.ToAbs()

	mercX := (float64(abs.X) - MercOffsetX) / MercScaleX
	mercY := (float64(abs.Y) - MercOffsetY) / MercScaleY

	lon := mercX * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(mercY)) - math.Pi/2) * 180 / math.Pi
	return LatLon{Lat: lat, Lon: lon}
}

// FromLatLon 经纬度 → 像素坐标，存在亚像素舍入，调用方需容忍 ±1
func FromLatLon(lat, lon float64) PixelCoords {
	mercX := lon * math.Pi / 180
	mercY := math.Log(math.Tan(math.Pi/4 + lat*math.Pi/360))

	absX := int(mercX*MercScaleX + MercOffsetX)
	absY := int(mercY*MercScaleY + MercOffsetY)
	return AbsCoords{X: absX, Y: absY}.ToPixel()
}

func (l LatLon) ToPixel() PixelCoords { return FromLatLon(l.Lat, l.Lon) }

// ShareURL wplace 分享链接
func (c PixelCoords) ShareURL(zoom float64) string {
	ll := c.ToLatLon()
	return fmt.Sprintf("https://wplace.live/?lat=%v&lng=%v&zoom=%v", ll.Lat, ll.Lon, zoom)
}

// Blue Marble 坐标格式
// 例: "(Tl X: 742, Tl Y: 1148, Px X: 30, Px Y: 735)"
var blueMarblePattern = regexp.MustCompile(`.*Tl X: (\d+), Tl Y: (\d+), Px X: (\d+), Px Y: (\d+).*`)

func (c PixelCoords) BlueMarbleStr() string {
	return fmt.Sprintf("(Tl X: %d, Tl Y: %d, Px X: %d, Px Y: %d)", c.TlX, c.TlY, c.PxX, c.PxY)
}

// ParseCoords 解析 Blue Marble 格式坐标串
func ParseCoords(s string) (PixelCoords, error) {
	m := blueMarblePattern.FindStringSubmatch(s)
	if m == nil {
		return PixelCoords{}, fmt.Errorf("invalid coords: %q", s)
	}
	v := make([]int, 4)
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return PixelCoords{}, fmt.Errorf("invalid coords: %q", s)
		}
		v[i] = n
	}
	return PixelCoords{TlX: v[0], TlY: v[1], PxX: v[2], PxY: v[3]}, nil
}

// FixWith 将两个角坐标按绝对坐标各轴独立取 min/max，
// 返回 (左上, 右下)，与参数顺序无关
func (c PixelCoords) FixWith(other PixelCoords) (PixelCoords, PixelCoords) {
	a, b := c.ToAbs(), other.ToAbs()
	x1, x2 := minMax(a.X, b.X)
	y1, y2 := minMax(a.Y, b.Y)
	return AbsCoords{x1, y1}.ToPixel(), AbsCoords{x2, y2}.ToPixel()
}

func minMax(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

// AllTileCoords 枚举闭区间包围盒覆盖的全部 Tile
func (c PixelCoords) AllTileCoords(other PixelCoords) []TileCoords {
	c1, c2 := c.FixWith(other)
	out := make([]TileCoords, 0, (c2.TlX-c1.TlX+1)*(c2.TlY-c1.TlY+1))
	for x := c1.TlX; x <= c2.TlX; x++ {
		for y := c1.TlY; y <= c2.TlY; y++ {
			out = append(out, TileCoords{TlX: x, TlY: y})
		}
	}
	return out
}

// SizeWith 包围盒像素尺寸，两端点均含
func (c PixelCoords) SizeWith(other PixelCoords) (int, int) {
	c1, c2 := c.FixWith(other)
	a, b := c1.ToAbs(), c2.ToAbs()
	return b.X - a.X + 1, b.Y - a.Y + 1
}
