package model

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"sync"
)

// CropRect 模板本地坐标系下的矩形子选区，右下端点含
type CropRect struct {
	MinX int `json:"minX" mapstructure:"minX"`
	MinY int `json:"minY" mapstructure:"minY"`
	MaxX int `json:"maxX" mapstructure:"maxX"`
	MaxY int `json:"maxY" mapstructure:"maxY"`
}

func (r CropRect) Valid() bool {
	return r.MaxX >= r.MinX && r.MaxY >= r.MinY
}

// Template 目标模板：PNG 图 + 画布锚点 + 可选子选区。
// 不透明像素为目标，alpha==0 的像素不参与比对。
type Template struct {
	File   string      `json:"file" mapstructure:"file"`
	Coords PixelCoords `json:"coords" mapstructure:"coords"`
	Crop   *CropRect   `json:"crop,omitempty" mapstructure:"crop"`

	// 绘制循环与状态 API 会并发 Load 同一个模板，懒加载必须持锁
	mu  sync.Mutex
	img image.Image
}

// Load 加载模板图并返回画布上的包围盒两角，并发安全
func (t *Template) Load() (image.Image, PixelCoords, PixelCoords, error) {
	img, err := t.load()
	if err != nil {
		return nil, PixelCoords{}, PixelCoords{}, err
	}
	b := img.Bounds()
	return img, t.Coords, t.Coords.Offset(b.Dx()-1, b.Dy()-1), nil
}

func (t *Template) load() (image.Image, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.img != nil {
		return t.img, nil
	}
	data, err := os.ReadFile(t.File)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	t.img = img
	return img, nil
}

// Cropped 返回应用子选区后的模板视图；无子选区时返回自身。
// 子选区超出图像范围的部分被截断。
func (t *Template) Cropped() (*Template, error) {
	if t.Crop == nil {
		return t, nil
	}
	if !t.Crop.Valid() {
		return nil, fmt.Errorf("invalid crop rect: %+v", *t.Crop)
	}
	img, _, _, err := t.Load()
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	r := image.Rect(t.Crop.MinX, t.Crop.MinY, t.Crop.MaxX+1, t.Crop.MaxY+1).
		Add(b.Min).Intersect(b)
	if r.Empty() {
		return nil, fmt.Errorf("crop rect %+v outside template bounds", *t.Crop)
	}

	sub := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			sub.Set(x, y, img.At(r.Min.X+x, r.Min.Y+y))
		}
	}
	return &Template{
		File:   t.File,
		Coords: t.Coords.Offset(r.Min.X-b.Min.X, r.Min.Y-b.Min.Y),
		img:    sub,
	}, nil
}
