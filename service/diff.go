package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"

	"wplace/painter/log"
	"wplace/painter/model"
)

// DiffTemplate 计算模板与当前画布的差异。
// 对每个非透明模板像素：两边各自归一到最近调色板色后比较，
// 不一致则计入该颜色；includePixels 时附带模板本地坐标列表。
// 只返回 Count>0 的颜色项，全量一致返回空列表。
func DiffTemplate(ctx context.Context, a *SnapshotAssembler, tpl *model.Template, includePixels bool) ([]model.ColorEntry, error) {
	img, coord1, coord2, err := tpl.Load()
	if err != nil {
		return nil, err
	}

	actualBytes, err := a.Assemble(ctx, coord1, coord2, nil)
	if err != nil {
		return nil, fmt.Errorf("assemble snapshot: %w", err)
	}
	actual, err := png.Decode(bytes.NewReader(actualBytes))
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	start := time.Now()
	diff := CompareImages(img, actual, includePixels)

	total := 0
	for _, e := range diff {
		total += e.Count
	}
	log.Debugf("template diff: %d mismatched pixels in %d colors, took %s",
		total, len(diff), time.Since(start).Round(time.Millisecond))
	return diff, nil
}

// CompareImages 逐像素比对模板与快照（尺寸须一致，快照按模板包围盒拼装）
func CompareImages(tpl, actual image.Image, includePixels bool) []model.ColorEntry {
	tb, ab := tpl.Bounds(), actual.Bounds()
	w, h := tb.Dx(), tb.Dy()
	if aw, ah := ab.Dx(), ab.Dy(); aw < w || ah < h {
		w, h = min(w, aw), min(h, ah)
	}

	counts := map[string]int{}
	var pixels map[string][]model.Point
	if includePixels {
		pixels = map[string][]model.Point{}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			want := resolveColor(tpl, tb.Min.X+x, tb.Min.Y+y)
			if want == model.TransparentName {
				continue
			}
			got := resolveColor(actual, ab.Min.X+x, ab.Min.Y+y)
			if got == want {
				continue
			}
			counts[want]++
			if includePixels {
				pixels[want] = append(pixels[want], model.Point{X: x, Y: y})
			}
		}
	}

	out := make([]model.ColorEntry, 0, len(counts))
	// 按调色板顺序输出，结果稳定
	for _, c := range model.Palette {
		n, ok := counts[c.Name]
		if !ok {
			continue
		}
		entry := model.ColorEntry{Name: c.Name, Paid: c.Paid, Count: n}
		if includePixels {
			entry.Pixels = pixels[c.Name]
		}
		out = append(out, entry)
	}
	return out
}

func resolveColor(img image.Image, x, y int) string {
	r, g, b, a := img.At(x, y).RGBA()
	return model.FindColorName(uint8(r>>8), uint8(g>>8), uint8(b>>8), uint8(a>>8))
}
