package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"

	mycache "wplace/painter/cache"
	"wplace/painter/log"
	"wplace/painter/model"
	"wplace/painter/thirdpart"
)

const (
	tileFetchConcurrency = 4
	tileFetchRetries     = 3
	tileFetchRetryDelay  = 2 * time.Second
)

// TileFetcher tile 拉取函数，返回 PNG 原始字节
type TileFetcher func(ctx context.Context, tile model.TileCoords) ([]byte, error)

// CachedTileFetcher 默认 fetcher：先查 ristretto 缓存，未命中走后端
func CachedTileFetcher(ctx context.Context, tile model.TileCoords) ([]byte, error) {
	if data, ok := mycache.GetTile(tile); ok {
		return data, nil
	}
	data, err := thirdpart.FetchTile(ctx, tile)
	if err != nil {
		return nil, err
	}
	mycache.SetTile(tile, data)
	return data, nil
}

// SnapshotAssembler 把闭区间包围盒覆盖的 tile 拼成一张画布快照
type SnapshotAssembler struct {
	Fetch TileFetcher
}

func NewSnapshotAssembler() *SnapshotAssembler {
	return &SnapshotAssembler{Fetch: CachedTileFetcher}
}

// fetchTileRetry 单 tile 拉取，瞬时故障固定间隔重试；
// 重试打满仍失败则错误原样上抛，整次拼装作废（不给半张图）
func (s *SnapshotAssembler) fetchTileRetry(ctx context.Context, tile model.TileCoords) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= tileFetchRetries; attempt++ {
		data, err := s.Fetch(ctx, tile)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !thirdpart.IsTransient(err) {
			break
		}
		log.Debugf("fetch tile (%d,%d) attempt %d/%d failed: %v",
			tile.TlX, tile.TlY, attempt, tileFetchRetries, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(tileFetchRetryDelay):
		}
	}
	return nil, fmt.Errorf("fetch tile (%d,%d): %w", tile.TlX, tile.TlY, lastErr)
}

// Assemble 拼装 coord1/coord2（任意顺序）围成的画布区域，返回 PNG 字节。
// background 非 nil 时先用纯色铺底，tile 像素按 alpha 叠加。
func (s *SnapshotAssembler) Assemble(ctx context.Context, coord1, coord2 model.PixelCoords, background *model.RGB) ([]byte, error) {
	c1, c2 := coord1.FixWith(coord2)
	width, height := c1.SizeWith(c2)
	origin := c1.ToAbs()

	tiles := c1.AllTileCoords(c2)

	var mu sync.Mutex
	fetched := make(map[model.TileCoords]image.Image, len(tiles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tileFetchConcurrency)
	for _, tile := range tiles {
		g.Go(func() error {
			data, err := s.fetchTileRetry(gctx, tile)
			if err != nil {
				return err
			}
			img, err := png.Decode(bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("decode tile (%d,%d): %w", tile.TlX, tile.TlY, err)
			}
			mu.Lock()
			fetched[tile] = img
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	if background != nil {
		draw.Draw(dst, dst.Bounds(), image.NewUniform(color.NRGBA{
			R: background.R, G: background.G, B: background.B, A: 255,
		}), image.Point{}, draw.Src)
	}

	// 各 tile 在快照里的落点由 tile 原点相对包围盒原点的偏移决定，
	// 超出包围盒的部分靠 rect 相交自然裁掉
	for tile, img := range fetched {
		tileOrigin := image.Pt(tile.TlX*model.TileSize-origin.X, tile.TlY*model.TileSize-origin.Y)
		tileRect := image.Rectangle{Min: tileOrigin, Max: tileOrigin.Add(img.Bounds().Size())}
		target := tileRect.Intersect(dst.Bounds())
		if target.Empty() {
			continue
		}
		srcPt := img.Bounds().Min.Add(target.Min.Sub(tileOrigin))
		draw.Draw(dst, target, img, srcPt, draw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// AssemblePreview 带边框的预览快照，用于状态 API
func (s *SnapshotAssembler) AssemblePreview(ctx context.Context, coord1, coord2 model.PixelCoords, background *model.RGB, borderPixels int) ([]byte, error) {
	c1, c2 := coord1.FixWith(coord2)
	if borderPixels > 0 {
		c1 = c1.Offset(-borderPixels, -borderPixels)
		c2 = c2.Offset(borderPixels, borderPixels)
	}
	return s.Assemble(ctx, c1, c2, background)
}
