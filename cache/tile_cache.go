package mycache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"wplace/painter/model"
)

// 多账号循环会重复拉同一批 tile，短 TTL 缓存避免热点 tile 反复下载；
// TTL 过长会放大快照与实际画布间的陈旧度
const tileCacheTTL = 20 * time.Second

var TileCache *ristretto.Cache[string, []byte]

func init() {
	cache, err := ristretto.NewCache[string, []byte](&ristretto.Config[string, []byte]{
		NumCounters: 10000,
		MaxCost:     128 * 1024 * 1024, // 128MB，约可存百余张 tile PNG
		BufferItems: 64,
	})
	if err != nil {
		panic(err)
	}
	TileCache = cache
}

func tileCacheKey(tile model.TileCoords) string {
	return fmt.Sprintf("%d|%d", tile.TlX, tile.TlY)
}

// GetTile 从缓存读取 tile 原始字节，ok 表示命中
func GetTile(tile model.TileCoords) ([]byte, bool) {
	TileCache.Wait()
	return TileCache.Get(tileCacheKey(tile))
}

// SetTile 写入 tile 字节，cost 取字节数
func SetTile(tile model.TileCoords, data []byte) {
	if len(data) == 0 {
		return
	}
	TileCache.SetWithTTL(tileCacheKey(tile), data, int64(len(data)), tileCacheTTL)
	TileCache.Wait()
}
