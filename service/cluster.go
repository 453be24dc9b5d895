package service

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	// DefaultMinGroupSize 小于该尺寸的分组会被并入邻近分组
	DefaultMinGroupSize = 100
	// DefaultMergeDistance 合并时允许的质心距离（像素）
	DefaultMergeDistance = 40.0
)

// ClusterPoint 待聚类的错配像素（模板本地坐标 + 颜色 id）
type ClusterPoint struct {
	X, Y    int
	ColorID int
}

// PixelGroup 一次连贯绘制的工作单元：8 连通聚类后的像素批
type PixelGroup struct {
	Points   []ClusterPoint
	Centroid r2.Vec
}

func (g *PixelGroup) Size() int { return len(g.Points) }

func (g *PixelGroup) recalcCentroid() {
	var sum r2.Vec
	for _, p := range g.Points {
		sum = r2.Add(sum, r2.Vec{X: float64(p.X), Y: float64(p.Y)})
	}
	g.Centroid = r2.Scale(1/float64(len(g.Points)), sum)
}

// 8 邻域偏移
var neighborOffsets = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// GroupAdjacent 把错配像素聚成大小有下界的连通工作单元：
//  1. BFS 按 8 连通切出初始连通分量；
//  2. 反复把 size < minGroupSize 的分量并入质心距离 ≤ mergeDistance 的
//     最近分量，直至不存在这样的配对（孤立远点不被强拉）；
//  3. 兜底：仍然过小的分量无视阈值并入质心最近的分量，
//     保证结果里不会仅因邻居太远而残留碎组；
//  4. 按 size 降序返回。
//
// 不变量：输出各组像素的并集与输入完全一致，无重复无丢失。
func GroupAdjacent(points []ClusterPoint, minGroupSize int, mergeDistance float64) []*PixelGroup {
	if len(points) == 0 {
		return nil
	}
	if minGroupSize < 1 {
		minGroupSize = 1
	}

	groups := connectedComponents(points)
	for _, g := range groups {
		g.recalcCentroid()
	}

	// 阈值内迭代合并
	for {
		merged := false
		for i := 0; i < len(groups); i++ {
			if groups[i].Size() >= minGroupSize {
				continue
			}
			j := nearestGroup(groups, i, mergeDistance)
			if j < 0 {
				continue
			}
			groups = mergeInto(groups, i, j)
			merged = true
			break
		}
		if !merged {
			break
		}
	}

	// 兜底合并：不限距离，并入最近者
	for len(groups) > 1 {
		idx := -1
		for i, g := range groups {
			if g.Size() < minGroupSize {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		j := nearestGroup(groups, idx, -1)
		groups = mergeInto(groups, idx, j)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Size() > groups[j].Size()
	})
	return groups
}

// connectedComponents BFS 切分 8 连通分量，每个输入点恰好归属一个分量
func connectedComponents(points []ClusterPoint) []*PixelGroup {
	type key [2]int
	lookup := make(map[key]ClusterPoint, len(points))
	for _, p := range points {
		lookup[key{p.X, p.Y}] = p
	}

	visited := make(map[key]bool, len(points))
	var groups []*PixelGroup

	for _, start := range points {
		sk := key{start.X, start.Y}
		if visited[sk] {
			continue
		}
		visited[sk] = true
		queue := []ClusterPoint{lookup[sk]}
		group := &PixelGroup{}

		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			group.Points = append(group.Points, p)

			for _, d := range neighborOffsets {
				nk := key{p.X + d[0], p.Y + d[1]}
				np, ok := lookup[nk]
				if !ok || visited[nk] {
					continue
				}
				visited[nk] = true
				queue = append(queue, np)
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// nearestGroup 距 groups[i] 质心最近的其他分量下标；
// maxDist >= 0 时超过该距离的不计，找不到返回 -1
func nearestGroup(groups []*PixelGroup, i int, maxDist float64) int {
	best, bestDist := -1, 0.0
	for j, g := range groups {
		if j == i {
			continue
		}
		d := r2.Norm(r2.Sub(groups[i].Centroid, g.Centroid))
		if maxDist >= 0 && d > maxDist {
			continue
		}
		if best < 0 || d < bestDist {
			best, bestDist = j, d
		}
	}
	return best
}

// mergeInto 把 groups[i] 并入 groups[j] 并从切片中移除 i
func mergeInto(groups []*PixelGroup, i, j int) []*PixelGroup {
	groups[j].Points = append(groups[j].Points, groups[i].Points...)
	groups[j].recalcCentroid()
	return append(groups[:i], groups[i+1:]...)
}
