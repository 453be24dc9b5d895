package service

import (
	"context"
	"sort"

	"wplace/painter/log"
	"wplace/painter/model"
	"wplace/painter/system"
)

// budgetRatio 选色累计像素预算占当前 charge 数的比例
const budgetRatio = 0.9

// Selection 一次绘制尝试选定的工作集
type Selection struct {
	Template *model.Template    // 实际参与 diff 的模板视图（可能是裁剪后的）
	Entries  []model.ColorEntry // 按优先级排序的已选颜色
}

// TotalPixels 已选颜色的错配像素总数
func (s *Selection) TotalPixels() int {
	n := 0
	for _, e := range s.Entries {
		n += e.Count
	}
	return n
}

// ColorNames 已选颜色名
func (s *Selection) ColorNames() []string {
	names := make([]string, 0, len(s.Entries))
	for _, e := range s.Entries {
		names = append(names, e.Name)
	}
	return names
}

// SelectColors 为账号挑选本轮要画的颜色集合。
// 排序优先级：偏好列表位次 > 付费色 > 未被认领 > 错配数大；
// 随后跳过未拥有/已被他人认领的颜色，按序累计直到约 90% charge 预算。
// 配了子选区且选区内无活可干时，回退全模板再试一次。
// 无可选颜色返回 (nil, workRemaining, nil)，与出错严格区分：
// workRemaining 为 false 表示模板已无任何错配（画完了）。
func SelectColors(ctx context.Context, a *SnapshotAssembler, acct *system.AccountConfig, info *model.UserInfo, reg *ClaimRegistry) (*Selection, bool, error) {
	tpl, err := acct.Template.Cropped()
	if err != nil {
		return nil, false, err
	}

	sel, workRemaining, err := selectFromTemplate(ctx, a, acct, tpl, info, reg)
	if err != nil {
		return nil, false, err
	}
	if sel == nil && tpl != &acct.Template {
		log.WithAccount(acct.Identifier).Info("sub-selection has no paintable colors, falling back to full template")
		return selectFromTemplate(ctx, a, acct, &acct.Template, info, reg)
	}
	return sel, workRemaining, nil
}

func selectFromTemplate(ctx context.Context, a *SnapshotAssembler, acct *system.AccountConfig, tpl *model.Template, info *model.UserInfo, reg *ClaimRegistry) (*Selection, bool, error) {
	diff, err := DiffTemplate(ctx, a, tpl, true)
	if err != nil {
		return nil, false, err
	}
	entries := rankEntries(diff, acct.PreferredColors, reg)

	own := info.OwnColors()
	budget := int(info.Charges.Count * budgetRatio)

	var picked []model.ColorEntry
	total := 0
	for _, e := range entries {
		if total >= budget {
			break
		}
		if !own[e.Name] || reg.Locked(e.Name) {
			continue
		}
		picked = append(picked, e)
		total += e.Count
	}
	if len(picked) == 0 {
		return nil, len(entries) > 0, nil
	}
	return &Selection{Template: tpl, Entries: picked}, true, nil
}

// rankEntries 多键排序，键次序即优先级
func rankEntries(entries []model.ColorEntry, preferred []string, reg *ClaimRegistry) []model.ColorEntry {
	prefIdx := make(map[string]int, len(preferred))
	for i, name := range preferred {
		if n := model.NormalizeColorName(name); n != "" {
			prefIdx[n] = i
		}
	}
	rank := func(name string) int {
		if i, ok := prefIdx[name]; ok {
			return i
		}
		return len(preferred) + 1
	}

	out := make([]model.ColorEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := rank(a.Name), rank(b.Name); ra != rb {
			return ra < rb
		}
		if a.Paid != b.Paid {
			return a.Paid
		}
		if la, lb := reg.Locked(a.Name), reg.Locked(b.Name); la != lb {
			return !la
		}
		return a.Count > b.Count
	})
	return out
}
