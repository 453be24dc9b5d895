package model

import "strings"

// RGB 调色板颜色值
type RGB struct {
	R, G, B uint8
}

// PaletteColor wplace 调色板中的一个颜色
type PaletteColor struct {
	ID    int
	Name  string
	Value RGB
	Paid  bool
}

const TransparentName = "Transparent"

// wplace 固定调色板，顺序即 colorIdx；0 号为透明
var Palette = []PaletteColor{
	{1, "Black", RGB{0, 0, 0}, false},
	{2, "Dark Gray", RGB{60, 60, 60}, false},
	{3, "Gray", RGB{120, 120, 120}, false},
	{4, "Light Gray", RGB{210, 210, 210}, false},
	{5, "White", RGB{255, 255, 255}, false},
	{6, "Deep Red", RGB{96, 0, 24}, false},
	{7, "Red", RGB{237, 28, 36}, false},
	{8, "Orange", RGB{255, 127, 39}, false},
	{9, "Gold", RGB{246, 170, 9}, false},
	{10, "Yellow", RGB{249, 221, 59}, false},
	{11, "Light Yellow", RGB{255, 250, 188}, false},
	{12, "Dark Green", RGB{14, 185, 104}, false},
	{13, "Green", RGB{19, 230, 123}, false},
	{14, "Light Green", RGB{135, 255, 94}, false},
	{15, "Dark Teal", RGB{12, 129, 110}, false},
	{16, "Teal", RGB{16, 174, 166}, false},
	{17, "Light Teal", RGB{19, 225, 190}, false},
	{18, "Dark Blue", RGB{40, 80, 158}, false},
	{19, "Blue", RGB{64, 147, 228}, false},
	{20, "Cyan", RGB{96, 247, 242}, false},
	{21, "Indigo", RGB{107, 80, 246}, false},
	{22, "Light Indigo", RGB{153, 177, 251}, false},
	{23, "Dark Purple", RGB{120, 12, 153}, false},
	{24, "Purple", RGB{170, 56, 185}, false},
	{25, "Light Purple", RGB{224, 159, 249}, false},
	{26, "Dark Pink", RGB{203, 0, 122}, false},
	{27, "Pink", RGB{236, 31, 128}, false},
	{28, "Light Pink", RGB{243, 141, 169}, false},
	{29, "Dark Brown", RGB{104, 70, 52}, false},
	{30, "Brown", RGB{149, 104, 42}, false},
	{31, "Beige", RGB{248, 178, 119}, false},
	{32, "Medium Gray", RGB{170, 170, 170}, true},
	{33, "Dark Red", RGB{165, 14, 30}, true},
	{34, "Light Red", RGB{250, 128, 114}, true},
	{35, "Dark Orange", RGB{228, 92, 26}, true},
	{36, "Dark Goldenrod", RGB{156, 132, 49}, true},
	{37, "Goldenrod", RGB{197, 173, 49}, true},
	{38, "Light Goldenrod", RGB{232, 212, 95}, true},
	{39, "Dark Olive", RGB{74, 107, 58}, true},
	{40, "Olive", RGB{90, 148, 74}, true},
	{41, "Light Olive", RGB{132, 197, 115}, true},
	{42, "Dark Cyan", RGB{15, 121, 159}, true},
	{43, "Light Cyan", RGB{187, 250, 242}, true},
	{44, "Dark Indigo", RGB{77, 49, 184}, true},
	{45, "Dark Slate Blue", RGB{74, 66, 132}, true},
	{46, "Slate Blue", RGB{122, 113, 196}, true},
	{47, "Light Slate Blue", RGB{181, 174, 241}, true},
	{48, "Dark Peach", RGB{155, 82, 73}, true},
	{49, "Peach", RGB{209, 128, 120}, true},
	{50, "Light Peach", RGB{250, 182, 164}, true},
	{51, "Dark Tan", RGB{123, 99, 82}, true},
	{52, "Tan", RGB{156, 132, 107}, true},
	{53, "Light Tan", RGB{214, 181, 148}, true},
	{54, "Dark Beige", RGB{209, 128, 81}, true},
	{55, "Light Beige", RGB{255, 197, 165}, true},
	{56, "Dark Stone", RGB{109, 100, 63}, true},
	{57, "Stone", RGB{148, 140, 107}, true},
	{58, "Light Stone", RGB{205, 197, 158}, true},
	{59, "Dark Slate", RGB{51, 57, 65}, true},
	{60, "Slate", RGB{109, 117, 141}, true},
	{61, "Light Slate", RGB{179, 185, 209}, true},
}

var (
	// ColorsID 颜色名 → colorIdx
	ColorsID = map[string]int{TransparentName: 0}
	// ColorsRGB 颜色名 → RGB
	ColorsRGB = map[string]RGB{}
	// PaidColors 付费色集合
	PaidColors = map[string]bool{}
	// FreeColors 免费色集合（不含透明）
	FreeColors = map[string]bool{}

	normalizedNames = map[string]string{}
)

func init() {
	for _, c := range Palette {
		ColorsID[c.Name] = c.ID
		ColorsRGB[c.Name] = c.Value
		if c.Paid {
			PaidColors[c.Name] = true
		} else {
			FreeColors[c.Name] = true
		}
		normalizedNames[normalizeKey(c.Name)] = c.Name
	}
}

func normalizeKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// NormalizeColorName 宽松匹配颜色名（忽略大小写/下划线），未知返回 ""
func NormalizeColorName(name string) string {
	if name == TransparentName {
		return name
	}
	return normalizedNames[normalizeKey(name)]
}

// FindColorName RGBA → 最近调色板颜色名。
// alpha 为 0 视为透明；有精确匹配用精确匹配，否则取 RGB 平方距离最小者。
func FindColorName(r, g, b, a uint8) string {
	if a == 0 {
		return TransparentName
	}

	best := ""
	bestDist := int(^uint(0) >> 1)
	for _, c := range Palette {
		dr := int(c.Value.R) - int(r)
		dg := int(c.Value.G) - int(g)
		db := int(c.Value.B) - int(b)
		dist := dr*dr + dg*dg + db*db
		if dist == 0 {
			return c.Name
		}
		if dist < bestDist {
			bestDist = dist
			best = c.Name
		}
	}
	return best
}

// ParseRGBStr 解析 "#rrggbb" / "rrggbb"，失败返回 false
func ParseRGBStr(s string) (RGB, bool) {
	s = strings.ToLower(strings.TrimPrefix(s, "#"))
	if len(s) != 6 {
		return RGB{}, false
	}
	var v [3]uint8
	for i := 0; i < 3; i++ {
		hi, ok1 := hexVal(s[i*2])
		lo, ok2 := hexVal(s[i*2+1])
		if !ok1 || !ok2 {
			return RGB{}, false
		}
		v[i] = hi<<4 | lo
	}
	return RGB{v[0], v[1], v[2]}, true
}

func hexVal(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}
