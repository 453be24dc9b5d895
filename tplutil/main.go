// tplutil 离线检查模板：包围盒、覆盖的 tile、逐色像素统计。
//
//	go run ./tplutil -template data/template.png -coords "(Tl X: 742, Tl Y: 1148, Px X: 30, Px Y: 735)"
package main

import (
	"flag"
	"fmt"
	"image"
	"image/png"
	"os"
	"sort"

	"wplace/painter/model"
)

func main() {
	templatePath := flag.String("template", "data/template.png", "template PNG path")
	coordsStr := flag.String("coords", "", "anchor coords in Blue Marble format")
	flag.Parse()

	if *coordsStr == "" {
		fmt.Fprintln(os.Stderr, "missing -coords")
		os.Exit(1)
	}
	anchor, err := model.ParseCoords(*coordsStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	f, err := os.Open(*templatePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "decode template:", err)
		os.Exit(1)
	}

	b := img.Bounds()
	corner := anchor.Offset(b.Dx()-1, b.Dy()-1)
	w, h := anchor.SizeWith(corner)

	fmt.Printf("template: %s (%dx%d)\n", *templatePath, b.Dx(), b.Dy())
	fmt.Printf("anchor:   %s\n", anchor.HumanRepr())
	fmt.Printf("corner:   %s\n", corner.HumanRepr())
	fmt.Printf("size:     %dx%d px\n", w, h)
	fmt.Printf("share:    %s\n", anchor.ShareURL(15))

	tiles := anchor.AllTileCoords(corner)
	fmt.Printf("tiles:    %d covered\n", len(tiles))
	for _, t := range tiles {
		fmt.Printf("  (%d, %d)\n", t.TlX, t.TlY)
	}

	counts := countColors(img)
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return counts[names[i]] > counts[names[j]] })

	opaque := 0
	for _, name := range names {
		opaque += counts[name]
	}
	fmt.Printf("pixels:   %d opaque / %d total\n", opaque, b.Dx()*b.Dy())
	for _, name := range names {
		paid := ""
		if model.PaidColors[name] {
			paid = " (paid)"
		}
		fmt.Printf("  %-18s %6d%s\n", name, counts[name], paid)
	}
}

// countColors 模板逐像素归一到调色板后的计数，透明像素不计
func countColors(img image.Image) map[string]int {
	b := img.Bounds()
	counts := map[string]int{}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, a := img.At(x, y).RGBA()
			name := model.FindColorName(uint8(r>>8), uint8(g>>8), uint8(bb>>8), uint8(a>>8))
			if name == model.TransparentName {
				continue
			}
			counts[name]++
		}
	}
	return counts
}
