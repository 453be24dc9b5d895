package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"wplace/painter/model"
	"wplace/painter/system"
)

var (
	red  = color.NRGBA{237, 28, 36, 255}
	blue = color.NRGBA{64, 147, 228, 255}
)

func writeTemplatePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "template.png")
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// fetcher：整张画布按给定图绘制，其余透明
func canvasFetcher(t *testing.T, painted *image.NRGBA) TileFetcher {
	t.Helper()
	tile := image.NewNRGBA(image.Rect(0, 0, model.TileSize, model.TileSize))
	if painted != nil {
		b := painted.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				tile.Set(x, y, painted.At(x, y))
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, tile); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	return func(ctx context.Context, tc model.TileCoords) ([]byte, error) {
		return data, nil
	}
}

func twoColorTemplate() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if y < 2 {
				img.Set(x, y, red)
			} else {
				img.Set(x, y, blue)
			}
		}
	}
	return img
}

func testAccount(t *testing.T, tpl *image.NRGBA, preferred []string) *system.AccountConfig {
	t.Helper()
	return &system.AccountConfig{
		Identifier:      "test",
		Template:        model.Template{File: writeTemplatePNG(t, tpl)},
		PreferredColors: preferred,
		MinPaintCharges: 10,
	}
}

func TestSelectColorsBudget(t *testing.T) {
	acct := testAccount(t, twoColorTemplate(), nil)
	a := &SnapshotAssembler{Fetch: canvasFetcher(t, nil)}
	info := &model.UserInfo{Charges: model.Charges{Count: 10, Max: 100, CooldownMs: 30000}}

	// 预算 9：第一个颜色 8 像素未达预算，第二个也入选
	sel, remaining, err := SelectColors(context.Background(), a, acct, info, NewClaimRegistry())
	if err != nil {
		t.Fatal(err)
	}
	if sel == nil || !remaining {
		t.Fatalf("expected selection, got sel=%v remaining=%v", sel, remaining)
	}
	if len(sel.Entries) != 2 || sel.TotalPixels() != 16 {
		t.Fatalf("selection: %s", spew.Sdump(sel.Entries))
	}

	// 预算 4：首个颜色即耗尽预算
	info.Charges.Count = 5
	sel, _, err = SelectColors(context.Background(), a, acct, info, NewClaimRegistry())
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.Entries) != 1 || sel.TotalPixels() != 8 {
		t.Fatalf("budget-capped selection: %s", spew.Sdump(sel.Entries))
	}
}

func TestSelectColorsPreferred(t *testing.T) {
	acct := testAccount(t, twoColorTemplate(), []string{"blue"})
	a := &SnapshotAssembler{Fetch: canvasFetcher(t, nil)}
	info := &model.UserInfo{Charges: model.Charges{Count: 5}}

	sel, _, err := SelectColors(context.Background(), a, acct, info, NewClaimRegistry())
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.Entries) != 1 || sel.Entries[0].Name != "Blue" {
		t.Fatalf("preferred color not first: %s", spew.Sdump(sel.Entries))
	}
}

func TestSelectColorsSkipsClaimed(t *testing.T) {
	acct := testAccount(t, twoColorTemplate(), nil)
	a := &SnapshotAssembler{Fetch: canvasFetcher(t, nil)}
	info := &model.UserInfo{Charges: model.Charges{Count: 5}}

	reg := NewClaimRegistry()
	release := reg.Acquire([]string{"Red"})
	defer release()

	sel, remaining, err := SelectColors(context.Background(), a, acct, info, reg)
	if err != nil {
		t.Fatal(err)
	}
	if !remaining || len(sel.Entries) != 1 || sel.Entries[0].Name != "Blue" {
		t.Fatalf("claimed color not skipped: %s", spew.Sdump(sel))
	}
}

func TestSelectColorsSkipsUnowned(t *testing.T) {
	// 付费色 Medium Gray 未拥有时不可选
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.Set(x, y, color.NRGBA{170, 170, 170, 255})
		}
	}
	acct := testAccount(t, img, nil)
	a := &SnapshotAssembler{Fetch: canvasFetcher(t, nil)}
	info := &model.UserInfo{Charges: model.Charges{Count: 50}}

	sel, remaining, err := SelectColors(context.Background(), a, acct, info, NewClaimRegistry())
	if err != nil {
		t.Fatal(err)
	}
	if sel != nil || !remaining {
		t.Fatalf("unowned paid color selected: sel=%v remaining=%v", sel, remaining)
	}

	// 解锁付费色后可选
	info.ExtraColorsBitmap = 1
	sel, _, err = SelectColors(context.Background(), a, acct, info, NewClaimRegistry())
	if err != nil {
		t.Fatal(err)
	}
	if sel == nil || sel.Entries[0].Name != "Medium Gray" {
		t.Fatalf("owned paid color not selected: %s", spew.Sdump(sel))
	}
}

func TestSelectColorsTemplateComplete(t *testing.T) {
	tpl := twoColorTemplate()
	acct := testAccount(t, tpl, nil)
	// 画布与模板完全一致
	a := &SnapshotAssembler{Fetch: canvasFetcher(t, tpl)}
	info := &model.UserInfo{Charges: model.Charges{Count: 50}}

	sel, remaining, err := SelectColors(context.Background(), a, acct, info, NewClaimRegistry())
	if err != nil {
		t.Fatal(err)
	}
	if sel != nil || remaining {
		t.Fatalf("completed template: sel=%v remaining=%v", sel, remaining)
	}
}

func TestSelectColorsCropFallback(t *testing.T) {
	// 子选区内画布已完成，全模板仍有错配 → 回退全模板
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, red)
		}
	}
	painted := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			painted.Set(x, y, red)
		}
	}

	acct := testAccount(t, img, nil)
	acct.Template.Crop = &model.CropRect{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	a := &SnapshotAssembler{Fetch: canvasFetcher(t, painted)}
	info := &model.UserInfo{Charges: model.Charges{Count: 50}}

	sel, remaining, err := SelectColors(context.Background(), a, acct, info, NewClaimRegistry())
	if err != nil {
		t.Fatal(err)
	}
	if sel == nil || !remaining {
		t.Fatalf("fallback failed: sel=%v remaining=%v", sel, remaining)
	}
	if sel.Template != &acct.Template {
		t.Fatal("fallback must use the full template")
	}
	if sel.TotalPixels() != 12 {
		t.Fatalf("fallback mismatch count: %d", sel.TotalPixels())
	}
}

func TestRankEntries(t *testing.T) {
	entries := []model.ColorEntry{
		{Name: "Black", Count: 100},
		{Name: "Red", Count: 50},
		{Name: "Medium Gray", Paid: true, Count: 10},
		{Name: "Blue", Count: 80},
	}

	reg := NewClaimRegistry()
	ranked := rankEntries(entries, []string{"red"}, reg)
	want := []string{"Red", "Medium Gray", "Black", "Blue"}
	for i, name := range want {
		if ranked[i].Name != name {
			t.Fatalf("rank[%d]: got %s want %s (%s)", i, ranked[i].Name, name, spew.Sdump(ranked))
		}
	}

	// 被认领的颜色排到同级末尾
	release := reg.Acquire([]string{"Black"})
	defer release()
	ranked = rankEntries(entries, nil, reg)
	want = []string{"Medium Gray", "Blue", "Red", "Black"}
	for i, name := range want {
		if ranked[i].Name != name {
			t.Fatalf("claimed rank[%d]: got %s want %s", i, ranked[i].Name, name)
		}
	}
}
