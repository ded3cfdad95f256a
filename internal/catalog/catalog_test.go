package catalog

import (
	"testing"

	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
)

func TestCreditPackages(t *testing.T) {
	pkgs := CreditPackages()
	if len(pkgs) != 4 {
		t.Fatalf("expected 4 packages, got %d", len(pkgs))
	}
	want := []struct {
		credits int
		price   int64
	}{{1, 5000}, {3, 10000}, {10, 30000}, {30, 80000}}
	for i, w := range want {
		if pkgs[i].CreditsGranted != w.credits || pkgs[i].PriceMinorUnits != w.price {
			t.Fatalf("package %d: got %+v", i, pkgs[i])
		}
	}
	if !pkgs[1].Popular || !pkgs[3].BestValue {
		t.Fatalf("popular/best value flags not set")
	}

	pkgs[0].Label = "changed"
	if CreditPackages()[0].Label != "1 Sticker" {
		t.Fatalf("catalog mutated through returned slice")
	}
}

func TestStickerPacksReturnsCopies(t *testing.T) {
	packs := StickerPacks()
	packs[0].PreviewGlyphs[0] = "x"
	if StickerPacks()[0].PreviewGlyphs[0] == "x" {
		t.Fatalf("preview glyphs shared with catalog")
	}
	free := 0
	for _, p := range StickerPacks() {
		if p.IsFree {
			free++
			if p.PriceMinorUnits != 0 {
				t.Fatalf("free pack %q has a price", p.Name)
			}
		}
	}
	if free != 1 {
		t.Fatalf("expected exactly one free pack, got %d", free)
	}
}

func TestFind(t *testing.T) {
	pkg, err := FindCreditPackage(3)
	if err != nil || pkg.CreditsGranted != 10 {
		t.Fatalf("unexpected package %+v err %v", pkg, err)
	}
	if _, err := FindCreditPackage(99); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	pack, err := FindStickerPack(2)
	if err != nil || pack.Name != "Naija Vibes" {
		t.Fatalf("unexpected pack %+v err %v", pack, err)
	}
	if _, err := FindStickerPack(0); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPricing(t *testing.T) {
	tests := []struct {
		id         int
		perSticker int64
		display    string
		perText    string
	}{
		{id: 1, perSticker: 5000, display: "₦50", perText: "₦50"},
		{id: 2, perSticker: 3333, display: "₦100", perText: "₦33.33"},
		{id: 3, perSticker: 3000, display: "₦300", perText: "₦30"},
		{id: 4, perSticker: 2667, display: "₦800", perText: "₦26.67"},
	}
	for _, tt := range tests {
		pkg, err := FindCreditPackage(tt.id)
		if err != nil {
			t.Fatalf("find %d: %v", tt.id, err)
		}
		if got := PerStickerPrice(pkg); got != tt.perSticker {
			t.Fatalf("package %d per sticker: want %d got %d", tt.id, tt.perSticker, got)
		}
		if got := pkg.DisplayPrice(); got != tt.display {
			t.Fatalf("package %d display: want %q got %q", tt.id, tt.display, got)
		}
		if got := pkg.DisplayPerSticker(); got != tt.perText {
			t.Fatalf("package %d per sticker display: want %q got %q", tt.id, tt.perText, got)
		}
	}

	if got := PerStickerPrice(CreditPackage{PriceMinorUnits: 100}); got != 0 {
		t.Fatalf("zero-credit package should price at 0, got %d", got)
	}
	if got := FormatPrice(1234, "USD"); got != "12.34 USD" {
		t.Fatalf("unexpected foreign format %q", got)
	}
	free, _ := FindStickerPack(1)
	if free.DisplayPrice() != "FREE" {
		t.Fatalf("free pack should display FREE")
	}
}
