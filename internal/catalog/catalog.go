// Package catalog holds the static credit packages and sticker packs.
package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
)

const (
	CurrencyNGN = "NGN"
	// minorUnitExponent converts kobo to naira.
	minorUnitExponent = -2
)

var currencySymbols = map[string]string{
	CurrencyNGN: "₦",
}

type CreditPackage struct {
	ID              int    `json:"id"`
	CreditsGranted  int    `json:"creditsGranted"`
	PriceMinorUnits int64  `json:"priceMinorUnits"`
	Currency        string `json:"currency"`
	Label           string `json:"label"`
	Popular         bool   `json:"popular"`
	BestValue       bool   `json:"bestValue"`
}

type StickerPack struct {
	ID              int      `json:"id"`
	Name            string   `json:"name"`
	PriceMinorUnits int64    `json:"priceMinorUnits"`
	Currency        string   `json:"currency"`
	StickerCount    int      `json:"stickerCount"`
	PreviewGlyphs   []string `json:"previewGlyphs"`
	IsFree          bool     `json:"isFree"`
}

var creditPackages = []CreditPackage{
	{ID: 1, CreditsGranted: 1, PriceMinorUnits: 5000, Currency: CurrencyNGN, Label: "1 Sticker"},
	{ID: 2, CreditsGranted: 3, PriceMinorUnits: 10000, Currency: CurrencyNGN, Label: "3 Stickers", Popular: true},
	{ID: 3, CreditsGranted: 10, PriceMinorUnits: 30000, Currency: CurrencyNGN, Label: "10 Stickers"},
	{ID: 4, CreditsGranted: 30, PriceMinorUnits: 80000, Currency: CurrencyNGN, Label: "30 Stickers", BestValue: true},
}

var stickerPacks = []StickerPack{
	{ID: 1, Name: "Love & Romance", Currency: CurrencyNGN, StickerCount: 12, PreviewGlyphs: []string{"❤️", "💕", "😍", "💑"}, IsFree: true},
	{ID: 2, Name: "Naija Vibes", PriceMinorUnits: 30000, Currency: CurrencyNGN, StickerCount: 15, PreviewGlyphs: []string{"🇳🇬", "🍛", "🚕", "💃"}},
	{ID: 3, Name: "Meme Pack", PriceMinorUnits: 50000, Currency: CurrencyNGN, StickerCount: 20, PreviewGlyphs: []string{"😂", "🤣", "💀", "🔥"}},
	{ID: 4, Name: "Office Life", PriceMinorUnits: 40000, Currency: CurrencyNGN, StickerCount: 18, PreviewGlyphs: []string{"💼", "☕", "💻", "📊"}},
}

// CreditPackages returns the packages in display order.
func CreditPackages() []CreditPackage {
	out := make([]CreditPackage, len(creditPackages))
	copy(out, creditPackages)
	return out
}

// StickerPacks returns the packs in display order.
func StickerPacks() []StickerPack {
	out := make([]StickerPack, len(stickerPacks))
	for i, p := range stickerPacks {
		p.PreviewGlyphs = append([]string(nil), p.PreviewGlyphs...)
		out[i] = p
	}
	return out
}

func FindCreditPackage(id int) (CreditPackage, error) {
	for _, p := range creditPackages {
		if p.ID == id {
			return p, nil
		}
	}
	return CreditPackage{}, pkgerrors.New(pkgerrors.CodeNotFound, "credit package not found").
		WithDetails(map[string]any{"id": id})
}

func FindStickerPack(id int) (StickerPack, error) {
	for _, p := range StickerPacks() {
		if p.ID == id {
			return p, nil
		}
	}
	return StickerPack{}, pkgerrors.New(pkgerrors.CodeNotFound, "sticker pack not found").
		WithDetails(map[string]any{"id": id})
}

// PerStickerPrice is the package price divided by its credits, rounded to
// the nearest minor unit.
func PerStickerPrice(p CreditPackage) int64 {
	if p.CreditsGranted <= 0 {
		return 0
	}
	return decimal.NewFromInt(p.PriceMinorUnits).
		Div(decimal.NewFromInt(int64(p.CreditsGranted))).
		Round(0).
		IntPart()
}

// FormatPrice renders minor units as a display price, e.g. ₦300 or ₦26.67.
func FormatPrice(minorUnits int64, currency string) string {
	amount := decimal.NewFromInt(minorUnits).Shift(minorUnitExponent)
	text := amount.StringFixed(2)
	if amount.Equal(amount.Truncate(0)) {
		text = amount.StringFixed(0)
	}
	if symbol, ok := currencySymbols[currency]; ok {
		return symbol + text
	}
	return fmt.Sprintf("%s %s", text, currency)
}

func (p CreditPackage) DisplayPrice() string {
	return FormatPrice(p.PriceMinorUnits, p.Currency)
}

func (p CreditPackage) DisplayPerSticker() string {
	return FormatPrice(PerStickerPrice(p), p.Currency)
}

func (p StickerPack) DisplayPrice() string {
	if p.IsFree {
		return "FREE"
	}
	return FormatPrice(p.PriceMinorUnits, p.Currency)
}
