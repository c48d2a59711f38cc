package counter

import (
	"strings"
	"testing"
	"time"
)

func sampleTotals() Totals {
	t := zeroTotals()
	t[Hearts] = 2
	t[Diamonds] = 1
	t[Clubs] = 4
	return t
}

func TestRenderDetailed(t *testing.T) {
	out := Render(sampleTotals(), 1)
	for _, want := range []string{
		"Compteurs du canal",
		"**Trèfle :** 4",
		"**Carreau :** 1",
		"**Pique :** 0",
		"**Coeur :** 2",
		"**Total :** 7",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("style 1 output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderCompact(t *testing.T) {
	out := Render(sampleTotals(), 2)
	if !strings.Contains(out, "Total 7") {
		t.Fatalf("style 2 output missing total:\n%s", out)
	}
}

func TestRenderEmoji(t *testing.T) {
	out := Render(sampleTotals(), 3)
	if strings.Count(out, string(Clubs)) != 4 {
		t.Fatalf("style 3 should repeat %s 4 times:\n%s", Clubs, out)
	}

	if out := Render(zeroTotals(), 3); !strings.Contains(out, "aucune carte") {
		t.Fatalf("style 3 empty output = %q", out)
	}
}

func TestRenderUnknownStyleFallsBack(t *testing.T) {
	if Render(sampleTotals(), 99) != Render(sampleTotals(), 1) {
		t.Fatalf("unknown style should render like style 1")
	}
}

func TestRenderReport(t *testing.T) {
	zone := time.FixedZone("UTC+1", 3600)
	now := time.Date(2026, 8, 26, 13, 45, 7, 0, zone)

	out := RenderReport(sampleTotals(), now)
	for _, want := range []string{
		"Bilan automatique du compteur",
		"13:45:07 (heure du Bénin)",
		"**Trèfle :** 4 ✅",
		"Compteurs remis à zéro pour le prochain cycle",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}
