package counter

import (
	"fmt"
	"strings"
	"time"
)

// suitLabels are the user-facing French names, in display order.
var suitLabels = map[Symbol]string{
	Clubs:    "Trèfle",
	Diamonds: "Carreau",
	Spades:   "Pique",
	Hearts:   "Coeur",
}

// Render formats a channel's totals for the reply sent after counting.
// Style selects the layout (1 detailed, 2 compact, 3 emoji-only);
// unknown styles fall back to 1.
func Render(t Totals, style int) string {
	switch style {
	case 2:
		parts := make([]string, 0, len(Symbols))
		for _, s := range Symbols {
			parts = append(parts, fmt.Sprintf("%s %d", s, t[s]))
		}
		return "📊 " + strings.Join(parts, " | ") + fmt.Sprintf(" | Total %d", t.Sum())
	case 3:
		var b strings.Builder
		for _, s := range Symbols {
			for i := 0; i < t[s]; i++ {
				b.WriteString(string(s))
			}
		}
		if b.Len() == 0 {
			return "📊 (aucune carte)"
		}
		return "📊 " + b.String()
	default:
		var b strings.Builder
		b.WriteString("📊 **Compteurs du canal**\n\n")
		for _, s := range Symbols {
			fmt.Fprintf(&b, "%s **%s :** %d\n", s, suitLabels[s], t[s])
		}
		fmt.Fprintf(&b, "\n🃏 **Total :** %d", t.Sum())
		return b.String()
	}
}

// RenderReport formats the periodic auto-report from a pre-reset snapshot.
// The timestamp is rendered in the caller's location (fixed UTC+1).
func RenderReport(t Totals, now time.Time) string {
	var b strings.Builder
	b.WriteString("📊 **Bilan automatique du compteur**\n\n")
	fmt.Fprintf(&b, "🕐 **Heure :** %s (heure du Bénin)\n\n", now.Format("15:04:05"))
	for _, s := range Symbols {
		fmt.Fprintf(&b, "%s **%s :** %d ✅\n", s, suitLabels[s], t[s])
	}
	b.WriteString("\n🔄 **Compteurs remis à zéro pour le prochain cycle**")
	return b.String()
}
