package cleanup_test

import (
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bryan-buckman/dealscout/internal/cleanup"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"filler words removed", "Sony WH-1000XM5 Kopfhörer inkl. Tasche GRATIS", "Sony WH-1000XM5 Kopfhörer Tasche"},
		{"connectives", "Apple AirPods Pro + Ladecase und Kabel", "Apple AirPods Pro Ladecase Kabel"},
		{"temporal filler", "Jetzt nur 19,99€ statt 39,99€", "19,99€ 39,99€"},
		{"noise characters stripped", "Lego® Technic 42115 *** !!!", "Lego Technic 42115"},
		{"hyphen runs collapsed and edges trimmed", "--Nintendo Switch -- OLED...", "Nintendo Switch - OLED"},
		{"glued punctuation on filler", "Kamera (neu), Original Verpackung", "Kamera"},
		{"only filler", "neu gratis und mit", ""},
		{"filler joined by hyphen", "Sony Kopfhörer-Neu", "Sony Kopfhörer"},
		{"filler joined by hyphen before word", "Kopfhörer Neu-Tasche", "Kopfhörer Tasche"},
		{"filler joined by slash", "Lego/Gratis Set", "Lego Set"},
		{"filler between spaced hyphens", "Apple - neu - iPhone 15", "Apple - iPhone 15"},
		{"slash does not glue words", "USB-C/Lightning Kabel", "USB-C Lightning Kabel"},
		{"filler inside a word kept", "Neuheit Boxspringbett", "Neuheit Boxspringbett"},
		{"model number hyphen kept", "Sony WH-1000XM5", "Sony WH-1000XM5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cleanup.Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeOutputConstraints(t *testing.T) {
	allowed := regexp.MustCompile(`^[\p{L}\p{M}\p{N}_\s\-.,()€$£]*$`)
	inputs := []string{
		strings.Repeat("Samsung Galaxy S24 Ultra 512GB ", 10),
		"<b>Deal!</b> @Amazon: 50% Rabatt auf #Dyson V15 & Zubehör ~ Versand 0€",
		"ÄÖÜ äöü ß – “quoted” ‘single’ ★★★★★",
		"\t\n  \r",
		strings.Repeat("-", 200),
	}
	for _, in := range inputs {
		got := cleanup.Normalize(in)
		if n := utf8.RuneCountInString(got); n > cleanup.MaxNameLength {
			t.Errorf("Normalize(%q) has %d runes, want <= %d", in, n, cleanup.MaxNameLength)
		}
		if !allowed.MatchString(got) {
			t.Errorf("Normalize(%q) = %q contains characters outside the whitelist", in, got)
		}
		if again := cleanup.Normalize(in); again != got {
			t.Errorf("Normalize is not deterministic: %q vs %q", got, again)
		}
	}
}

func TestDisplayName(t *testing.T) {
	if got := cleanup.DisplayName("  [Apple   iPad Air]  "); got != "Apple iPad Air" {
		t.Errorf("DisplayName = %q", got)
	}
	long := strings.Repeat("x", 200)
	if got := cleanup.DisplayName(long); utf8.RuneCountInString(got) != cleanup.MaxNameLength {
		t.Errorf("DisplayName length = %d, want %d", utf8.RuneCountInString(got), cleanup.MaxNameLength)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"19,99€", "19.99", true},
		{"€ 19.99", "19.99", true},
		{"19,99 EUR", "19.99", true},
		{"nur 7.50 Euro", "7.5", true},
		{"Preis: 12,00", "12", true},
		{"Bestpreis 1.299,00 € bei Otto", "1299", true},
		{"no price here", "0", false},
		{"19 €", "0", false},
	}
	for _, tt := range tests {
		got, ok := cleanup.ParsePrice(tt.in)
		if ok != tt.wantOK {
			t.Errorf("ParsePrice(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ParsePrice(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParsePricePatternOrder(t *testing.T) {
	// The trailing-euro pattern is tried before the Preis: label.
	got, ok := cleanup.ParsePrice("Preis: 10,00 oder 8,50€")
	if !ok || got.String() != "8.5" {
		t.Errorf("ParsePrice = %s, %v; want 8.5, true", got, ok)
	}
}
