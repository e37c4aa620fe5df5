package extract

import (
	"fmt"
	"unicode/utf8"
)

// MaxDescriptionLength is how much of an entry's description reaches the model.
const MaxDescriptionLength = 1000

const promptTemplate = `Analysiere folgenden Deal-Eintrag aus einem RSS-Feed und extrahiere alle physischen Produkte mit ihrem Angebotspreis.

Titel: %s
Beschreibung: %s

Regeln:
1. Nur physische Produkte, die man weiterverkaufen kann. Ignoriere Verträge, Tarife, Reisen, Abonnements, Gutscheine, Dienstleistungen und Tickets.
2. Enthält das Angebot mehrere Produkte (Bundle), liste jedes Produkt einzeln auf. Jedes Produkt erhält denselben, ungeteilten Gesamtpreis des Angebots.
3. Kürze Produktnamen auf Marke und Modell, höchstens 10 Wörter, ohne Werbesprache.
4. Preis als Zahl in Euro ohne Währungssymbol. Wenn kein Preis gefunden wird oder es kein physisches Produkt ist, gib PREIS 1: 0 zurück.

Antworte ausschließlich in diesem Format:
PRODUKT 1: [Produktname]
PREIS 1: [Preis]
PRODUKT 2: [Produktname]
PREIS 2: [Preis]
`

// buildPrompt renders the extraction instruction for one feed entry.
func buildPrompt(title, description string) string {
	return fmt.Sprintf(promptTemplate, title, truncateRunes(description, MaxDescriptionLength))
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
