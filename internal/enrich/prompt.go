package enrich

import (
	"strings"
)

// missingFieldsLabel prefixes the line that lists the fields to fill. Stub reads it back.
const missingFieldsLabel = "Missing fields that need to be filled: "

// BuildPrompt returns the sommelier instruction for one row. language defaults to
// DefaultLanguage when blank.
func BuildPrompt(description string, missing []string, language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		language = DefaultLanguage
	}
	if strings.TrimSpace(description) == "" {
		description = "(no data available)"
	}

	// Keep this prompt free of anything but the row itself: no secrets, no other rows.
	return strings.TrimSpace(`
You are an expert sommelier with deep knowledge of wines from around the world, Italian wines in particular.

A wine catalog has missing information. Using the data that is available, fill in the missing fields with accurate, specific and authentic information.

Available wine data:
` + description + `

` + missingFieldsLabel + strings.Join(missing, ", ") + `

Guidelines:
- Provide values only for the missing fields listed above.
- Descriptions: two or three sentences on the wine's character, history and appeal.
- Grapes: name the varieties, with percentages for blends (for example "85% Barbera, 15% Nebbiolo").
- Alcohol: a realistic percentage for the style and region (for example "13.5%").
- Region and appellation: the precise region and the appellation with its classification (for example "Piedmont", "Barbera d'Asti DOCG").
- Tasting notes: aroma, palate, finish and structure.
- Food matching: three or four specific pairings.
- Serving temperature: a range in Celsius (for example "16-18°C").
- Drinking window and glass: a year range and a glass type.
- Terroir, philosophy, production and closure: soil, elevation and climate; winemaking approach; estimated bottle count; cork or screw cap.
- Keep every value consistent with the wine's origin, style, quality level and vintage.
- Write ALL values in ` + language + `. This is mandatory.

Respond with a single JSON object whose keys are exactly the missing field names above and whose values are your completions as strings. Do not include fields that already have data or fields that are not listed.
`)
}
