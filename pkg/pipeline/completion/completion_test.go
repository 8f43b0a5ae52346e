package completion_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palantir/palantir-compute-module-wine-enricher/pkg/pipeline/completion"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  map[string]string
		layer completion.Layer
	}{
		{
			name:  "strict object",
			raw:   `{"Region":"Piedmont"}`,
			want:  map[string]string{"Region": "Piedmont"},
			layer: completion.LayerStrict,
		},
		{
			name:  "strict object with surrounding whitespace",
			raw:   "\n  {\"Region\": \"Piedmont\", \"Grape\": \"Barbera\"}  \n",
			want:  map[string]string{"Region": "Piedmont", "Grape": "Barbera"},
			layer: completion.LayerStrict,
		},
		{
			name:  "fenced json block",
			raw:   "```json\n{\"Region\":\"Piedmont\"}\n```",
			want:  map[string]string{"Region": "Piedmont"},
			layer: completion.LayerFenced,
		},
		{
			name:  "untagged fence with prose around it",
			raw:   "Here you go:\n```\n{\"Grape\":\"Nebbiolo\"}\n```\nEnjoy!",
			want:  map[string]string{"Grape": "Nebbiolo"},
			layer: completion.LayerFenced,
		},
		{
			name:  "embedded object",
			raw:   `Sure! The data is {"Region": "Tuscany", "Notes": "cherry {and} leather"} as requested.`,
			want:  map[string]string{"Region": "Tuscany", "Notes": "cherry {and} leather"},
			layer: completion.LayerEmbedded,
		},
		{
			name:  "line fallback",
			raw:   "Region: Piedmont\nGrape: Barbera",
			want:  map[string]string{"Region": "Piedmont", "Grape": "Barbera"},
			layer: completion.LayerLines,
		},
		{
			name:  "think block is stripped",
			raw:   "<think>the user wants JSON {not this}</think>\n{\"Region\":\"Veneto\"}",
			want:  map[string]string{"Region": "Veneto"},
			layer: completion.LayerStrict,
		},
		{
			name:  "garbage",
			raw:   "I'm sorry, I cannot help with that.",
			want:  map[string]string{},
			layer: completion.LayerNone,
		},
		{
			name:  "empty",
			raw:   "",
			want:  map[string]string{},
			layer: completion.LayerNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, layer := completion.ParseWithLayer(tt.raw)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.layer, layer, "layer %s", layer)
			assert.Equal(t, tt.want, completion.Parse(tt.raw))
		})
	}
}

func TestParseStrict_CoercesValues(t *testing.T) {
	got, err := completion.ParseStrict(`{
		"Alcohol": 13.5,
		"Vintage": 2019,
		"Barcode": 12345678901234567890,
		"Bottles": 1.2e4,
		"Magnum": 1.50,
		"Organic": true,
		"Pairings": ["risotto", "game"],
		"Meta": {"a": 1},
		"Unknown": null,
		"": "dropped",
		" Region ": "Langhe"
	}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Alcohol":  "13.5",
		"Vintage":  "2019",
		"Barcode":  "12345678901234567890",
		"Bottles":  "12000",
		"Magnum":   "1.5",
		"Organic":  "true",
		"Pairings": `["risotto","game"]`,
		"Meta":     `{"a":1}`,
		"Region":   "Langhe",
	}, got)
}

func TestLayersFailIndependently(t *testing.T) {
	_, err := completion.ParseStrict("prefix {\"a\":\"b\"}")
	assert.True(t, errors.Is(err, completion.ErrUnparseable))

	_, err = completion.ParseStrict(`["not", "an", "object"]`)
	assert.True(t, errors.Is(err, completion.ErrUnparseable))

	_, err = completion.ParseFenced(`{"a":"b"}`)
	assert.True(t, errors.Is(err, completion.ErrUnparseable), "no fence")

	_, err = completion.ParseFenced("```\nnot json\n```")
	assert.True(t, errors.Is(err, completion.ErrUnparseable), "fence with bad body")

	_, err = completion.ParseEmbedded("open { never closed")
	assert.True(t, errors.Is(err, completion.ErrUnparseable))

	_, err = completion.ParseLines("no pairs here")
	assert.True(t, errors.Is(err, completion.ErrUnparseable))
}

func TestParseEmbedded_SkipsInvalidSpans(t *testing.T) {
	got, err := completion.ParseEmbedded(`{bad} then {"Grape": "Sangiovese"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Grape": "Sangiovese"}, got)
}

func TestParseEmbedded_BraceInsideUnclosedSpan(t *testing.T) {
	got, err := completion.ParseEmbedded(`note {bad "x {"Region":"Veneto"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Region": "Veneto"}, got)

	got, err = completion.ParseEmbedded(`{ {"Grape": "Corvina"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Grape": "Corvina"}, got)
}

func TestParseEmbedded_ManyOpenBracesAndUnclosedString(t *testing.T) {
	raw := strings.Repeat("{ ", 200_000) + `"never closed`

	start := time.Now()
	_, err := completion.ParseEmbedded(raw)
	assert.True(t, errors.Is(err, completion.ErrUnparseable))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestParseLines(t *testing.T) {
	t.Run("multi-line values run to the next key", func(t *testing.T) {
		got, err := completion.ParseLines("Product Description: Deep ruby.\nNotes of plum.\nProduct Region: Piedmont")
		require.NoError(t, err)
		assert.Equal(t, "Deep ruby.\nNotes of plum.", got["Product Description"])
		assert.Equal(t, "Piedmont", got["Product Region"])
	})

	t.Run("bullets and bold markers", func(t *testing.T) {
		got, err := completion.ParseLines("- **Region:** Piedmont\n* __Grape__: Barbera")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Region": "Piedmont", "Grape": "Barbera"}, got)
	})

	t.Run("urls do not start a new key", func(t *testing.T) {
		got, err := completion.ParseLines("Source: see\nhttps://example.com/wine")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Source": "see\nhttps://example.com/wine"}, got)
	})

	t.Run("values keep inner colons", func(t *testing.T) {
		got, err := completion.ParseLines("Serving: open at 18:30")
		require.NoError(t, err)
		assert.Equal(t, "open at 18:30", got["Serving"])
	})

	t.Run("empty values are dropped", func(t *testing.T) {
		got, err := completion.ParseLines("Region:\nGrape: Barbera")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"Grape": "Barbera"}, got)
	})
}

func TestLayerString(t *testing.T) {
	assert.Equal(t, "strict", completion.LayerStrict.String())
	assert.Equal(t, "lines", completion.LayerLines.String())
	assert.Equal(t, "none", completion.LayerNone.String())
}
