// Package catalog holds the fixed art style catalog and the rules that pick
// which styles to generate first for a vehicle.
package catalog

import "github.com/pinstripe-labs/carart/engine/domain"

// styles is the catalog in declaration order. Never mutated at runtime.
var styles = []domain.Style{
	{ID: "vintage-poster", Label: "Vintage Poster", Emoji: "🎞️", ArtStyle: "1950s vintage travel poster, flat screen-print colors, aged paper"},
	{ID: "synthwave", Label: "Synthwave", Emoji: "🌆", ArtStyle: "80s synthwave retrowave, neon grid horizon, magenta and cyan glow", Color: "#FF2BD6", BackgroundColor: "#120458"},
	{ID: "blueprint", Label: "Blueprint", Emoji: "📐", ArtStyle: "technical blueprint line drawing with dimension callouts", Color: "#FFFFFF", BackgroundColor: "#1E3A8A"},
	{ID: "pop-art", Label: "Pop Art", Emoji: "💥", ArtStyle: "Lichtenstein pop art, ben-day dots, bold outlines"},
	{ID: "watercolor", Label: "Watercolor", Emoji: "🎨", ArtStyle: "loose watercolor illustration with soft bleeding edges"},
	{ID: "anime", Label: "Anime", Emoji: "🌸", ArtStyle: "Japanese anime cel-shaded key visual"},
	{ID: "ukiyo-e", Label: "Ukiyo-e", Emoji: "🌊", ArtStyle: "Japanese ukiyo-e woodblock print, Hokusai waves"},
	{ID: "lowbrow", Label: "Kustom Kulture", Emoji: "🔥", ArtStyle: "kustom kulture lowbrow art, pinstriping and hot rod flames"},
	{ID: "chicano", Label: "Chicano", Emoji: "🌹", ArtStyle: "chicano fine-line black and grey tattoo art, roses and script"},
	{ID: "pixel-art", Label: "Pixel Art", Emoji: "👾", ArtStyle: "16-bit pixel art side view, limited palette"},
	{ID: "comic", Label: "Comic Book", Emoji: "🗯️", ArtStyle: "american comic book panel, heavy inks, halftone shading"},
	{ID: "line-art", Label: "Minimal Line", Emoji: "✏️", ArtStyle: "single continuous line minimalist illustration", Color: "#111111", BackgroundColor: "#F5F5F5"},
}

var byID = func() map[string]domain.Style {
	m := make(map[string]domain.Style, len(styles))
	for _, s := range styles {
		m[s.ID] = s
	}
	return m
}()

// Styles returns a copy of the catalog in declaration order.
func Styles() []domain.Style {
	return append([]domain.Style(nil), styles...)
}

// Lookup returns the catalog entry for id.
func Lookup(id string) (domain.Style, bool) {
	s, ok := byID[id]
	return s, ok
}

// Size is the number of catalog entries.
func Size() int { return len(styles) }

// IdleStates returns one idle state per catalog entry, in catalog order.
func IdleStates() []domain.StyleState {
	out := make([]domain.StyleState, len(styles))
	for i, s := range styles {
		out[i] = domain.StyleState{StyleID: s.ID, Status: domain.StatusIdle}
	}
	return out
}
