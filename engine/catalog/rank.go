package catalog

import (
	"fmt"
	"strings"

	"github.com/pinstripe-labs/carart/engine/domain"
)

// priorities is the hand-authored style order per category. Every row must be
// a permutation of the catalog ids; ValidatePriorities enforces it.
var priorities = map[domain.Category][]string{
	domain.CategoryClassic: {
		"vintage-poster", "lowbrow", "watercolor", "blueprint", "pop-art", "line-art",
		"comic", "ukiyo-e", "chicano", "synthwave", "pixel-art", "anime",
	},
	domain.CategoryEighties: {
		"synthwave", "pixel-art", "pop-art", "comic", "vintage-poster", "blueprint",
		"anime", "lowbrow", "watercolor", "line-art", "ukiyo-e", "chicano",
	},
	domain.CategoryTruck: {
		"lowbrow", "blueprint", "vintage-poster", "comic", "pop-art", "watercolor",
		"line-art", "synthwave", "pixel-art", "chicano", "ukiyo-e", "anime",
	},
	domain.CategoryJDM: {
		"anime", "ukiyo-e", "synthwave", "pixel-art", "blueprint", "comic",
		"pop-art", "line-art", "watercolor", "vintage-poster", "lowbrow", "chicano",
	},
	domain.CategoryLowrider: {
		"chicano", "lowbrow", "vintage-poster", "pop-art", "watercolor", "comic",
		"synthwave", "line-art", "blueprint", "ukiyo-e", "pixel-art", "anime",
	},
	domain.CategoryModernSports: {
		"synthwave", "blueprint", "comic", "anime", "pop-art", "line-art",
		"pixel-art", "watercolor", "vintage-poster", "ukiyo-e", "lowbrow", "chicano",
	},
	domain.CategoryDefault: {
		"pop-art", "watercolor", "comic", "synthwave", "vintage-poster", "blueprint",
		"line-art", "anime", "pixel-art", "lowbrow", "ukiyo-e", "chicano",
	},
}

// Rank returns the whole catalog ordered by predicted appeal for v.
func Rank(v domain.VehicleIdentity) []domain.Style {
	return RankCategory(Classify(v))
}

// RankCategory returns the catalog ordered for category c.
func RankCategory(c domain.Category) []domain.Style {
	order, ok := priorities[c]
	if !ok {
		order = priorities[domain.CategoryDefault]
	}
	return merge(order, styles)
}

// merge resolves ids against the catalog, skipping unknown ids and duplicates,
// then appends whatever the order left out in catalog order.
func merge(order []string, all []domain.Style) []domain.Style {
	index := make(map[string]domain.Style, len(all))
	for _, s := range all {
		index[s.ID] = s
	}
	out := make([]domain.Style, 0, len(all))
	seen := make(map[string]bool, len(all))
	for _, id := range order {
		s, ok := index[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, s)
	}
	for _, s := range all {
		if !seen[s.ID] {
			seen[s.ID] = true
			out = append(out, s)
		}
	}
	return out
}

// ValidatePriorities checks that every category has a row and that each row
// names every catalog id exactly once.
func ValidatePriorities() error {
	var problems []string
	for _, c := range domain.Categories {
		row, ok := priorities[c]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: missing row", c))
			continue
		}
		if err := checkPermutation(row); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", c, err))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("catalog: priority table: %s", strings.Join(problems, "; "))
	}
	return nil
}

func checkPermutation(row []string) error {
	counts := make(map[string]int, len(row))
	for _, id := range row {
		if _, ok := byID[id]; !ok {
			return fmt.Errorf("unknown id %q", id)
		}
		counts[id]++
		if counts[id] > 1 {
			return fmt.Errorf("duplicate id %q", id)
		}
	}
	for _, s := range styles {
		if counts[s.ID] == 0 {
			return fmt.Errorf("missing id %q", s.ID)
		}
	}
	return nil
}
