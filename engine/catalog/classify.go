package catalog

import (
	"strconv"
	"strings"

	"github.com/pinstripe-labs/carart/engine/domain"
)

// lowriderModels are period sedan/coupe nameplates. Substring match on purpose
// so trims like "impala ss" still hit.
var lowriderModels = []string{
	"impala", "monte carlo", "caprice", "bel air", "el camino", "regal",
	"riviera", "cutlass", "grand prix", "bonneville", "lesabre", "deville",
	"fleetwood", "town car", "continental",
}

var lowriderMakes = map[string]bool{
	"chevrolet": true, "chevy": true, "buick": true, "oldsmobile": true,
	"pontiac": true, "cadillac": true, "lincoln": true, "mercury": true,
}

var jdmMakes = map[string]bool{
	"toyota": true, "honda": true, "nissan": true, "mazda": true, "subaru": true,
	"mitsubishi": true, "lexus": true, "acura": true, "infiniti": true, "datsun": true,
}

var truckKeywords = []string{
	"truck", "pickup", "f-150", "f-250", "f-350", "silverado", "sierra", "ram",
	"tacoma", "tundra", "ranger", "colorado", "canyon", "frontier", "titan",
	"ridgeline", "gladiator", "cybertruck", "avalanche",
}

var exoticMakes = []string{
	"ferrari", "lamborghini", "mclaren", "porsche", "aston martin", "bugatti",
	"pagani", "koenigsegg", "lotus", "maserati",
}

var sportsModels = []string{
	"corvette", "camaro", "mustang", "challenger", "charger", "viper", "hellcat",
	"shelby", "gt500", "zl1", "z06", "gt-r", "gtr", "370z", "350z", "400z",
	"supra", "nsx", "gr86", "brz", "miata", "mx-5", "wrx", "sti", "type r",
	"m2", "m3", "m4", "m5", "m8", "rs3", "rs5", "rs6", "r8", "amg gt", "c63",
	"i8", "f-type", "taycan", "plaid",
}

// Classify maps an identity to its category. Rules run in priority order and
// the first match wins. It never fails: an unparsable year counts as 0.
func Classify(v domain.VehicleIdentity) domain.Category {
	year := parseYear(v.Year)
	mk := strings.ToLower(strings.TrimSpace(v.Make))
	model := strings.ToLower(strings.TrimSpace(v.Model))

	switch {
	case year >= 1958 && year <= 1985 && containsAny(model, lowriderModels) && lowriderMakes[mk]:
		return domain.CategoryLowrider
	case jdmMakes[mk]:
		return domain.CategoryJDM
	case containsAny(mk+" "+model, truckKeywords):
		return domain.CategoryTruck
	case year >= 2010 && (containsAny(mk, exoticMakes) || containsAny(model, sportsModels)):
		return domain.CategoryModernSports
	case year > 0 && year < 1980:
		return domain.CategoryClassic
	case year >= 1980 && year <= 1999:
		return domain.CategoryEighties
	default:
		return domain.CategoryDefault
	}
}

// parseYear reads the leading digits of s, so "1970s" is 1970 and "?" is 0.
func parseYear(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
