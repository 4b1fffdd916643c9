package catalog

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pinstripe-labs/carart/engine/domain"
)

// makeAliases maps common spellings and nicknames to the canonical marque.
var makeAliases = map[string]string{
	"chevy": "Chevrolet", "chevrolet": "Chevrolet", "pontiac": "Pontiac", "buick": "Buick",
	"oldsmobile": "Oldsmobile", "olds": "Oldsmobile", "cadillac": "Cadillac", "caddy": "Cadillac",
	"ford": "Ford", "lincoln": "Lincoln", "mercury": "Mercury", "dodge": "Dodge",
	"plymouth": "Plymouth", "chrysler": "Chrysler", "gmc": "GMC", "ram": "Ram", "jeep": "Jeep",
	"toyota": "Toyota", "honda": "Honda", "nissan": "Nissan", "datsun": "Datsun",
	"mazda": "Mazda", "subaru": "Subaru", "mitsubishi": "Mitsubishi", "lexus": "Lexus",
	"acura": "Acura", "infiniti": "Infiniti",
	"vw": "Volkswagen", "volkswagen": "Volkswagen", "bmw": "BMW", "audi": "Audi",
	"merc": "Mercedes-Benz", "benz": "Mercedes-Benz", "mercedes": "Mercedes-Benz", "mercedes-benz": "Mercedes-Benz",
	"porsche": "Porsche", "ferrari": "Ferrari", "lambo": "Lamborghini", "lamborghini": "Lamborghini",
	"mclaren": "McLaren", "aston martin": "Aston Martin", "bugatti": "Bugatti", "lotus": "Lotus",
	"maserati": "Maserati", "tesla": "Tesla", "volvo": "Volvo", "hyundai": "Hyundai", "kia": "Kia",
}

// multiWordModels keeps names like "Monte Carlo" together instead of
// splitting the second word off as a trim.
var multiWordModels = []string{
	"monte carlo", "el camino", "grand national", "grand prix", "grand marquis",
	"town car", "coupe deville", "sedan deville", "land cruiser", "grand cherokee",
	"model 3", "model s", "model x", "model y", "3 series", "5 series",
}

var (
	makeRe     *regexp.Regexp
	yearFullRe = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	yearAbbrRe = regexp.MustCompile(`(?:^|\s)'(\d{2})\b`)
)

func init() {
	names := make([]string, 0, len(makeAliases))
	for alias := range makeAliases {
		names = append(names, regexp.QuoteMeta(alias))
	}
	// Longest first so "mercedes-benz" wins over "mercedes".
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	makeRe = regexp.MustCompile(`(?i)\b(` + strings.Join(names, "|") + `)\b`)
}

// ParseIdentity reads a free-text vehicle description such as
// "'70 chevy impala ss" into an identity. It reports false when no known
// marque is mentioned. The year is "?" when none is found.
func ParseIdentity(text string) (domain.VehicleIdentity, bool) {
	loc := makeRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return domain.VehicleIdentity{}, false
	}
	v := domain.VehicleIdentity{
		Year: "?",
		Make: makeAliases[strings.ToLower(text[loc[2]:loc[3]])],
	}
	if y := parseFullYear(text); y > 0 {
		v.Year = strconv.Itoa(y)
	} else if y := parseAbbrYear(text[:loc[0]]); y > 0 {
		v.Year = strconv.Itoa(y)
	}

	words := strings.Fields(yearFullRe.ReplaceAllString(text[loc[1]:], ""))
	if len(words) == 0 {
		return v, true
	}
	n := 1
	rest := strings.ToLower(strings.Join(words, " "))
	for _, m := range multiWordModels {
		if rest == m || strings.HasPrefix(rest, m+" ") {
			n = len(strings.Fields(m))
			break
		}
	}
	v.Model = titleWords(words[:n])
	if len(words) > n {
		v.Trim = strings.ToUpper(strings.Join(words[n:], " "))
	}
	return v, true
}

func parseFullYear(s string) int {
	m := yearFullRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	y, _ := strconv.Atoi(m[1])
	if y < 1900 || y > time.Now().Year()+1 {
		return 0
	}
	return y
}

// parseAbbrYear reads 'YY, resolving into the current century when the
// result would not lie in the future.
func parseAbbrYear(s string) int {
	m := yearAbbrRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	yy, _ := strconv.Atoi(m[1])
	if 2000+yy <= time.Now().Year()+1 {
		return 2000 + yy
	}
	return 1900 + yy
}

func titleWords(words []string) string {
	out := make([]string, len(words))
	for i, w := range words {
		if w == "" {
			continue
		}
		if strings.ContainsAny(w, "0123456789-") {
			out[i] = strings.ToUpper(w)
			continue
		}
		out[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(out, " ")
}
