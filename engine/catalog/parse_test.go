package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinstripe-labs/carart/engine/domain"
)

func TestParseIdentity(t *testing.T) {
	cases := []struct {
		in   string
		want domain.VehicleIdentity
	}{
		{"'70 chevy impala ss", domain.VehicleIdentity{Year: "1970", Make: "Chevrolet", Model: "Impala", Trim: "SS"}},
		{"1987 Buick Grand National", domain.VehicleIdentity{Year: "1987", Make: "Buick", Model: "Grand National"}},
		{"ford f-150 raptor 2019", domain.VehicleIdentity{Year: "2019", Make: "Ford", Model: "F-150", Trim: "RAPTOR"}},
		{"lambo huracan", domain.VehicleIdentity{Year: "?", Make: "Lamborghini", Model: "Huracan"}},
		{"Mercedes-Benz 300sl", domain.VehicleIdentity{Year: "?", Make: "Mercedes-Benz", Model: "300SL"}},
		{"'05 subaru", domain.VehicleIdentity{Year: "2005", Make: "Subaru"}},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseIdentity(tc.in)
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseIdentityNoMake(t *testing.T) {
	_, ok := ParseIdentity("a nice red car")
	assert.False(t, ok)
	_, ok = ParseIdentity("")
	assert.False(t, ok)
}

func TestParsedIdentityClassifies(t *testing.T) {
	cases := map[string]domain.Category{
		"'64 chevy impala":     domain.CategoryLowrider,
		"1991 mazda miata":     domain.CategoryJDM,
		"2022 ram 1500":        domain.CategoryTruck,
		"2015 ferrari 488":     domain.CategoryModernSports,
		"1967 ford mustang":    domain.CategoryClassic,
		"1989 volkswagen golf": domain.CategoryEighties,
	}
	for in, want := range cases {
		v, ok := ParseIdentity(in)
		require.True(t, ok, in)
		assert.Equal(t, want, Classify(v), in)
	}
}
