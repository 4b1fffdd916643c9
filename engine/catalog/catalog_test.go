package catalog

import (
	"testing"

	"github.com/pinstripe-labs/carart/engine/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(ss []domain.Style) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.ID
	}
	return out
}

func TestCatalogHasTwelveUniqueStyles(t *testing.T) {
	require.Equal(t, 12, Size())
	seen := map[string]bool{}
	for _, s := range Styles() {
		assert.False(t, seen[s.ID], "duplicate %s", s.ID)
		seen[s.ID] = true
		assert.NotEmpty(t, s.Label)
		assert.NotEmpty(t, s.ArtStyle)
	}
}

func TestValidatePriorities(t *testing.T) {
	require.NoError(t, ValidatePriorities())
}

func TestRankIsPermutationForEveryCategory(t *testing.T) {
	for _, c := range domain.Categories {
		t.Run(string(c), func(t *testing.T) {
			got := RankCategory(c)
			require.Len(t, got, Size())
			assert.ElementsMatch(t, ids(Styles()), ids(got))
		})
	}
}

func TestRankFollowsCategoryRow(t *testing.T) {
	got := Rank(domain.VehicleIdentity{Year: "1970", Make: "Chevrolet", Model: "Impala"})
	assert.Equal(t, priorities[domain.CategoryLowrider], ids(got))

	got = Rank(domain.VehicleIdentity{})
	assert.Equal(t, priorities[domain.CategoryDefault], ids(got))
}

func TestMergeAppendsMissingAndSkipsUnknown(t *testing.T) {
	all := []domain.Style{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	got := merge([]string{"c", "ghost", "a", "c"}, all)
	assert.Equal(t, []string{"c", "a", "b", "d"}, ids(got))
}

func TestCheckPermutationReportsProblems(t *testing.T) {
	row := append([]string(nil), priorities[domain.CategoryDefault]...)
	row[1] = row[0]
	assert.ErrorContains(t, checkPermutation(row), "duplicate")

	assert.ErrorContains(t, checkPermutation(row[:11]), "missing")
	assert.ErrorContains(t, checkPermutation([]string{"nope"}), "unknown")
}

func TestIdleStatesFollowCatalog(t *testing.T) {
	states := IdleStates()
	require.Len(t, states, Size())
	for i, s := range Styles() {
		assert.Equal(t, s.ID, states[i].StyleID)
		assert.Equal(t, domain.StatusIdle, states[i].Status)
	}
}
