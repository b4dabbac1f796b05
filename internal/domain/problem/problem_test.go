package problem

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

func TestRatingWindow(t *testing.T) {
	center, f := RatingWindow(1400, 1550, 200)
	assert.Equal(t, shared.Rating(1500), center)
	assert.Equal(t, shared.Rating(1300), f.MinRating)
	assert.Equal(t, shared.Rating(1700), f.MaxRating)
}

func TestNearest_TieBreaksByRef(t *testing.T) {
	candidates := []Problem{
		{Ref: "cf:9", Rating: 1600},
		{Ref: "cf:3", Rating: 1400},
		{Ref: "cf:5", Rating: 1600},
	}
	p, ok := Nearest(candidates, 1500)
	assert.True(t, ok)
	assert.Equal(t, "cf:3", p.Ref)

	p, _ = Nearest(candidates[:1:1], 1500)
	assert.Equal(t, "cf:9", p.Ref)

	_, ok = Nearest(nil, 1500)
	assert.False(t, ok)
}

func TestNearest_DoesNotReorderInput(t *testing.T) {
	candidates := []Problem{{Ref: "b", Rating: 1000}, {Ref: "a", Rating: 1500}}
	_, _ = Nearest(candidates, 1500)
	assert.Equal(t, "b", candidates[0].Ref)
}

func TestFilter_Matches(t *testing.T) {
	f := Filter{MinRating: 1000, MaxRating: 1400, Tag: "dp"}
	assert.True(t, f.Matches(Problem{Rating: 1200, Tags: []string{"greedy", "dp"}}))
	assert.False(t, f.Matches(Problem{Rating: 1200, Tags: []string{"greedy"}}))
	assert.False(t, f.Matches(Problem{Rating: 1500, Tags: []string{"dp"}}))
}
