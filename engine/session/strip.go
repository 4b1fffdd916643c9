package session

import (
	"cmp"
	"slices"

	"github.com/pinstripe-labs/carart/engine/domain"
	"github.com/pinstripe-labs/carart/pkg/imageutil"
)

const (
	// ThumbnailCeiling is the longest thumbnail (in characters) kept locally.
	ThumbnailCeiling = 60_000
	// DataURLThreshold is the longest inline data URL kept in style and
	// mockup entries.
	DataURLThreshold = 1_000
	// TrimmedCars is how many cars survive the second write attempt.
	TrimmedCars = 3
)

// Strip returns the image-free projection written to the local store: no
// original photos, thumbnails only under the ceiling, and large inline images
// blanked. Remote image URLs are kept. ev is not modified.
func Strip(ev domain.EventSession) domain.EventSession {
	out := ev.Clone()
	for i := range out.Cars {
		c := &out.Cars[i]
		c.Photo = ""
		if len(c.Thumbnail) >= ThumbnailCeiling {
			c.Thumbnail = ""
		}
		for j := range c.Styles {
			c.Styles[j].Image = blankLarge(c.Styles[j].Image)
		}
		for j := range c.Mockups {
			c.Mockups[j].Image = blankLarge(c.Mockups[j].Image)
		}
	}
	return out
}

func blankLarge(ref domain.ImageRef) domain.ImageRef {
	if imageutil.IsDataURL(string(ref)) && len(ref) > DataURLThreshold {
		return ""
	}
	return ref
}

// Trim keeps the n most recently created cars, in their original order, and
// blanks every thumbnail.
func Trim(ev domain.EventSession, n int) domain.EventSession {
	out := ev.Clone()
	if len(out.Cars) > n {
		idx := make([]int, len(out.Cars))
		for i := range idx {
			idx[i] = i
		}
		slices.SortStableFunc(idx, func(a, b int) int {
			return out.Cars[b].CreatedAt.Compare(out.Cars[a].CreatedAt)
		})
		keep := idx[:n]
		slices.SortFunc(keep, cmp.Compare[int])
		cars := make([]domain.CarSession, 0, n)
		for _, i := range keep {
			cars = append(cars, out.Cars[i])
		}
		out.Cars = cars
	}
	for i := range out.Cars {
		out.Cars[i].Thumbnail = ""
	}
	return out
}
