package facematch

import (
	"image"
	"math"
	"sort"
)

// ComputeIoU calculates Intersection over Union between two rectangles.
func ComputeIoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}

	intersection := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// ScaleRect maps a rectangle found on a downsampled frame back to the original
// resolution. scale is the factor the frame was shrunk by (e.g. 0.25).
func ScaleRect(r image.Rectangle, scale float64) image.Rectangle {
	if scale <= 0 {
		return r
	}
	inv := 1 / scale
	return image.Rect(
		int(math.Floor(float64(r.Min.X)*inv)),
		int(math.Floor(float64(r.Min.Y)*inv)),
		int(math.Floor(float64(r.Max.X)*inv)),
		int(math.Floor(float64(r.Max.Y)*inv)),
	)
}

// RectFromCorners builds a rectangle from an [x1, y1, x2, y2] box.
func RectFromCorners(bbox []float64) (image.Rectangle, bool) {
	if len(bbox) != 4 {
		return image.Rectangle{}, false
	}
	r := image.Rect(int(bbox[0]), int(bbox[1]), int(bbox[2]), int(bbox[3]))
	return r, !r.Empty()
}

// SuppressOverlaps drops boxes that overlap an earlier, larger box by more than
// threshold IoU. Detectors occasionally report the same face twice.
func SuppressOverlaps(boxes []image.Rectangle, threshold float64) []image.Rectangle {
	if len(boxes) < 2 {
		return boxes
	}
	order := make([]int, len(boxes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := boxes[order[i]], boxes[order[j]]
		return a.Dx()*a.Dy() > b.Dx()*b.Dy()
	})

	keep := make([]bool, len(boxes))
	var kept []int
	for _, i := range order {
		overlaps := false
		for _, k := range kept {
			if ComputeIoU(boxes[i], boxes[k]) > threshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			keep[i] = true
			kept = append(kept, i)
		}
	}

	// Preserve detector order for the survivors.
	out := make([]image.Rectangle, 0, len(kept))
	for i, b := range boxes {
		if keep[i] {
			out = append(out, b)
		}
	}
	return out
}

// Largest returns the index of the box with the largest area, -1 when empty.
func Largest(boxes []image.Rectangle) int {
	best, bestArea := -1, -1
	for i, b := range boxes {
		if area := b.Dx() * b.Dy(); area > bestArea {
			best, bestArea = i, area
		}
	}
	return best
}
