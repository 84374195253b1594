package render

// Thumbnail grid geometry. Desktop fits five thumbnails per row in a 600px
// gallery, mobile four in roughly 350px.
const (
	desktopPerRow  = 5
	desktopStep    = 120
	desktopRowStep = 100
	desktopMargin  = 200

	mobilePerRow  = 4
	mobileStep    = 90
	mobileRowStep = 90
	mobileMargin  = 260

	thumbnailBase = -150
)

// Position places the thumbnail of the Nth image (1-based).
type Position struct {
	N      int
	Left   int
	Bottom int
}

// GalleryLayout is the thumbnail placement for one breakpoint. MarginBottom
// reserves room under the main image for every thumbnail row.
type GalleryLayout struct {
	Positions    []Position
	MarginBottom int
}

type Layout struct {
	Desktop GalleryLayout
	Mobile  GalleryLayout
}

// ComputeLayout lays out n thumbnails. With no images both breakpoints keep
// their base margin and have no positions.
func ComputeLayout(n int) Layout {
	return Layout{
		Desktop: grid(n, desktopPerRow, desktopStep, desktopRowStep, desktopMargin),
		Mobile:  grid(n, mobilePerRow, mobileStep, mobileRowStep, mobileMargin),
	}
}

func grid(n, perRow, step, rowStep, margin int) GalleryLayout {
	if n <= 0 {
		return GalleryLayout{MarginBottom: margin}
	}

	positions := make([]Position, n)
	for i := range positions {
		row, col := i/perRow, i%perRow
		positions[i] = Position{
			N:      i + 1,
			Left:   col * step,
			Bottom: thumbnailBase - row*rowStep,
		}
	}

	rows := (n - 1) / perRow
	return GalleryLayout{
		Positions:    positions,
		MarginBottom: margin + rows*rowStep,
	}
}
