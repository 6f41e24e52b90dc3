package pipeline

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/padeliq/internal/domain/model"
)

const (
	hueBins = 50
	satBins = 60
	// Every sampleStep-th pixel on both axes feeds the histogram.
	sampleStep = 4
)

// transitions finds game boundaries from abrupt changes in the court's
// colour distribution. Only the lower half of the frame is used, where the
// court dominates over the crowd.
type transitions struct {
	threshold  float64
	prev       []float64
	boundaries []float64
}

func (t *transitions) observe(f model.Frame) {
	if f.Image == nil {
		return
	}
	h := hsHistogram(f.Image)
	if t.prev != nil {
		c := stat.Correlation(t.prev, h, nil)
		if !math.IsNaN(c) && c < t.threshold {
			t.boundaries = append(t.boundaries, f.Time)
		}
	}
	t.prev = h
}

// hsHistogram returns a normalized hue/saturation histogram of the lower
// half of img.
func hsHistogram(img image.Image) []float64 {
	hist := make([]float64, hueBins*satBins)
	b := img.Bounds()
	var n float64
	for y := b.Min.Y + b.Dy()/2; y < b.Max.Y; y += sampleStep {
		for x := b.Min.X; x < b.Max.X; x += sampleStep {
			r, g, bl, _ := img.At(x, y).RGBA()
			hue, sat := hueSat(float64(r)/0xffff, float64(g)/0xffff, float64(bl)/0xffff)
			hi := int(hue / 360 * hueBins)
			si := int(sat * satBins)
			if hi >= hueBins {
				hi = hueBins - 1
			}
			if si >= satBins {
				si = satBins - 1
			}
			hist[hi*satBins+si]++
			n++
		}
	}
	if n > 0 {
		for i := range hist {
			hist[i] /= n
		}
	}
	return hist
}

// hueSat converts RGB in [0,1] to hue in degrees and saturation in [0,1].
func hueSat(r, g, b float64) (float64, float64) {
	hi := math.Max(r, math.Max(g, b))
	lo := math.Min(r, math.Min(g, b))
	d := hi - lo
	if hi == 0 || d == 0 {
		return 0, 0
	}
	var h float64
	switch hi {
	case r:
		h = math.Mod((g-b)/d, 6)
	case g:
		h = (b-r)/d + 2
	default:
		h = (r-g)/d + 4
	}
	h *= 60
	if h < 0 {
		h += 360
	}
	return h, d / hi
}
