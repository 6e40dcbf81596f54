package autocrop

import (
	"math"

	"github.com/teslashibe/go-posterface/pkg/detection"
	"github.com/teslashibe/go-posterface/pkg/gateway"
)

// Kind says which tier produced the faces used for cropping.
type Kind int

const (
	// None means detection worked but found nothing; the center crop is used.
	None Kind = iota
	// Real means the gateway reported at least one face.
	Real
	// Heuristic means the gateway was unreachable and a face position was estimated.
	Heuristic
)

func (k Kind) String() string {
	switch k {
	case Real:
		return "real"
	case Heuristic:
		return "heuristic"
	default:
		return "none"
	}
}

// Detection is the classified result of one gateway call.
// Faces is non-empty for Real and Heuristic and empty for None.
type Detection struct {
	Kind  Kind
	Faces []detection.Face
}

// Heuristic face placement for portrait photos.
const (
	estimateWidthRatio = 0.4  // face width as a fraction of the shorter side
	estimateAspect     = 1.2  // face height / face width
	estimateCenterY    = 0.35 // vertical face center as a fraction of image height
	estimateConfidence = 0.6
)

// Estimate guesses where a face sits in a w x h portrait: horizontally
// centred, a little above the middle.
func Estimate(w, h float64) detection.Face {
	faceW := math.Min(w, h) * estimateWidthRatio
	faceH := faceW * estimateAspect
	return detection.Face{
		Box: detection.BoundingBox{
			X:      w/2 - faceW/2,
			Y:      h*estimateCenterY - faceH/2,
			Width:  faceW,
			Height: faceH,
		},
		Confidence: estimateConfidence,
	}
}

// Classify turns a gateway answer into a Detection for a w x h image.
//
// A transport or parse failure (err != nil, or no response) yields
// Heuristic with the Estimate face. A successful response with faces yields
// Real. Anything else, zero faces included, yields None.
func Classify(resp *gateway.CropResponse, err error, w, h float64) Detection {
	if err != nil || resp == nil {
		return Detection{Kind: Heuristic, Faces: []detection.Face{Estimate(w, h)}}
	}
	if resp.Success && len(resp.Faces) > 0 {
		return Detection{Kind: Real, Faces: resp.Faces}
	}
	return Detection{Kind: None, Faces: []detection.Face{}}
}
