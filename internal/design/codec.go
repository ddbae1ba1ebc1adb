package design

import "fmt"

// Dimension names the codec requires, in vector order.
const (
	DimBodyLength   = "body_length_m"
	DimFinSpan      = "fin_span_m"
	DimFinRootChord = "fin_root_chord_m"
	DimFinTipChord  = "fin_tip_chord_m"
	DimFinSweep     = "fin_sweep_m"
	DimNoseBallast  = "nose_ballast_kg"
	DimAvBayOffset  = "avbay_offset_m"
	DimFinAftOffset = "fin_aft_offset_m"
	DimNoseLength   = "nose_length_m"
)

var dimensionOrder = []string{
	DimBodyLength,
	DimFinSpan,
	DimFinRootChord,
	DimFinTipChord,
	DimFinSweep,
	DimNoseBallast,
	DimAvBayOffset,
	DimFinAftOffset,
	DimNoseLength,
}

// StructuralSpec is the decoded, simulator-facing description of the
// airframe. Positions use the simulator's absolute convention: distance from
// the nose tip datum.
type StructuralSpec struct {
	BodyLengthM     float64 `json:"body_length_m" yaml:"body_length_m"`
	NoseLengthM     float64 `json:"nose_length_m" yaml:"nose_length_m"`
	FinSpanM        float64 `json:"fin_span_m" yaml:"fin_span_m"`
	FinRootChordM   float64 `json:"fin_root_chord_m" yaml:"fin_root_chord_m"`
	FinTipChordM    float64 `json:"fin_tip_chord_m" yaml:"fin_tip_chord_m"`
	FinSweepM       float64 `json:"fin_sweep_m" yaml:"fin_sweep_m"`
	FinPositionM    float64 `json:"fin_position_m" yaml:"fin_position_m"`
	NoseBallastKG   float64 `json:"nose_ballast_kg" yaml:"nose_ballast_kg"`
	AvBayPositionM  float64 `json:"avbay_position_m" yaml:"avbay_position_m"`
	ReferenceDiamM  float64 `json:"reference_diameter_m" yaml:"reference_diameter_m"`
	DryMassKG       float64 `json:"dry_mass_kg" yaml:"dry_mass_kg"`
	MotorDesignator string  `json:"motor,omitempty" yaml:"motor,omitempty"`
}

// Codec converts between design vectors and structural specifications.
//
// The optimizer holds fin placement as an offset from the aft end of the body
// tube while the simulator wants an absolute position from the nose datum.
// Decode recomputes the translation from the current body length on every
// call, so the fin stays attached to the tube for any combination of free
// parameters.
type Codec struct {
	bounds Bounds
	base   StructuralSpec // template-derived fields not controlled by the vector
}

// NewCodec builds a codec for the given bounds. The bounds must carry exactly
// the dimensions the codec maps, in canonical order; anything else is a
// configuration error.
func NewCodec(bounds Bounds, base StructuralSpec) (*Codec, error) {
	if err := bounds.Validate(); err != nil {
		return nil, err
	}
	if len(bounds) != len(dimensionOrder) {
		return nil, fmt.Errorf("codec requires %d dimensions, got %d", len(dimensionOrder), len(bounds))
	}
	for i, name := range dimensionOrder {
		if bounds[i].Name != name {
			return nil, fmt.Errorf("dimension %d must be %s, got %s", i, name, bounds[i].Name)
		}
	}
	if base.ReferenceDiamM <= 0 {
		return nil, fmt.Errorf("base spec needs a positive reference diameter, got %f", base.ReferenceDiamM)
	}
	return &Codec{bounds: bounds, base: base}, nil
}

// Bounds returns the codec's search-space bounds.
func (c *Codec) Bounds() Bounds {
	return c.bounds
}

// Decode maps a bounds-satisfying vector to the structural spec handed to the
// simulator. It is a pure total function: no error path exists for in-bounds
// input.
//
// Fin placement translation, recomputed every call:
//
//	finPosition = noseLength + bodyLength - rootChord - aftOffset
//
// measured from the nose datum to the fin root leading edge. The aft offset is
// the free parameter, so shrinking the body tube slides the fin forward with
// it instead of detaching it.
func (c *Codec) Decode(v Vector) StructuralSpec {
	spec := c.base

	spec.BodyLengthM = v[0]
	spec.FinSpanM = v[1]
	spec.FinRootChordM = v[2]
	spec.FinTipChordM = v[3]
	spec.FinSweepM = v[4]
	spec.NoseBallastKG = v[5]
	spec.NoseLengthM = v[8]

	spec.FinPositionM = spec.NoseLengthM + spec.BodyLengthM - spec.FinRootChordM - v[7]
	spec.AvBayPositionM = spec.NoseLengthM + v[6]

	return spec
}

// Encode maps a structural spec back onto a design vector, inverting the
// coordinate translation.
func (c *Codec) Encode(spec StructuralSpec) Vector {
	v := make(Vector, len(dimensionOrder))
	v[0] = spec.BodyLengthM
	v[1] = spec.FinSpanM
	v[2] = spec.FinRootChordM
	v[3] = spec.FinTipChordM
	v[4] = spec.FinSweepM
	v[5] = spec.NoseBallastKG
	v[6] = spec.AvBayPositionM - spec.NoseLengthM
	v[7] = spec.NoseLengthM + spec.BodyLengthM - spec.FinRootChordM - spec.FinPositionM
	v[8] = spec.NoseLengthM
	return v
}
