package types

import (
	"errors"
	"fmt"
)

var ErrEmptySequence = errors.New("observation sequence has no frames")

// ObservationSequence holds the frames of one instance to classify. Frames may be
// several packed sub-sequences, in which case Lengths gives the frame count of each.
type ObservationSequence struct {
	Frames  [][]float64 `json:"frames"`
	Lengths []int       `json:"lengths,omitempty"`
}

func NewObservationSequence(frames [][]float64, lengths ...int) ObservationSequence {
	return ObservationSequence{
		Frames:  frames,
		Lengths: lengths,
	}
}

func (seq ObservationSequence) Len() int {
	return len(seq.Frames)
}

func (seq ObservationSequence) Dim() int {
	if len(seq.Frames) == 0 {
		return 0
	}
	return len(seq.Frames[0])
}

// Segments returns the frame count of every packed sub-sequence.
func (seq ObservationSequence) Segments() []int {
	if len(seq.Lengths) == 0 {
		return []int{len(seq.Frames)}
	}
	return seq.Lengths
}

// Validate checks the structural shape of the sequence: at least one frame,
// the same dimension in every frame, and lengths that cover all frames exactly.
func (seq ObservationSequence) Validate() error {
	if len(seq.Frames) == 0 {
		return ErrEmptySequence
	}
	dim := seq.Dim()
	if dim == 0 {
		return errors.New("observation frames have zero dimension")
	}
	for i, frame := range seq.Frames {
		if len(frame) != dim {
			return fmt.Errorf("frame %d has dimension %d, expected %d", i, len(frame), dim)
		}
	}
	total := 0
	for i, l := range seq.Segments() {
		if l <= 0 {
			return fmt.Errorf("segment %d has non-positive length %d", i, l)
		}
		if l > len(seq.Frames)-total {
			return fmt.Errorf("segment %d of length %d exceeds the %d remaining frames", i, l, len(seq.Frames)-total)
		}
		total += l
	}
	if total != len(seq.Frames) {
		return fmt.Errorf("segment lengths sum to %d, sequence has %d frames", total, len(seq.Frames))
	}
	return nil
}

type TestSetPayload struct {
	Instances []ObservationSequence `json:"instances"`
}
