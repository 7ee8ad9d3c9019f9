// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Used to convert between different sample rates using linear interpolation
package resample

// Resampler performs linear interpolation to convert between sample rates.
// The last input frame of each chunk is carried into the next call so chunk
// boundaries interpolate like the middle of the stream.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64
	lastSample []int32 // one sample per channel
	primed     bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		position:   0.0,
		lastSample: make([]int32, channels),
	}
}

// Resample converts input samples to output sample rate using linear interpolation
// input: interleaved samples at inputRate
// output: interleaved samples at outputRate, sized with OutputCapacity
func (r *Resampler) Resample(input []int32, output []int32) int {
	if len(input) == 0 {
		return 0
	}

	frames := input
	if r.primed {
		frames = make([]int32, 0, len(r.lastSample)+len(input))
		frames = append(frames, r.lastSample...)
		frames = append(frames, input...)
	}

	inputFrames := len(frames) / r.channels
	outputFrames := len(output) / r.channels

	outIdx := 0

	for outIdx < outputFrames {
		// Calculate which input frame we need
		inputPos := r.position
		inputIdx := int(inputPos)

		// The last frame is only a right-hand neighbour until more input arrives
		if inputIdx >= inputFrames-1 {
			break
		}

		// Linear interpolation factor
		frac := inputPos - float64(inputIdx)

		// Interpolate each channel
		for ch := 0; ch < r.channels; ch++ {
			sample1 := frames[inputIdx*r.channels+ch]
			sample2 := frames[(inputIdx+1)*r.channels+ch]

			interpolated := float64(sample1)*(1.0-frac) + float64(sample2)*frac
			output[outIdx*r.channels+ch] = int32(interpolated)
		}

		outIdx++
		r.position += r.ratio
	}

	// Rebase position onto the carried frame
	r.position -= float64(inputFrames - 1)
	if r.position < 0 {
		r.position = 0
	}
	copy(r.lastSample, frames[(inputFrames-1)*r.channels:])
	r.primed = true

	return outIdx * r.channels
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0.0
	r.primed = false
	for i := range r.lastSample {
		r.lastSample[i] = 0
	}
}

// OutputCapacity returns an output buffer size large enough for one
// Resample call over inputSamples
func (r *Resampler) OutputCapacity(inputSamples int) int {
	inputFrames := inputSamples/r.channels + 1
	return (int(float64(inputFrames)/r.ratio) + 2) * r.channels
}

// OutputSamplesNeeded calculates how many output samples will be produced from input samples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples / r.channels
	outputFrames := int(float64(inputFrames) / r.ratio)
	return outputFrames * r.channels
}
