// Package testtone writes small WAV fixtures for tests: sine tones with an
// exact sample count, so durations and mixed totals can be asserted to the
// sample.
package testtone

import (
	"fmt"
	"math"
	"os"

	wav "github.com/youpy/go-wav"
)

const (
	bitsPerSample = 16
	amplitude     = 0.5
	toneHz        = 440.0
)

// WriteWAV writes a 16-bit PCM WAV tone of exactly
// round(seconds*sampleRate) sample frames.
func WriteWAV(path string, seconds float64, sampleRate, channels int) error {
	numSamples := uint32(math.Round(seconds * float64(sampleRate)))

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}
	defer file.Close()

	writer := wav.NewWriter(file, numSamples, uint16(channels), uint32(sampleRate), bitsPerSample)

	samples := make([]wav.Sample, numSamples)
	for i := range samples {
		value := int(amplitude * 32767.0 * math.Sin(2.0*math.Pi*toneHz*float64(i)/float64(sampleRate)))
		samples[i].Values[0] = value
		if channels > 1 {
			samples[i].Values[1] = value
		}
	}

	if err := writer.WriteSamples(samples); err != nil {
		return fmt.Errorf("failed to write WAV samples: %w", err)
	}
	return nil
}
