package graph

import (
	"fmt"
	"time"
)

// AudioBuffer is planar float32 sample storage with a fixed layout.
type AudioBuffer struct {
	sampleRate int
	channels   [][]float32
}

// NewAudioBuffer allocates a zeroed buffer of the given shape.
func NewAudioBuffer(numberOfChannels, length, sampleRate int) (*AudioBuffer, error) {
	if numberOfChannels < 1 || numberOfChannels > MaxChannels {
		return nil, fmt.Errorf("%w: %d channels", ErrNotSupported, numberOfChannels)
	}
	if length < 1 {
		return nil, fmt.Errorf("%w: buffer length %d", ErrNotSupported, length)
	}
	if err := checkSampleRate(sampleRate); err != nil {
		return nil, err
	}

	channels := make([][]float32, numberOfChannels)
	for i := range channels {
		channels[i] = make([]float32, length)
	}
	return &AudioBuffer{sampleRate: sampleRate, channels: channels}, nil
}

func (b *AudioBuffer) NumberOfChannels() int { return len(b.channels) }
func (b *AudioBuffer) Length() int           { return len(b.channels[0]) }
func (b *AudioBuffer) SampleRate() int       { return b.sampleRate }

func (b *AudioBuffer) Duration() time.Duration {
	return time.Duration(b.Length()) * time.Second / time.Duration(b.sampleRate)
}

// ChannelData returns the backing slice of channel ch.
func (b *AudioBuffer) ChannelData(ch int) []float32 {
	return b.channels[ch]
}

// CopyToChannel copies src into channel ch. src must fit the buffer exactly;
// nothing is padded or truncated.
func (b *AudioBuffer) CopyToChannel(src []float32, ch int) error {
	if ch < 0 || ch >= len(b.channels) {
		return fmt.Errorf("%w: channel %d of %d", ErrIndexSize, ch, len(b.channels))
	}
	if len(src) != b.Length() {
		return fmt.Errorf("%w: %d samples for a %d-frame buffer", ErrIndexSize, len(src), b.Length())
	}
	copy(b.channels[ch], src)
	return nil
}
