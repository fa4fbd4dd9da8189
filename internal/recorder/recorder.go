// Package recorder writes a live audio track to a WAV file for inspection.
package recorder

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rs/zerolog"

	"github.com/petems/vmic/internal/media"
)

const bitDepth = 16

// Record subscribes to track and writes 16-bit PCM to path until ctx is
// cancelled or the track ends. The format is taken from the first chunk.
func Record(ctx context.Context, track media.AudioTrack, path string, log zerolog.Logger) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	sub := track.Subscribe(64)
	defer sub.Close()

	n, err := write(ctx, f, sub.C)
	if err != nil {
		return err
	}
	log.Info().Str("path", path).Int("frames", n).Msg("Recording saved")
	return nil
}

// write encodes chunks from c into w and returns the number of frames
// written. The WAV header is finalized on return.
func write(ctx context.Context, w io.WriteSeeker, c <-chan media.AudioChunk) (int, error) {
	var enc *wav.Encoder
	var frames int

	finish := func() error {
		if enc == nil {
			return nil
		}
		return enc.Close()
	}

	for {
		select {
		case <-ctx.Done():
			return frames, finish()
		case chunk, ok := <-c:
			if !ok {
				return frames, finish()
			}
			if chunk.Frames() == 0 {
				continue
			}
			if enc == nil {
				enc = wav.NewEncoder(w, chunk.SampleRate, bitDepth, len(chunk.Data), 1)
			}
			if err := enc.Write(interleave(chunk)); err != nil {
				return frames, fmt.Errorf("write wav: %w", err)
			}
			frames += chunk.Frames()
		}
	}
}

// interleave converts a planar float chunk to interleaved 16-bit samples,
// clipping to [-1, 1].
func interleave(chunk media.AudioChunk) *audio.IntBuffer {
	channels := len(chunk.Data)
	n := chunk.Frames()
	data := make([]int, n*channels)
	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			v := float64(chunk.Data[ch][i])
			v = math.Max(-1, math.Min(1, v))
			data[i*channels+ch] = int(math.Round(v * math.MaxInt16))
		}
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: chunk.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
}
