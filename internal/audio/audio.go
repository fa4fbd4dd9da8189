// Package audio is the real capture platform, backed by PortAudio.
package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/petems/vmic/internal/media"
)

// deviceInfos converts PortAudio devices into media descriptors. Devices with
// input channels are listed as audio inputs, devices with output channels as
// audio outputs; a duplex device appears once for each.
func deviceInfos(devices []*portaudio.DeviceInfo) []media.DeviceInfo {
	result := make([]media.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		group := ""
		if d.HostApi != nil {
			group = d.HostApi.Name
		}
		if d.MaxInputChannels > 0 {
			result = append(result, media.DeviceInfo{
				DeviceID: d.Name,
				Kind:     media.KindAudioInput,
				Label:    d.Name,
				GroupID:  group,
			})
		}
		if d.MaxOutputChannels > 0 {
			result = append(result, media.DeviceInfo{
				DeviceID: d.Name,
				Kind:     media.KindAudioOutput,
				Label:    d.Name,
				GroupID:  group,
			})
		}
	}
	return result
}

// selectInput picks the capture device for an audio request. Exact device
// ids must match; ideal ids are preferred, then the configured device, then
// the platform default.
func selectInput(devices []*portaudio.DeviceInfo, def *portaudio.DeviceInfo, req media.TrackRequest, configured string) (*portaudio.DeviceInfo, error) {
	byName := func(name string) *portaudio.DeviceInfo {
		for _, d := range devices {
			if d.Name == name && d.MaxInputChannels > 0 {
				return d
			}
		}
		return nil
	}

	if id := req.DeviceID(); id != nil {
		for _, name := range id.Exact {
			if d := byName(name); d != nil {
				return d, nil
			}
		}
		if len(id.Exact) > 0 {
			return nil, fmt.Errorf("%w: deviceId %v", media.ErrOverconstrained, id.Exact)
		}
		for _, name := range id.Ideal {
			if d := byName(name); d != nil {
				return d, nil
			}
		}
	}

	if configured != "" {
		if d := byName(configured); d != nil {
			return d, nil
		}
	}
	if def == nil || def.MaxInputChannels == 0 {
		return nil, fmt.Errorf("%w: no default input device", media.ErrNotFound)
	}
	return def, nil
}

// streamFormat resolves channel count and sample rate for a capture stream.
func streamFormat(d *portaudio.DeviceInfo, req media.TrackRequest, configuredRate int) (channels int, rate float64) {
	channels = 1
	rate = d.DefaultSampleRate
	if configuredRate > 0 {
		rate = float64(configuredRate)
	}
	if req.Set == nil {
		return channels, rate
	}
	if n := req.Set.ChannelCount; n != nil && *n > 0 {
		channels = *n
		if channels > d.MaxInputChannels {
			channels = d.MaxInputChannels
		}
	}
	if r := req.Set.SampleRate; r != nil && *r > 0 {
		rate = float64(*r)
	}
	return channels, rate
}
