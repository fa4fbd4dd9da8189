package audio

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gordonklaus/portaudio"

	"github.com/petems/vmic/internal/media"
)

func testDevices() (mic, usb, speakers *portaudio.DeviceInfo, all []*portaudio.DeviceInfo) {
	api := &portaudio.HostApiInfo{Name: "Core Audio"}
	mic = &portaudio.DeviceInfo{Name: "Built-in Microphone", HostApi: api, MaxInputChannels: 1, DefaultSampleRate: 44100}
	usb = &portaudio.DeviceInfo{Name: "USB Headset", HostApi: api, MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 48000}
	speakers = &portaudio.DeviceInfo{Name: "Speakers", HostApi: api, MaxOutputChannels: 2, DefaultSampleRate: 48000}
	return mic, usb, speakers, []*portaudio.DeviceInfo{mic, usb, speakers}
}

func TestDeviceInfos(t *testing.T) {
	_, _, _, all := testDevices()
	all = append(all, &portaudio.DeviceInfo{Name: "Orphan", MaxInputChannels: 1})

	want := []media.DeviceInfo{
		{DeviceID: "Built-in Microphone", Kind: media.KindAudioInput, Label: "Built-in Microphone", GroupID: "Core Audio"},
		{DeviceID: "USB Headset", Kind: media.KindAudioInput, Label: "USB Headset", GroupID: "Core Audio"},
		{DeviceID: "USB Headset", Kind: media.KindAudioOutput, Label: "USB Headset", GroupID: "Core Audio"},
		{DeviceID: "Speakers", Kind: media.KindAudioOutput, Label: "Speakers", GroupID: "Core Audio"},
		{DeviceID: "Orphan", Kind: media.KindAudioInput, Label: "Orphan"},
	}
	if diff := cmp.Diff(want, deviceInfos(all)); diff != "" {
		t.Errorf("devices mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectInput(t *testing.T) {
	mic, usb, _, all := testDevices()

	tests := []struct {
		name       string
		def        *portaudio.DeviceInfo
		req        media.TrackRequest
		configured string
		want       *portaudio.DeviceInfo
		wantErr    error
	}{
		{name: "bare request uses default", def: mic, req: media.TrackRequest{Flag: true}, want: mic},
		{name: "configured device", def: mic, req: media.TrackRequest{Flag: true}, configured: "USB Headset", want: usb},
		{name: "unknown configured falls back", def: mic, req: media.TrackRequest{Flag: true}, configured: "Gone", want: mic},
		{
			name: "exact match",
			def:  mic,
			req:  media.TrackRequest{Set: &media.ConstraintSet{DeviceID: media.Exact("USB Headset")}},
			want: usb,
		},
		{
			name:    "exact miss",
			def:     mic,
			req:     media.TrackRequest{Set: &media.ConstraintSet{DeviceID: media.Exact("Gone")}},
			wantErr: media.ErrOverconstrained,
		},
		{
			name:    "exact output only device",
			def:     mic,
			req:     media.TrackRequest{Set: &media.ConstraintSet{DeviceID: media.Exact("Speakers")}},
			wantErr: media.ErrOverconstrained,
		},
		{
			name:       "ideal beats configured",
			def:        mic,
			req:        media.TrackRequest{Set: &media.ConstraintSet{DeviceID: media.Ideal("Gone", "USB Headset")}},
			configured: "Built-in Microphone",
			want:       usb,
		},
		{
			name: "ideal miss falls back",
			def:  mic,
			req:  media.TrackRequest{Set: &media.ConstraintSet{DeviceID: media.Ideal("Gone")}},
			want: mic,
		},
		{name: "no default", req: media.TrackRequest{Flag: true}, wantErr: media.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectInput(all, tt.def, tt.req, tt.configured)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("selectInput: %v", err)
			}
			if got != tt.want {
				t.Errorf("selected %q, want %q", got.Name, tt.want.Name)
			}
		})
	}
}

func TestStreamFormat(t *testing.T) {
	_, usb, _, _ := testDevices()
	two, eight, rate := 2, 8, 16000

	tests := []struct {
		name           string
		req            media.TrackRequest
		configuredRate int
		wantChannels   int
		wantRate       float64
	}{
		{"device default", media.TrackRequest{Flag: true}, 0, 1, 48000},
		{"configured rate", media.TrackRequest{Flag: true}, 44100, 1, 44100},
		{"requested stereo", media.TrackRequest{Set: &media.ConstraintSet{ChannelCount: &two}}, 0, 2, 48000},
		{"channels capped by device", media.TrackRequest{Set: &media.ConstraintSet{ChannelCount: &eight}}, 0, 2, 48000},
		{"requested rate wins", media.TrackRequest{Set: &media.ConstraintSet{SampleRate: &rate}}, 44100, 1, 16000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			channels, r := streamFormat(usb, tt.req, tt.configuredRate)
			if channels != tt.wantChannels || r != tt.wantRate {
				t.Errorf("streamFormat() = %d, %v; want %d, %v", channels, r, tt.wantChannels, tt.wantRate)
			}
		})
	}
}
