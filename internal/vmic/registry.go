package vmic

import "github.com/petems/vmic/internal/media"

const (
	VirtualDeviceID      = "sokuji-virtual-microphone"
	VirtualDeviceLabel   = "Sokuji Virtual Microphone"
	VirtualDeviceGroupID = "sokuji-virtual-device"
)

// VirtualDevice returns the descriptor advertised for the synthetic
// microphone.
func VirtualDevice() media.DeviceInfo {
	return media.DeviceInfo{
		DeviceID: VirtualDeviceID,
		Kind:     media.KindAudioInput,
		Label:    VirtualDeviceLabel,
		GroupID:  VirtualDeviceGroupID,
	}
}

// WithVirtualDevice returns a copy of devices with the virtual microphone
// appended, unless an audio input with the same id is already listed.
func WithVirtualDevice(devices []media.DeviceInfo) []media.DeviceInfo {
	out := make([]media.DeviceInfo, len(devices), len(devices)+1)
	copy(out, devices)
	for _, d := range devices {
		if d.DeviceID == VirtualDeviceID && d.Kind == media.KindAudioInput {
			return out
		}
	}
	return append(out, VirtualDevice())
}
