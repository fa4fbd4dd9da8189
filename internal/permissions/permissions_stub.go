//go:build !darwin

package permissions

// Microphone always reports Authorized on non-macOS platforms; access is
// governed by device permissions instead.
func Microphone() Status {
	return Authorized
}

// RequestMicrophone is a no-op on non-macOS platforms.
func RequestMicrophone() {}
