//go:build !linux

package transport

// setLowLatency is a no-op off Linux; macOS and Windows drivers do not
// expose the equivalent knob.
func setLowLatency(device string) {}
