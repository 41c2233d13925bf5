package entities

// DeviceClass distinguishes capture sources from playback sinks.
type DeviceClass string

const (
	DeviceClassInput  DeviceClass = "input"
	DeviceClassOutput DeviceClass = "output"
)

// Device is a snapshot of one capturable audio endpoint. Devices are
// re-enumerated on demand and never persisted.
type Device struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Class       DeviceClass `json:"class"`
	IsMonitor   bool        `json:"is_monitor"`
}

// CaptureTarget returns the stream target to record from. Output sinks
// are captured through their monitor source, which is how system audio
// is offered without a physical input device.
func (d Device) CaptureTarget() string {
	if d.Class == DeviceClassOutput {
		return d.Name + ".monitor"
	}
	return d.Name
}
