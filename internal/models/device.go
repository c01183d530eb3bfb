package models

// DeviceClass categorizes the kind of client a device runs on
type DeviceClass string

const (
	DeviceClassWeb     DeviceClass = "web"
	DeviceClassMobile  DeviceClass = "mobile"
	DeviceClassDesktop DeviceClass = "desktop"
)

// IsValid checks if the DeviceClass is a valid enum value
func (c DeviceClass) IsValid() bool {
	switch c {
	case DeviceClassWeb, DeviceClassMobile, DeviceClassDesktop:
		return true
	default:
		return false
	}
}

func (c DeviceClass) String() string {
	return string(c)
}

// Device is one registered client instance of a user. A device lives exactly
// as long as the connection that registered it; it is never persisted beyond
// the shared-store TTL.
type Device struct {
	ID           string      `json:"id"`
	ConnectionID string      `json:"connection_id"`
	Name         string      `json:"name"`
	Class        DeviceClass `json:"class"`
	ConnectedAt  int64       `json:"connected_at"`
}
