package models

// DataType defines the semantic family of a synchronized record.
// The value determines how the opaque payload must be interpreted by the
// integrating application; the data core itself never decodes payloads
// except when a field-level merge is requested.
type DataType int

const (
	// Preferences represents user- and dog-profile settings such as
	// volume, scene rotation, and playback preferences.
	Preferences DataType = 1

	// Session represents a viewing session: which scene was played,
	// for how long, and on which device.
	Session DataType = 2

	// ContentState represents per-content bookkeeping such as resume
	// positions and last-watched markers.
	ContentState DataType = 3

	// HealthMetrics represents locally collected wellbeing metrics
	// (activity, rest, engagement) attached to a dog profile.
	HealthMetrics DataType = 4
)

// String returns the lowercase wire name of the data type.
func (t DataType) String() string {
	switch t {
	case Preferences:
		return "preferences"
	case Session:
		return "session"
	case ContentState:
		return "contentState"
	case HealthMetrics:
		return "healthMetrics"
	default:
		return "unknown"
	}
}

// Known reports whether t is one of the declared data types.
func (t DataType) Known() bool {
	switch t {
	case Preferences, Session, ContentState, HealthMetrics:
		return true
	}
	return false
}
