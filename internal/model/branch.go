package model

// Branch is a physical customer-service location.
type Branch struct {
	Name      string  `json:"name" yaml:"name"`
	Address   string  `json:"address,omitempty" yaml:"address,omitempty"`
	Phone     string  `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email     string  `json:"email,omitempty" yaml:"email,omitempty"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// BranchDistance pairs a branch with its great-circle distance from a point.
type BranchDistance struct {
	Branch     Branch  `json:"branch"`
	DistanceKM float64 `json:"distance_km"`
}

// SessionState is the per-user position in the chat flow.
type SessionState string

const (
	SessionIdle         SessionState = ""
	SessionAwaitingCity SessionState = "awaiting_city"
)

// IsValid reports whether s is a known state.
func (s SessionState) IsValid() bool {
	switch s {
	case SessionIdle, SessionAwaitingCity:
		return true
	}
	return false
}
