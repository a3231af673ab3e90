package spabridge

import "time"

// Target temperature bounds accepted by the spa firmware (°C, integer step).
const (
	MinTargetTempC = 20.0
	MaxTargetTempC = 40.0
)

// Heating state values exposed to thermostat-style hosts.
const (
	HeatingStateOff  = "OFF"
	HeatingStateHeat = "HEAT"
)

// DeviceState is the local mirror of the spa. It is rebuilt from remote reads
// and never persisted across restarts.
type DeviceState struct {
	Power         bool      `json:"power"`
	CurrentTempC  float64   `json:"current_temp_c"` // device-reported, read-only
	TargetTempC   float64   `json:"target_temp_c"`  // 20–40 °C
	HeatingOn     bool      `json:"heating_on"`     // requires FilterOn when requested
	FilterOn      bool      `json:"filter_on"`
	WavesOn       bool      `json:"waves_on"`
	LastFetchedAt time.Time `json:"last_fetched_at,omitzero"` // zero until the first successful read
}

// Device is the registry entry for the paired spa, cached so the bridge keeps
// a stable identity for the accessory between restarts.
type Device struct {
	DeviceID   string    `json:"device_id"`
	Name       string    `json:"name"`
	Model      string    `json:"model,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // don’t expose hash
}
