package handlers

import (
	"context"

	"spabridge"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockSpa struct {
	refreshState spabridge.DeviceState
	refreshCalls int
	lastForce    bool

	powerErr   error
	tempErr    error
	wavesErr   error
	filterErr  error
	heatingErr error

	lastPower   bool
	lastWaves   bool
	lastFilter  bool
	lastHeating bool
	lastTempC   float64

	powerCalls   int
	tempCalls    int
	wavesCalls   int
	filterCalls  int
	heatingCalls int
}

func (m *mockSpa) Refresh(ctx context.Context, force bool) spabridge.DeviceState {
	m.refreshCalls++
	m.lastForce = force
	return m.refreshState
}
func (m *mockSpa) SetPower(ctx context.Context, on bool) error {
	m.powerCalls++
	m.lastPower = on
	return m.powerErr
}
func (m *mockSpa) SetTargetTemperature(ctx context.Context, tempC float64) error {
	m.tempCalls++
	m.lastTempC = tempC
	return m.tempErr
}
func (m *mockSpa) SetWaves(ctx context.Context, on bool) error {
	m.wavesCalls++
	m.lastWaves = on
	return m.wavesErr
}
func (m *mockSpa) SetFilter(ctx context.Context, on bool) error {
	m.filterCalls++
	m.lastFilter = on
	return m.filterErr
}
func (m *mockSpa) SetHeating(ctx context.Context, on bool) error {
	m.heatingCalls++
	m.lastHeating = on
	return m.heatingErr
}

type mockMonitoring struct {
	state        spabridge.DeviceState
	heatingState string
	updates      chan spabridge.DeviceState
}

func newMockMonitoring(state spabridge.DeviceState) *mockMonitoring {
	return &mockMonitoring{
		state:        state,
		heatingState: spabridge.HeatingStateOff,
		updates:      make(chan spabridge.DeviceState, 4),
	}
}

func (m *mockMonitoring) State() spabridge.DeviceState { return m.state }
func (m *mockMonitoring) HeatingState() string         { return m.heatingState }
func (m *mockMonitoring) Subscribe() (<-chan spabridge.DeviceState, func()) {
	return m.updates, func() {}
}
