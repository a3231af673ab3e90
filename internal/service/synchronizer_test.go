package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"spabridge"
	"spabridge/internal/gateway"
	"spabridge/internal/logger"
)

type fakeGateway struct {
	attrs      gateway.Attributes
	fetchErr   error
	fetchCalls int

	commands   []gateway.Attributes
	commandErr error
}

func (f *fakeGateway) FetchStatus(ctx context.Context, deviceID string) (gateway.Attributes, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.attrs, nil
}

func (f *fakeGateway) SendCommand(ctx context.Context, deviceID string, attrs gateway.Attributes) error {
	if f.commandErr != nil {
		return f.commandErr
	}
	f.commands = append(f.commands, attrs)
	return nil
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestSpa builds a synchronizer with a controllable clock.
func newTestSpa(gw *fakeGateway) (*SpaService, *time.Time) {
	s := NewSpaService(gw, nil, "dev-1", time.Minute, logger.Get(logger.ErrorLevel))
	now := testEpoch
	s.now = func() time.Time { return now }
	return s, &now
}

func fullAttrs() gateway.Attributes {
	return gateway.Attributes{
		gateway.AttrPower:       true,
		gateway.AttrTempNow:     31.0,
		gateway.AttrTempSet:     38.0,
		gateway.AttrHeatPower:   true,
		gateway.AttrFilterPower: true,
		gateway.AttrWavePower:   false,
	}
}

func TestRefresh_MapsAttributesOneToOne(t *testing.T) {
	gw := &fakeGateway{attrs: fullAttrs()}
	s, _ := newTestSpa(gw)

	st := s.Refresh(context.Background(), true)

	want := spabridge.DeviceState{
		Power:         true,
		CurrentTempC:  31,
		TargetTempC:   38,
		HeatingOn:     true,
		FilterOn:      true,
		WavesOn:       false,
		LastFetchedAt: testEpoch,
	}
	if st != want {
		t.Fatalf("state = %+v, want %+v", st, want)
	}
}

func TestRefresh_CacheWindowSkipsRemoteRead(t *testing.T) {
	gw := &fakeGateway{attrs: fullAttrs()}
	s, now := newTestSpa(gw)

	first := s.Refresh(context.Background(), true)

	// 30s later, even if the cloud would report something else, the cached
	// mirror is returned and no remote call is issued.
	gw.attrs = gateway.Attributes{gateway.AttrPower: false}
	*now = now.Add(30 * time.Second)

	second := s.Refresh(context.Background(), false)
	if gw.fetchCalls != 1 {
		t.Fatalf("fetchCalls = %d, want 1", gw.fetchCalls)
	}
	if second != first {
		t.Fatalf("cached state changed: %+v vs %+v", second, first)
	}
}

func TestRefresh_CacheExpiryReadsAgain(t *testing.T) {
	gw := &fakeGateway{attrs: fullAttrs()}
	s, now := newTestSpa(gw)

	s.Refresh(context.Background(), true)
	*now = now.Add(61 * time.Second)
	s.Refresh(context.Background(), false)

	if gw.fetchCalls != 2 {
		t.Fatalf("fetchCalls = %d, want 2", gw.fetchCalls)
	}
}

func TestRefresh_ForceBypassesCacheWindow(t *testing.T) {
	gw := &fakeGateway{attrs: fullAttrs()}
	s, now := newTestSpa(gw)

	s.Refresh(context.Background(), true)
	*now = now.Add(time.Second)
	s.Refresh(context.Background(), true)

	if gw.fetchCalls != 2 {
		t.Fatalf("fetchCalls = %d, want 2", gw.fetchCalls)
	}
}

func TestRefresh_TransportFailureLeavesMirrorUntouched(t *testing.T) {
	gw := &fakeGateway{attrs: fullAttrs()}
	s, now := newTestSpa(gw)

	first := s.Refresh(context.Background(), true)

	gw.fetchErr = gateway.ErrRemoteUnavailable
	*now = now.Add(2 * time.Minute)

	second := s.Refresh(context.Background(), true)
	if second != first {
		t.Fatalf("failed read mutated mirror: %+v vs %+v", second, first)
	}
	if second.LastFetchedAt != testEpoch {
		t.Fatalf("LastFetchedAt advanced on failure: %v", second.LastFetchedAt)
	}
}

func TestRefresh_MissingPowerResetsToDefaults(t *testing.T) {
	gw := &fakeGateway{attrs: fullAttrs()}
	s, now := newTestSpa(gw)

	s.Refresh(context.Background(), true)

	// a well-formed report with no power attribute: disconnected, not an error
	gw.attrs = gateway.Attributes{"firmware": "1.2.0"}
	*now = now.Add(2 * time.Minute)

	st := s.Refresh(context.Background(), true)
	want := defaultState()
	want.LastFetchedAt = *now
	if st != want {
		t.Fatalf("state = %+v, want defaults %+v", st, want)
	}
}

func TestSetHeating_SingleCombinedWrite(t *testing.T) {
	gw := &fakeGateway{attrs: fullAttrs()}
	s, _ := newTestSpa(gw)

	if err := s.SetHeating(context.Background(), true); err != nil {
		t.Fatalf("SetHeating: %v", err)
	}

	if len(gw.commands) != 1 {
		t.Fatalf("commands = %d, want exactly one combined write", len(gw.commands))
	}
	cmd := gw.commands[0]
	heat, _ := cmd.Bool(gateway.AttrHeatPower)
	filter, _ := cmd.Bool(gateway.AttrFilterPower)
	if !heat || !filter {
		t.Fatalf("combined write = %v, want heat_power and filter_power true", cmd)
	}

	st := s.State()
	if !st.HeatingOn || !st.FilterOn {
		t.Fatalf("mirror after heating on: %+v", st)
	}
}

func TestSetHeating_OffAlsoDropsFiltration(t *testing.T) {
	gw := &fakeGateway{attrs: fullAttrs()}
	s, _ := newTestSpa(gw)
	s.Refresh(context.Background(), true)

	gw.attrs = gateway.Attributes{gateway.AttrPower: true}
	if err := s.SetHeating(context.Background(), false); err != nil {
		t.Fatalf("SetHeating(false): %v", err)
	}

	if len(gw.commands) != 1 {
		t.Fatalf("commands = %d, want 1", len(gw.commands))
	}
	heat, _ := gw.commands[0].Bool(gateway.AttrHeatPower)
	filter, _ := gw.commands[0].Bool(gateway.AttrFilterPower)
	if heat || filter {
		t.Fatalf("combined write = %v, want both false", gw.commands[0])
	}
}

func TestSetFilter_OffWhileHeating_OrderedWrites(t *testing.T) {
	gw := &fakeGateway{attrs: fullAttrs()}
	s, _ := newTestSpa(gw)
	s.Refresh(context.Background(), true) // heating on, filter on

	// reconciling read after the command reports both off
	gw.attrs = gateway.Attributes{
		gateway.AttrPower:       true,
		gateway.AttrHeatPower:   false,
		gateway.AttrFilterPower: false,
	}

	if err := s.SetFilter(context.Background(), false); err != nil {
		t.Fatalf("SetFilter(false): %v", err)
	}

	if len(gw.commands) != 2 {
		t.Fatalf("commands = %d, want heating-off then filter-off", len(gw.commands))
	}
	if heat, ok := gw.commands[0].Bool(gateway.AttrHeatPower); !ok || heat {
		t.Fatalf("first write = %v, want {heat_power:false}", gw.commands[0])
	}
	if _, ok := gw.commands[0].Bool(gateway.AttrFilterPower); ok {
		t.Fatalf("first write must not carry filter_power: %v", gw.commands[0])
	}
	if filter, ok := gw.commands[1].Bool(gateway.AttrFilterPower); !ok || filter {
		t.Fatalf("second write = %v, want {filter_power:false}", gw.commands[1])
	}

	st := s.State()
	if st.HeatingOn || st.FilterOn {
		t.Fatalf("mirror after filter off: %+v", st)
	}
}

func TestSetFilter_OnHasNoCoupling(t *testing.T) {
	gw := &fakeGateway{attrs: fullAttrs()}
	s, _ := newTestSpa(gw)

	if err := s.SetFilter(context.Background(), true); err != nil {
		t.Fatalf("SetFilter(true): %v", err)
	}

	if len(gw.commands) != 1 {
		t.Fatalf("commands = %d, want 1", len(gw.commands))
	}
	if _, ok := gw.commands[0].Bool(gateway.AttrHeatPower); ok {
		t.Fatalf("filter-on write must not touch heating: %v", gw.commands[0])
	}
}

func TestSetTargetTemperature_WriteThenReconcile(t *testing.T) {
	gw := &fakeGateway{attrs: gateway.Attributes{
		gateway.AttrPower:   true,
		gateway.AttrTempSet: 35.0,
	}}
	s, _ := newTestSpa(gw)

	if err := s.SetTargetTemperature(context.Background(), 35); err != nil {
		t.Fatalf("SetTargetTemperature: %v", err)
	}

	if len(gw.commands) != 1 {
		t.Fatalf("commands = %d, want 1", len(gw.commands))
	}
	if v, ok := gw.commands[0].Float(gateway.AttrTempSet); !ok || v != 35 {
		t.Fatalf("write = %v, want {temp_set:35}", gw.commands[0])
	}
	if got := s.State().TargetTempC; got != 35 {
		t.Fatalf("mirror target = %v, want 35", got)
	}
	if gw.fetchCalls != 1 {
		t.Fatalf("fetchCalls = %d, want forced reconcile read", gw.fetchCalls)
	}
}

func TestSetTargetTemperature_OutOfRangeRejectedBeforeRemoteCall(t *testing.T) {
	gw := &fakeGateway{}
	s, _ := newTestSpa(gw)

	for _, v := range []float64{19, 41} {
		if err := s.SetTargetTemperature(context.Background(), v); err == nil {
			t.Fatalf("SetTargetTemperature(%v): expected error", v)
		}
	}
	if len(gw.commands) != 0 || gw.fetchCalls != 0 {
		t.Fatalf("remote calls issued for invalid setpoint: cmds=%d fetches=%d", len(gw.commands), gw.fetchCalls)
	}
}

func TestSetPower_RejectedWriteRevertsMirror(t *testing.T) {
	gw := &fakeGateway{attrs: fullAttrs()}
	s, now := newTestSpa(gw)
	s.Refresh(context.Background(), true)
	prev := s.State()

	gw.commandErr = errors.New("503 from cloud")
	*now = now.Add(time.Second)

	err := s.SetPower(context.Background(), false)
	if !errors.Is(err, ErrCommandRejected) {
		t.Fatalf("err = %v, want ErrCommandRejected", err)
	}
	if got := s.State(); got != prev {
		t.Fatalf("mirror not reverted: %+v vs %+v", got, prev)
	}
	if gw.fetchCalls != 1 {
		t.Fatalf("fetchCalls = %d, reconcile read must be skipped on rejection", gw.fetchCalls)
	}
}

func TestSetFilter_RejectedHeatingOffRevertsBothFields(t *testing.T) {
	gw := &fakeGateway{attrs: fullAttrs()}
	s, _ := newTestSpa(gw)
	s.Refresh(context.Background(), true) // heating on, filter on
	prev := s.State()

	gw.commandErr = errors.New("write refused")

	err := s.SetFilter(context.Background(), false)
	if !errors.Is(err, ErrCommandRejected) {
		t.Fatalf("err = %v, want ErrCommandRejected", err)
	}
	if got := s.State(); got != prev {
		t.Fatalf("mirror not reverted: %+v vs %+v", got, prev)
	}
}

func TestSubscribe_PublishesOnSuccessfulRefresh(t *testing.T) {
	gw := &fakeGateway{attrs: fullAttrs()}
	s, _ := newTestSpa(gw)

	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	st := s.Refresh(context.Background(), true)

	select {
	case got := <-updates:
		if got != st {
			t.Fatalf("published %+v, want %+v", got, st)
		}
	default:
		t.Fatalf("no update published on successful refresh")
	}
}

func TestSubscribe_NoPublishOnFailedRead(t *testing.T) {
	gw := &fakeGateway{fetchErr: gateway.ErrRemoteUnavailable}
	s, _ := newTestSpa(gw)

	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	s.Refresh(context.Background(), true)

	select {
	case got := <-updates:
		t.Fatalf("unexpected update %+v after failed read", got)
	default:
	}
}

func TestHeatingState_Derivation(t *testing.T) {
	gw := &fakeGateway{attrs: fullAttrs()}
	s, _ := newTestSpa(gw)

	if got := s.HeatingState(); got != spabridge.HeatingStateOff {
		t.Fatalf("initial heating state = %q, want OFF", got)
	}

	s.Refresh(context.Background(), true)
	if got := s.HeatingState(); got != spabridge.HeatingStateHeat {
		t.Fatalf("heating state = %q, want HEAT", got)
	}
}
