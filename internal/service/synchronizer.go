package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"spabridge"
	"spabridge/internal/gateway"
	"spabridge/internal/logger"
	"spabridge/internal/repository"

	"github.com/google/uuid"
)

// DefaultCacheTTL bounds poll-call volume: at most one remote read per window
// unless a refresh is forced.
const DefaultCacheTTL = 60 * time.Second

// Domain errors for spa control flows.
var (
	// ErrCommandRejected reports that the cloud refused a write. The
	// optimistic local value has already been reverted when this is returned.
	ErrCommandRejected = errors.New("command rejected")

	errHeatingRequiresFilter = errors.New("heating requires filtration to be on")
	errTargetTempOutOfRange  = fmt.Errorf("target temperature must be between %.0f and %.0f °C",
		spabridge.MinTargetTempC, spabridge.MaxTargetTempC)
)

// SpaService owns the authoritative local mirror of the spa. It enforces the
// fetch cache policy and translates each command into one or more ordered
// gateway calls, re-fetching afterward to confirm.
type SpaService struct {
	gw       DeviceGateway
	devices  repository.DeviceRepo // optional; last_seen bookkeeping
	deviceID string
	cacheTTL time.Duration
	log      *logger.Logger
	now      func() time.Time

	// mu serializes whole logical operations, remote calls included, so a
	// timer-driven refresh and a user command can never interleave.
	mu    sync.Mutex
	state spabridge.DeviceState

	subMu   sync.Mutex
	subs    map[int]chan spabridge.DeviceState
	nextSub int
}

func NewSpaService(gw DeviceGateway, devices repository.DeviceRepo, deviceID string, cacheTTL time.Duration, log *logger.Logger) *SpaService {
	if cacheTTL <= 0 {
		cacheTTL = DefaultCacheTTL
	}
	if log == nil {
		log = logger.Get(logger.InfoLevel)
	}
	return &SpaService{
		gw:       gw,
		devices:  devices,
		deviceID: deviceID,
		cacheTTL: cacheTTL,
		log:      log,
		now:      time.Now,
		state:    defaultState(),
		subs:     make(map[int]chan spabridge.DeviceState),
	}
}

// defaultState is the conservative mirror used before the first successful
// read and after a disconnected report: everything off, ambient 25 °C,
// setpoint 30 °C.
func defaultState() spabridge.DeviceState {
	return spabridge.DeviceState{
		Power:        false,
		CurrentTempC: 25,
		TargetTempC:  30,
		HeatingOn:    false,
		FilterOn:     false,
		WavesOn:      false,
	}
}

// validateTarget rejects any requested mirror that violates the firmware's
// coupling rule before a single remote call is issued. Reads are never
// auto-corrected; only writes pass through here.
func validateTarget(st spabridge.DeviceState) error {
	if st.HeatingOn && !st.FilterOn {
		return errHeatingRequiresFilter
	}
	return nil
}

// Refresh returns the mirror, reading from the cloud unless the cache window
// still covers it. Transport and parse failures are absorbed: logged, cached
// state returned unchanged.
func (s *SpaService) Refresh(ctx context.Context, force bool) spabridge.DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx, force)
}

func (s *SpaService) refreshLocked(ctx context.Context, force bool) spabridge.DeviceState {
	now := s.now()
	if !force && !s.state.LastFetchedAt.IsZero() && now.Sub(s.state.LastFetchedAt) < s.cacheTTL {
		return s.state
	}

	attrs, err := s.gw.FetchStatus(ctx, s.deviceID)
	if err != nil {
		s.log.Warnw("spa_fetch_failed", "device_id", s.deviceID, "err", err)
		return s.state
	}

	if _, ok := attrs[gateway.AttrPower]; !ok {
		// A well-formed report without the power attribute means the spa has
		// dropped off the vendor cloud. Known-off, not an error.
		s.log.Infow("spa_disconnected", "device_id", s.deviceID)
		s.state = defaultState()
		s.state.LastFetchedAt = now
		s.publish(s.state)
		return s.state
	}

	s.state = stateFromAttributes(attrs, s.state)
	s.state.LastFetchedAt = now
	s.touchDevice(ctx, now)
	s.publish(s.state)
	return s.state
}

// stateFromAttributes overwrites every mirrored field reported by the cloud.
func stateFromAttributes(attrs gateway.Attributes, prev spabridge.DeviceState) spabridge.DeviceState {
	next := prev
	if v, ok := attrs.Bool(gateway.AttrPower); ok {
		next.Power = v
	}
	if v, ok := attrs.Float(gateway.AttrTempNow); ok {
		next.CurrentTempC = v
	}
	if v, ok := attrs.Float(gateway.AttrTempSet); ok {
		next.TargetTempC = v
	}
	if v, ok := attrs.Bool(gateway.AttrHeatPower); ok {
		next.HeatingOn = v
	}
	if v, ok := attrs.Bool(gateway.AttrFilterPower); ok {
		next.FilterOn = v
	}
	if v, ok := attrs.Bool(gateway.AttrWavePower); ok {
		next.WavesOn = v
	}
	return next
}

// SetPower toggles master power.
func (s *SpaService) SetPower(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state.Power = on
	if err := s.send(ctx, gateway.Attributes{gateway.AttrPower: on}); err != nil {
		s.state = prev
		return fmt.Errorf("set power: %w", ErrCommandRejected)
	}
	s.refreshLocked(ctx, true)
	return nil
}

// SetTargetTemperature sets the heating setpoint. Values outside [20,40] are
// rejected before any remote call.
func (s *SpaService) SetTargetTemperature(ctx context.Context, tempC float64) error {
	if tempC < spabridge.MinTargetTempC || tempC > spabridge.MaxTargetTempC {
		return errTargetTempOutOfRange
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state.TargetTempC = tempC
	if err := s.send(ctx, gateway.Attributes{gateway.AttrTempSet: tempC}); err != nil {
		s.state = prev
		return fmt.Errorf("set target temperature: %w", ErrCommandRejected)
	}
	s.refreshLocked(ctx, true)
	return nil
}

// SetWaves toggles the massage jets.
func (s *SpaService) SetWaves(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	s.state.WavesOn = on
	if err := s.send(ctx, gateway.Attributes{gateway.AttrWavePower: on}); err != nil {
		s.state = prev
		return fmt.Errorf("set waves: %w", ErrCommandRejected)
	}
	s.refreshLocked(ctx, true)
	return nil
}

// SetFilter toggles filtration. Turning it off while heating is on first
// disables heating with a separate, strictly ordered write; the firmware must
// never be asked to heat without filtration. Turning it on has no coupling.
func (s *SpaService) SetFilter(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	next := prev
	next.FilterOn = on
	dropHeating := !on && prev.HeatingOn
	if dropHeating {
		next.HeatingOn = false
	}
	if err := validateTarget(next); err != nil {
		return err
	}

	s.state = next
	if dropHeating {
		// Policy override, not a user error.
		s.log.Infow("spa_heating_disabled_with_filter", "device_id", s.deviceID)
		if err := s.send(ctx, gateway.Attributes{gateway.AttrHeatPower: false}); err != nil {
			s.state = prev
			return fmt.Errorf("disable heating before filtration: %w", ErrCommandRejected)
		}
	}
	if err := s.send(ctx, gateway.Attributes{gateway.AttrFilterPower: on}); err != nil {
		s.state = prev
		return fmt.Errorf("set filter: %w", ErrCommandRejected)
	}
	s.refreshLocked(ctx, true)
	return nil
}

// SetHeating toggles the heater. Filtration travels in the same combined
// write, so the cloud applies the pair atomically in arrival order.
func (s *SpaService) SetHeating(ctx context.Context, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	next := prev
	next.HeatingOn = on
	next.FilterOn = on
	if err := validateTarget(next); err != nil {
		return err
	}

	s.state = next
	attrs := gateway.Attributes{
		gateway.AttrFilterPower: on,
		gateway.AttrHeatPower:   on,
	}
	if err := s.send(ctx, attrs); err != nil {
		s.state = prev
		return fmt.Errorf("set heating: %w", ErrCommandRejected)
	}
	s.refreshLocked(ctx, true)
	return nil
}

// State returns a snapshot of the mirror.
func (s *SpaService) State() spabridge.DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HeatingState derives the two-value reading used by thermostat hosts.
func (s *SpaService) HeatingState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.HeatingOn {
		return spabridge.HeatingStateHeat
	}
	return spabridge.HeatingStateOff
}

// Subscribe registers a listener for mirror updates. Every successful refresh
// produces one snapshot; slow consumers drop intermediate frames. The second
// return unsubscribes.
func (s *SpaService) Subscribe() (<-chan spabridge.DeviceState, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan spabridge.DeviceState, 4)
	s.subs[id] = ch

	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *SpaService) publish(st spabridge.DeviceState) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

// send issues one attribute write with a correlation id for log tracing.
func (s *SpaService) send(ctx context.Context, attrs gateway.Attributes) error {
	cmdID := uuid.NewString()
	s.log.Infow("spa_command", "cmd_id", cmdID, "device_id", s.deviceID, "attrs", attrs)
	if err := s.gw.SendCommand(ctx, s.deviceID, attrs); err != nil {
		s.log.Errorw("spa_command_failed", "cmd_id", cmdID, "device_id", s.deviceID, "err", err)
		return err
	}
	return nil
}

// touchDevice records the read in the registry, best effort.
func (s *SpaService) touchDevice(ctx context.Context, seenAt time.Time) {
	if s.devices == nil {
		return
	}
	if err := s.devices.Touch(ctx, s.deviceID, seenAt); err != nil {
		s.log.Debugw("device_touch_failed", "device_id", s.deviceID, "err", err)
	}
}
