package service

import (
	"context"
	"time"

	"spabridge"
	"spabridge/internal/gateway"
	"spabridge/internal/logger"
	"spabridge/internal/repository"
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Spa exposes the synchronizer's control operations. Setters apply the value
// locally, push it to the cloud and reconcile with a forced refresh.
type Spa interface {
	Refresh(ctx context.Context, force bool) spabridge.DeviceState
	SetPower(ctx context.Context, on bool) error
	SetTargetTemperature(ctx context.Context, tempC float64) error
	SetWaves(ctx context.Context, on bool) error
	SetFilter(ctx context.Context, on bool) error
	SetHeating(ctx context.Context, on bool) error
}

// Monitoring exposes read-only views of the mirror, plus a subscription feed
// for hosts that take unsolicited updates.
type Monitoring interface {
	State() spabridge.DeviceState
	HeatingState() string
	Subscribe() (<-chan spabridge.DeviceState, func())
}

// Poller runs the fixed-interval refresh loop.
// Stop via context cancellation in main() for graceful shutdown.
type Poller interface {
	Run(ctx context.Context, tick time.Duration)
}

// DeviceGateway is the transport the synchronizer drives. Satisfied by
// *gateway.Client.
type DeviceGateway interface {
	FetchStatus(ctx context.Context, deviceID string) (gateway.Attributes, error)
	SendCommand(ctx context.Context, deviceID string, attrs gateway.Attributes) error
}

// Options carries the wiring knobs main() reads from config.
type Options struct {
	DeviceID   string
	CacheTTL   time.Duration
	SigningKey string
}

//
// Root Service aggregates all sub-services.
//

type Service struct {
	Spa
	Monitoring
	Poller
	Authorization
}

// NewService wires the gateway and repository layer into concrete services.
func NewService(repos *repository.Repository, gw DeviceGateway, opts Options, log *logger.Logger) *Service {
	spa := NewSpaService(gw, repos.Devices, opts.DeviceID, opts.CacheTTL, log)
	return &Service{
		Spa:           spa,
		Monitoring:    spa,
		Poller:        NewPollerService(spa, log),
		Authorization: NewAuthService(repos.Auth, opts.SigningKey),
	}
}
