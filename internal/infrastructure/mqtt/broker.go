package mqtt

import (
	"fmt"
	"io"
	"log/slog"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/config"
)

// Broker is an in-process MQTT broker for self-contained runs and tests.
//
// It accepts anonymous clients unless credentials are configured, in which
// case only that username/password pair may connect.
type Broker struct {
	server  *mochi.Server
	address string
}

// StartBroker starts an embedded broker listening on address.
//
// Parameters:
//   - cfg: MQTT configuration (auth credentials are enforced if set)
//   - address: TCP listen address, e.g. "127.0.0.1:1883"
//   - logger: Broker log sink; nil discards
//
// Returns:
//   - *Broker: Running broker; call Close to stop it
//   - error: If the listener cannot be bound
func StartBroker(cfg config.MQTTConfig, address string, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	server := mochi.New(&mochi.Options{
		Logger:       logger,
		InlineClient: true,
	})

	if err := server.AddHook(authHook(cfg.Auth)); err != nil {
		return nil, fmt.Errorf("%w: adding auth hook: %w", ErrBrokerFailed, err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      "knxtest-tcp",
		Address: address,
	})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("%w: listening on %s: %w", ErrBrokerFailed, address, err)
	}

	if err := server.Serve(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBrokerFailed, err)
	}

	return &Broker{server: server, address: address}, nil
}

// authHook returns the hook and its options for the configured credentials.
func authHook(creds config.MQTTAuthConfig) (mochi.Hook, any) {
	if creds.Username == "" {
		return new(auth.AllowHook), nil
	}
	return new(auth.Hook), &auth.Options{
		Ledger: &auth.Ledger{
			Auth: auth.AuthRules{
				{Username: auth.RString(creds.Username), Password: auth.RString(creds.Password), Allow: true},
			},
			ACL: auth.ACLRules{
				{Username: auth.RString(creds.Username), Filters: auth.Filters{"#": auth.ReadWrite}},
			},
		},
	}
}

// Address returns the listen address.
func (b *Broker) Address() string {
	return b.address
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	return len(b.server.Clients.GetAll())
}

// Close stops the broker and disconnects all clients.
func (b *Broker) Close() error {
	if b == nil || b.server == nil {
		return nil
	}
	return b.server.Close()
}
