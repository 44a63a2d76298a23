package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/tftbridge/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second

	// tokenTimeout bounds every publish and subscribe acknowledgement.
	tokenTimeout = 5 * time.Second

	disconnectQuiesceMS = 1000
	keepAlive           = 60 * time.Second
	maxQoS              = 2
	tlsMinVersion       = tls.VersionTLS12

	// willQoS is used for the Last Will and the presence messages.
	willQoS = 1
)

// Presence values published on the system status topic.
const (
	presenceOnline  = "online"
	presenceOffline = "offline"
)

// presence is the retained message on tftbridge/system/status.
type presence struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func presencePayload(clientID, status, reason string) []byte {
	//nolint:errchkjson // plain strings always marshal
	data, _ := json.Marshal(presence{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return data
}

// buildClientOptions maps the mqtt config section onto paho options:
// broker URL (ssl:// with TLS), credentials, clean session and
// reconnect backoff between reconnect.initial_delay and max_delay.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	return opts
}

// configureLWT installs will, or an offline presence message on the
// system status topic when will is nil. Both are retained.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string, will *Will) {
	if will != nil && will.Topic != "" {
		opts.SetBinaryWill(will.Topic, will.Payload, willQoS, true)
		return
	}
	opts.SetBinaryWill(Topics{}.SystemStatus(),
		presencePayload(clientID, presenceOffline, "unexpected_disconnect"), willQoS, true)
}

// await waits for a paho token and wraps failures in base.
func await(token pahomqtt.Token, base error) error {
	if !token.WaitTimeout(tokenTimeout) {
		return fmt.Errorf("%w: timeout after %v", base, tokenTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", base, err)
	}
	return nil
}
