package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/tftbridge/internal/bridge"
	"github.com/nerrad567/tftbridge/internal/infrastructure/mqtt"
)

// ErrEmptyPayload is returned for a message with no state.
var ErrEmptyPayload = errors.New("host: empty state payload")

// Signal is a lifecycle signal decoded from a host message.
type Signal int

// Signals.
const (
	SignalUnknown Signal = iota
	SignalReady
	SignalDisconnect
)

func (s Signal) String() string {
	switch s {
	case SignalReady:
		return "ready"
	case SignalDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Controller is the part of the bridge the listener drives.
type Controller interface {
	Ready(ctx context.Context) error
	Disconnect()
}

// Subscriber registers MQTT handlers. Satisfied by *mqtt.Client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Config holds listener settings.
type Config struct {
	// Topic carries host state payloads.
	Topic string

	// ReadyPayloads start relaying. Default: ready.
	ReadyPayloads []string

	// DisconnectPayloads stop relaying. Default: disconnect, shutdown, offline.
	DisconnectPayloads []string

	// ReadyTimeout bounds each Ready call. Default: 10s.
	ReadyTimeout time.Duration
}

// Listener maps host state messages to Ready and Disconnect.
type Listener struct {
	topic        string
	ready        map[string]bool
	disconnect   map[string]bool
	readyTimeout time.Duration
	ctrl         Controller

	logger   bridge.Logger
	loggerMu sync.RWMutex
}

// NewListener creates a listener for ctrl.
func NewListener(cfg Config, ctrl Controller) *Listener {
	if len(cfg.ReadyPayloads) == 0 {
		cfg.ReadyPayloads = []string{"ready"}
	}
	if len(cfg.DisconnectPayloads) == 0 {
		cfg.DisconnectPayloads = []string{"disconnect", "shutdown", "offline"}
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 10 * time.Second
	}

	return &Listener{
		topic:        cfg.Topic,
		ready:        wordSet(cfg.ReadyPayloads),
		disconnect:   wordSet(cfg.DisconnectPayloads),
		readyTimeout: cfg.ReadyTimeout,
		ctrl:         ctrl,
	}
}

func wordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return set
}

// Start subscribes to the host state topic.
func (l *Listener) Start(sub Subscriber) error {
	if err := sub.Subscribe(l.topic, 1, l.HandleMessage); err != nil {
		return fmt.Errorf("subscribe to host state: %w", err)
	}
	l.logInfo("listening for host state", "topic", l.topic)
	return nil
}

// Decode maps a payload to a signal.
func (l *Listener) Decode(payload []byte) (Signal, string, error) {
	word := strings.TrimSpace(string(payload))
	if word == "" {
		return SignalUnknown, "", ErrEmptyPayload
	}

	if strings.HasPrefix(word, "{") {
		var msg struct {
			State string `json:"state"`
		}
		if err := json.Unmarshal([]byte(word), &msg); err != nil {
			return SignalUnknown, "", fmt.Errorf("host: decoding state message: %w", err)
		}
		word = strings.TrimSpace(msg.State)
		if word == "" {
			return SignalUnknown, "", ErrEmptyPayload
		}
	}

	word = strings.ToLower(word)
	switch {
	case l.ready[word]:
		return SignalReady, word, nil
	case l.disconnect[word]:
		return SignalDisconnect, word, nil
	}
	return SignalUnknown, word, nil
}

// HandleMessage is the MQTT handler for the host state topic.
func (l *Listener) HandleMessage(topic string, payload []byte) error {
	sig, word, err := l.Decode(payload)
	if err != nil {
		return err
	}

	switch sig {
	case SignalReady:
		l.logInfo("host ready", "topic", topic)
		ctx, cancel := context.WithTimeout(context.Background(), l.readyTimeout)
		defer cancel()
		if err := l.ctrl.Ready(ctx); err != nil {
			return fmt.Errorf("handling host ready: %w", err)
		}
	case SignalDisconnect:
		l.logInfo("host disconnected", "topic", topic, "state", word)
		l.ctrl.Disconnect()
	default:
		l.logDebug("ignoring host state", "topic", topic, "state", word)
	}
	return nil
}

// SetLogger sets the logger for the listener.
func (l *Listener) SetLogger(logger bridge.Logger) {
	l.loggerMu.Lock()
	l.logger = logger
	l.loggerMu.Unlock()
}

func (l *Listener) logInfo(msg string, keysAndValues ...any) {
	l.loggerMu.RLock()
	logger := l.logger
	l.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (l *Listener) logDebug(msg string, keysAndValues ...any) {
	l.loggerMu.RLock()
	logger := l.logger
	l.loggerMu.RUnlock()
	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
