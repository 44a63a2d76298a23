package mqtt

import "fmt"

// TopicPrefix is the root of every tftbridge topic.
const TopicPrefix = "tftbridge"

// Topics builds tftbridge topic names.
type Topics struct{}

// SystemStatus carries the retained online/offline presence message.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// BridgeEvents carries lifecycle events for one bridge, e.g.
// tftbridge/events/printer-1.
func (Topics) BridgeEvents(bridgeID string) string {
	return fmt.Sprintf("%s/events/%s", TopicPrefix, bridgeID)
}
