// Package mqtt connects tftbridge to an MQTT broker.
//
// Three flows use it: the printer host announces ready/disconnect on
// host.state_topic (default tftbridge/host/state), the health reporter
// publishes retained status to tftbridge/health/{bridge_id}, and
// lifecycle events go to tftbridge/events/{bridge_id}. A retained
// presence message on tftbridge/system/status says whether the process
// is online; the broker flips it to offline through the Last Will if the
// process dies.
//
// Publish and Subscribe wait for the broker's acknowledgement, so callers
// on latency-sensitive paths should publish from their own goroutine.
//
// Credentials belong in TFTBRIDGE_MQTT_USERNAME/PASSWORD. Enable
// mqtt.broker.tls when the broker is not local.
//
//	client, err := mqtt.Connect(cfg.MQTT, nil)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(cfg.Host.StateTopic, 1, listener.HandleMessage)
package mqtt
