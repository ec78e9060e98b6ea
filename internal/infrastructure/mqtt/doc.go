// Package mqtt carries knxtest group values over an MQTT broker.
//
// Each group address has its own retained topic under the bus prefix, with
// the address URL-encoded so it stays a single topic level:
//
//	knxtest/bus/2%2F1%2F17
//
// Device models and the harness may therefore run in separate processes as
// long as they share a broker. StartBroker runs one in-process for
// self-contained runs. Client announces itself on knxtest/system/status and
// leaves a will there so a crashed run is distinguishable from a finished one.
//
//	broker, err := mqtt.StartBroker(cfg.MQTT, "127.0.0.1:1883", nil)
//	...
//	client, err := mqtt.Connect(cfg.MQTT)
//	...
//	defer client.Close()
package mqtt
