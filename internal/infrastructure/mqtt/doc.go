// Package mqtt provides MQTT client connectivity for APS Core.
//
// This package manages:
//   - Connection to the factory broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The model factory's modules (warehouse, mill, drill, quality check,
// I/O station), the transport vehicle, and the central controller (CCU)
// all speak JSON over a shared Mosquitto broker. This package is the
// only seam between the core and that broker; the core never opens
// ports or terminates connections itself.
//
//	APS Core ↔ MQTT Broker ↔ Modules / FTS / CCU / TXT
//
// # Ordering
//
// Publish blocks on broker acknowledgement at QoS 1, so commands to a
// single module hit the wire in call order. This is what the sequencer's
// per-module orderUpdateId contract depends on; the adapter must never
// reorder.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllModuleStates(), 1,
//	    func(topic string, payload []byte) error {
//	        return router.Handle(topic, payload)
//	    })
package mqtt
