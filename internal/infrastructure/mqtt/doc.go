// Package mqtt provides MQTT connectivity for robots that expose their ROS
// topics through an MQTT bridge instead of rosbridge.
//
// This package manages:
//   - A single broker connection per Connect call, with no automatic
//     reconnection (the robot connection's supervisor owns retries)
//   - Message publishing with QoS and payload size checks
//   - Subscriptions with panic-safe handler dispatch
//   - Last Will and Testament on the controller status topic
//
// # Topic layout
//
// A ROS topic maps onto the broker by joining it to the configured prefix:
//
//	/robot_status      -> tourguide/robot/robot_status
//	/audio_stream      -> tourguide/robot/audio_stream
//	(controller LWT)   -> tourguide/robot/$controller/status
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.NewTopics(cfg.MQTT.TopicPrefix)
//	err = client.Subscribe(topics.Channel("/robot_status"), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("%s: %s", topics.ChannelOf(topic), payload)
//	        return nil
//	    })
//
// # Security Considerations
//
//   - Use TLS (mqtt.broker.tls) whenever the broker is off the robot's LAN
//   - Credentials are validated against the broker ACL
package mqtt
