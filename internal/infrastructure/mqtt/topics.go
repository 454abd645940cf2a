package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "tourguide/robot"

// controllerSegment is reserved for topics published by the controller itself.
// ROS names cannot start with '$', so it never collides with a channel.
const controllerSegment = "$controller"

// Topics maps ROS topic names onto the broker's topic tree.
type Topics struct {
	prefix string
}

// NewTopics returns a Topics rooted at prefix. Leading and trailing slashes
// are trimmed; an empty prefix falls back to DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of the topic tree.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// Channel returns the broker topic for a ROS topic.
//
// Example: Channel("/robot_status") = "tourguide/robot/robot_status"
func (t Topics) Channel(rosTopic string) string {
	return t.Prefix() + "/" + strings.TrimPrefix(rosTopic, "/")
}

// ChannelOf is the inverse of Channel. It returns "" for topics outside the prefix.
func (t Topics) ChannelOf(topic string) string {
	rest, ok := strings.CutPrefix(topic, t.Prefix()+"/")
	if !ok || rest == "" {
		return ""
	}
	return "/" + rest
}

// ControllerStatus returns the retained online/offline topic for this controller.
func (t Topics) ControllerStatus() string {
	return t.Prefix() + "/" + controllerSegment + "/status"
}

// AllChannels returns a wildcard matching every channel under the prefix.
func (t Topics) AllChannels() string {
	return t.Prefix() + "/#"
}

// validPublishTopic reports whether topic is concrete (no wildcards).
func validPublishTopic(topic string) bool {
	return topic != "" && !strings.ContainsAny(topic, "+#")
}
