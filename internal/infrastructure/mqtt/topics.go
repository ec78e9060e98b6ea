package mqtt

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-knxtest/internal/knx"
)

// Topic roots.
const (
	// DefaultBusPrefix is the base for group value topics.
	DefaultBusPrefix = "knxtest/bus"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "knxtest/system"

	// TopicPrefixReport is the base for published run reports.
	TopicPrefixReport = "knxtest/report"
)

// Topics provides builders for knxtest MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.NewTopics("knxtest/bus")
//	topics.Bus(knx.MustParseGroupAddress("2/1/17"))
//	// Returns: "knxtest/bus/2%2F1%2F17"
//
// Group addresses are URL-encoded so that their slashes do not add topic
// levels and the single-level wildcard matches every address.
type Topics struct {
	// Prefix is the bus topic root. Empty means DefaultBusPrefix.
	Prefix string
}

// NewTopics returns topic builders rooted at prefix.
func NewTopics(prefix string) Topics {
	return Topics{Prefix: strings.TrimSuffix(prefix, "/")}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultBusPrefix
	}
	return t.Prefix
}

// Bus returns the topic carrying values for one group address.
//
// Example: knxtest/bus/1%2F2%2F3
func (t Topics) Bus(ga knx.GroupAddress) string {
	return t.prefix() + "/" + ga.URLEncode()
}

// AllBus returns the wildcard matching every group address topic.
func (t Topics) AllBus() string {
	return t.prefix() + "/+"
}

// ParseBus extracts the group address from a bus topic.
func (t Topics) ParseBus(topic string) (knx.GroupAddress, error) {
	encoded, ok := strings.CutPrefix(topic, t.prefix()+"/")
	if !ok || encoded == "" || strings.Contains(encoded, "/") {
		return knx.GroupAddress{}, fmt.Errorf("%w: %q is not a bus topic", ErrInvalidTopic, topic)
	}
	return knx.ParseGroupAddressFromURL(encoded)
}

// SystemStatus returns the topic for harness online/offline status.
//
// Example: knxtest/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// Report returns the topic a run report is published on.
//
// Example: knxtest/report/6f1c...
func (Topics) Report(runID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixReport, runID)
}
