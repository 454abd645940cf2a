package rosbridge

import "encoding/json"

// Operation names.
const (
	opAuth            = "auth"
	opAdvertise       = "advertise"
	opUnadvertise     = "unadvertise"
	opPublish         = "publish"
	opSubscribe       = "subscribe"
	opUnsubscribe     = "unsubscribe"
	opCallService     = "call_service"
	opServiceResponse = "service_response"
	opStatus          = "status"

	topicsService = "/rosapi/topics"
)

type authFrame struct {
	Op     string `json:"op"`
	MAC    string `json:"mac"`
	Client string `json:"client"`
	Dest   string `json:"dest"`
	Rand   string `json:"rand"`
	T      int64  `json:"t"`
	Level  string `json:"level"`
	End    int64  `json:"end"`
}

type topicFrame struct {
	Op    string `json:"op"`
	ID    string `json:"id,omitempty"`
	Topic string `json:"topic"`
	Type  string `json:"type,omitempty"`
	Msg   any    `json:"msg,omitempty"`
}

type serviceFrame struct {
	Op      string `json:"op"`
	ID      string `json:"id"`
	Service string `json:"service"`
	Args    any    `json:"args"`
}

// inbound is the union of frames the broker sends.
type inbound struct {
	Op      string          `json:"op"`
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Msg     json.RawMessage `json:"msg"`
	Service string          `json:"service"`
	Values  json.RawMessage `json:"values"`
	Result  *bool           `json:"result"`
	Level   string          `json:"level"`
}

type serviceResponse struct {
	values json.RawMessage
	ok     bool
}

type topicsValues struct {
	Topics []string `json:"topics"`
	Types  []string `json:"types"`
}
