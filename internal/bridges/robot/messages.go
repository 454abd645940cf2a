package robot

import "encoding/json"

// Broker channels and their message types.
const (
	TopicClientCount       = "/client_count"
	TopicRobotStatus       = "/robot_status"
	TopicAmclPose          = "/amcl_pose"
	TopicAudioStream       = "/audio_stream"
	TopicAudioMetadata     = "/audio_metadata"
	TopicAudioSaveComplete = "/audio_save_complete"
	TopicStartTourSignal   = "/start_tour_signal"
	TopicMoveGoal          = "/move_base_simple/goal"

	TypeInt32           = "std_msgs/Int32"
	TypeString          = "std_msgs/String"
	TypeUInt8MultiArray = "std_msgs/UInt8MultiArray"
	TypePoseCovStamped  = "geometry_msgs/PoseWithCovarianceStamped"
	TypePoseStamped     = "geometry_msgs/PoseStamped"
)

// Protocol values exchanged on string channels.
const (
	AudioSavedValue      = "done saving"
	StartTourValue       = "start_tour"
	TourStartedValue     = "tour_started"
	TourStartFailedValue = "tour_start_failed"

	// InitialRobotState is reported until the robot publishes its first
	// status.
	InitialRobotState = "at home"

	mapFrame = "map"
)

// StringMsg is std_msgs/String.
type StringMsg struct {
	Data string `json:"data"`
}

// Int32Msg is std_msgs/Int32.
type Int32Msg struct {
	Data int32 `json:"data"`
}

// MultiArrayDimension is std_msgs/MultiArrayDimension.
type MultiArrayDimension struct {
	Label  string `json:"label"`
	Size   uint32 `json:"size"`
	Stride uint32 `json:"stride"`
}

// MultiArrayLayout is std_msgs/MultiArrayLayout.
type MultiArrayLayout struct {
	Dim        []MultiArrayDimension `json:"dim"`
	DataOffset uint32                `json:"data_offset"`
}

// UInt8MultiArray is std_msgs/UInt8MultiArray. Data is encoded as base64 on
// the wire, which the broker accepts for uint8[] fields.
type UInt8MultiArray struct {
	Layout MultiArrayLayout `json:"layout"`
	Data   []byte           `json:"data"`
}

// newChunk wraps data in a UInt8MultiArray. A nil or empty slice produces the
// empty end-of-stream marker.
func newChunk(data []byte) UInt8MultiArray {
	if data == nil {
		data = []byte{}
	}
	return UInt8MultiArray{
		Layout: MultiArrayLayout{Dim: []MultiArrayDimension{}},
		Data:   data,
	}
}

// Point is geometry_msgs/Point.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is geometry_msgs/Quaternion.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Pose is geometry_msgs/Pose.
type Pose struct {
	Position    Point      `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// Header is std_msgs/Header.
type Header struct {
	FrameID string `json:"frame_id"`
}

// PoseStamped is geometry_msgs/PoseStamped.
type PoseStamped struct {
	Header Header `json:"header"`
	Pose   Pose   `json:"pose"`
}

// PoseWithCovarianceStamped is geometry_msgs/PoseWithCovarianceStamped.
type PoseWithCovarianceStamped struct {
	Header Header `json:"header"`
	Pose   struct {
		Pose       Pose      `json:"pose"`
		Covariance []float64 `json:"covariance"`
	} `json:"pose"`
}

// PoseSample is the planar robot pose relayed to dashboards: position x/y
// and the z/w quaternion components of the heading.
type PoseSample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// poseSampleFrom reduces an amcl pose message to a PoseSample.
func poseSampleFrom(msg PoseWithCovarianceStamped) PoseSample {
	p := msg.Pose.Pose
	return PoseSample{
		X: p.Position.X,
		Y: p.Position.Y,
		Z: p.Orientation.Z,
		W: p.Orientation.W,
	}
}

// goalFrom builds a navigation goal in the map frame.
func goalFrom(p PoseSample) PoseStamped {
	return PoseStamped{
		Header: Header{FrameID: mapFrame},
		Pose: Pose{
			Position:    Point{X: p.X, Y: p.Y},
			Orientation: Quaternion{Z: p.Z, W: p.W},
		},
	}
}

// AudioMetadata precedes the chunks of one audio file.
type AudioMetadata struct {
	FileName    string `json:"file_name"`
	FileSize    int64  `json:"file_size"`
	ChunkSize   int    `json:"chunk_size"`
	TotalChunks int64  `json:"total_chunks"`
}

// chunkCount returns ceil(size / chunkSize).
func chunkCount(size int64, chunkSize int) int64 {
	if size <= 0 {
		return 0
	}
	c := int64(chunkSize)
	return (size + c - 1) / c
}

// decodeString extracts the data field of a std_msgs/String message.
func decodeString(raw json.RawMessage) (string, error) {
	var msg StringMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", err
	}
	return msg.Data, nil
}
