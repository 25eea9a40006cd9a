package domain

import "time"

// Phase models the meeting session lifecycle.
type Phase string

const (
	PhaseInitializing  Phase = "initializing"
	PhaseJoinRequested Phase = "join_requested"
	PhaseWaiting       Phase = "waiting"
	PhaseJoined        Phase = "joined"
	PhaseDisconnected  Phase = "disconnected"
	PhaseEnded         Phase = "ended"
	PhaseError         Phase = "error"

	// PhaseUnknown is only produced by status classification and never stored.
	PhaseUnknown Phase = "unknown"
)

// rank orders phases for forward-only transitions. All terminal phases
// share the last rank.
func (p Phase) rank() int {
	switch p {
	case PhaseInitializing:
		return 0
	case PhaseJoinRequested:
		return 1
	case PhaseWaiting:
		return 2
	case PhaseJoined:
		return 3
	case PhaseDisconnected, PhaseEnded, PhaseError:
		return 4
	default:
		return -1
	}
}

// Terminal reports whether no further transitions are accepted.
func (p Phase) Terminal() bool {
	return p.rank() == 4
}

// Before reports whether p precedes other in the lifecycle.
func (p Phase) Before(other Phase) bool {
	return p.rank() < other.rank()
}

// SessionState is the controller-owned view of the meeting session.
type SessionState struct {
	Phase            Phase     `json:"phase"`
	MeetingLink      string    `json:"meetingLink"`
	DisplayName      string    `json:"displayName"`
	RecordingEnabled bool      `json:"recordingEnabled"`
	JoinRequestedAt  time.Time `json:"joinRequestedAt,omitempty"`
	JoinedAt         time.Time `json:"joinedAt,omitempty"`
}

// CaptureState models the audio capture subsystem lifecycle.
type CaptureState string

const (
	CaptureStateIdle      CaptureState = "idle"
	CaptureStateCapturing CaptureState = "capturing"
	CaptureStateStopping  CaptureState = "stopping"
)

// RecordingSession describes one capture from start to stop.
type RecordingSession struct {
	Filename     string
	StartTime    time.Time
	FrameCount   int64
	ChannelCount int
	SampleRate   int
	BytesWritten int64
	Duration     time.Duration
	IsActive     bool
}

// RecordingStatus is the non-blocking capture health snapshot.
type RecordingStatus struct {
	IsRecording    bool    `json:"is_recording"`
	Duration       float64 `json:"duration"`
	FramesCaptured int64   `json:"frames_captured"`
	Filename       *string `json:"filename"`
}

// StopReason explains why a recording was finalized.
type StopReason string

const (
	StopReasonDisconnected StopReason = "disconnected"
	StopReasonEnded        StopReason = "ended"
	StopReasonShutdown     StopReason = "shutdown"
	StopReasonError        StopReason = "error"
)

// MediaDevice identifies a conference media toggle.
type MediaDevice string

const (
	MediaDeviceMicrophone MediaDevice = "microphone"
	MediaDeviceCamera     MediaDevice = "camera"
)

// MediaState is the on/off state of a media toggle.
type MediaState string

const (
	MediaStateOn      MediaState = "on"
	MediaStateOff     MediaState = "off"
	MediaStateUnknown MediaState = "unknown"
)

// MediaEnforcementResult is recomputed on every enforcement pass.
type MediaEnforcementResult struct {
	Device        MediaDevice `json:"device"`
	DesiredState  MediaState  `json:"desiredState"`
	ObservedState MediaState  `json:"observedState"`
	AttemptCount  int         `json:"attemptCount"`
	Toggled       bool        `json:"toggled"`
}

// Confirmed reports whether the desired state was reached or already held.
func (r MediaEnforcementResult) Confirmed() bool {
	return r.ObservedState == r.DesiredState
}

// ErrorCode identifies non-fatal and fatal backend errors.
type ErrorCode string

const (
	ErrorCodeStartup       ErrorCode = "startup"
	ErrorCodeSurface       ErrorCode = "surface"
	ErrorCodeJoin          ErrorCode = "join"
	ErrorCodeAudioStart    ErrorCode = "audio_start"
	ErrorCodeAudioStop     ErrorCode = "audio_stop"
	ErrorCodeAudioStream   ErrorCode = "audio_stream"
	ErrorCodePersist       ErrorCode = "persist"
	ErrorCodeTranscription ErrorCode = "transcription"
)

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent represents incremental transcription output from a provider.
type TranscriptEvent struct {
	Kind          TranscriptKind `json:"kind"`
	Text          string         `json:"text"`
	IsSpeechFinal bool           `json:"isSpeechFinal"`
}
