package robot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/museum-robotics/tourguide-core/internal/clock"
)

// DefaultConfirmTimeout bounds the wait for the robot's tour start reply.
const DefaultConfirmTimeout = 10 * time.Second

// TourPhase is the robot-facing lifecycle of one tour start.
type TourPhase string

// Tour phases. A start moves NotStarted, AudioStreamed, SignalSent and ends
// in Confirmed, Failed or TimedOut.
const (
	PhaseNotStarted    TourPhase = "not_started"
	PhaseAudioStreamed TourPhase = "audio_streamed"
	PhaseSignalSent    TourPhase = "signal_sent"
	PhaseConfirmed     TourPhase = "confirmed"
	PhaseFailed        TourPhase = "failed"
	PhaseTimedOut      TourPhase = "timed_out"
)

// TourStartResult records how far a tour start got.
type TourStartResult struct {
	Phase   TourPhase      `json:"phase"`
	Reports []StreamReport `json:"reports"`
}

// TourStarterOptions configures a TourStarter.
type TourStarterOptions struct {
	ConfirmTimeout time.Duration
	Clock          clock.Clock
	Logger         Logger
}

// TourStarter delivers a tour's narration and tells the robot to begin.
type TourStarter struct {
	conn           *Connection
	streamer       *AudioStreamer
	confirmTimeout time.Duration
	clock          clock.Clock
	logger         Logger
}

// NewTourStarter creates a TourStarter.
func NewTourStarter(conn *Connection, streamer *AudioStreamer, opts TourStarterOptions) *TourStarter {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &TourStarter{
		conn:           conn,
		streamer:       streamer,
		confirmTimeout: opts.ConfirmTimeout,
		clock:          opts.Clock,
		logger:         loggerOrNop(opts.Logger),
	}
}

// StartTour streams paths one after another, in order, and then sends the
// start signal. The first failed file aborts the sequence before the signal
// is sent. The stream slot is held for the whole sequence so no other
// stream can interleave. The result is returned together with any error.
func (t *TourStarter) StartTour(ctx context.Context, paths []string) (*TourStartResult, error) {
	res := &TourStartResult{Phase: PhaseNotStarted, Reports: []StreamReport{}}

	if err := t.streamer.acquire(ctx); err != nil {
		return res, err
	}
	defer t.streamer.release()

	t.logger.Info("starting tour", "files", len(paths))

	reports, err := t.streamer.streamFiles(ctx, paths)
	res.Reports = reports
	if err != nil {
		t.logger.Error("tour audio delivery aborted", "delivered", len(reports), "error", err)
		return res, err
	}
	res.Phase = PhaseAudioStreamed

	err = t.signal(ctx, res)
	t.logger.Info("tour start finished", "phase", res.Phase, "error", err)
	return res, err
}

// SendStartTourSignal publishes the start signal and waits for the robot
// to confirm or refuse. It fails with ErrTourStartTimeout when no reply
// arrives within the confirmation timeout.
func (t *TourStarter) SendStartTourSignal(ctx context.Context) error {
	return t.signal(ctx, &TourStartResult{Phase: PhaseAudioStreamed})
}

func (t *TourStarter) signal(ctx context.Context, res *TourStartResult) error {
	replies := make(chan string, 1)
	sub, err := t.conn.Subscribe(ctx, TopicRobotStatus, TypeString, func(raw json.RawMessage) {
		v, derr := decodeString(raw)
		if derr != nil || (v != TourStartedValue && v != TourStartFailedValue) {
			return
		}
		select {
		case replies <- v:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := t.conn.Unsubscribe(context.WithoutCancel(ctx), sub); err != nil {
			t.logger.Debug("releasing tour status subscription failed", "error", err)
		}
	}()

	adv, err := t.conn.Advertise(ctx, TopicStartTourSignal, TypeString)
	if err != nil {
		return err
	}
	defer func() {
		if err := t.conn.Unadvertise(context.WithoutCancel(ctx), adv); err != nil {
			t.logger.Debug("releasing tour signal channel failed", "error", err)
		}
	}()

	if err := t.conn.Publish(ctx, adv, StringMsg{Data: StartTourValue}); err != nil {
		return err
	}
	res.Phase = PhaseSignalSent

	timer := t.clock.NewTimer(t.confirmTimeout)
	defer timer.Stop()

	select {
	case v := <-replies:
		if v == TourStartedValue {
			res.Phase = PhaseConfirmed
			return nil
		}
		res.Phase = PhaseFailed
		return ErrTourStartFailed
	case <-timer.C:
		res.Phase = PhaseTimedOut
		return fmt.Errorf("%w (%s)", ErrTourStartTimeout, t.confirmTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
