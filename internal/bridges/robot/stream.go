package robot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/museum-robotics/tourguide-core/internal/clock"
)

// Streamer defaults.
const (
	DefaultChunkSize  = 16384
	DefaultChunkDelay = 5 * time.Millisecond
	DefaultAckTimeout = 5 * time.Second
)

// StreamerOptions configures an AudioStreamer.
type StreamerOptions struct {
	// ChunkSize is the payload size of every chunk but the last.
	ChunkSize int

	// ChunkDelay is the pause between chunk publishes. Zero disables it.
	ChunkDelay time.Duration

	// AckTimeout bounds the wait for the robot's save acknowledgement.
	AckTimeout time.Duration

	Clock    clock.Clock
	Logger   Logger
	Recorder Recorder
}

// StreamReport describes one completed stream session.
type StreamReport struct {
	SessionID    string        `json:"session_id"`
	FilePath     string        `json:"file_path"`
	FileName     string        `json:"file_name"`
	ChunkSize    int           `json:"chunk_size"`
	TotalBytes   int64         `json:"total_bytes"`
	ChunksSent   int64         `json:"chunks_sent"`
	Acknowledged bool          `json:"acknowledged"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
}

// AudioStreamer uploads audio files to the robot over the broker.
//
// Each file is sent as a metadata message, the file bytes in fixed-size
// chunks, and an empty end-of-stream marker, after which the streamer waits
// a bounded time for the robot to confirm the file was saved. Only one
// stream runs at a time; concurrent callers queue for the slot.
type AudioStreamer struct {
	conn       *Connection
	chunkSize  int
	chunkDelay time.Duration
	ackTimeout time.Duration
	clock      clock.Clock
	logger     Logger
	recorder   Recorder

	slot *semaphore.Weighted
}

// NewAudioStreamer creates a streamer publishing through conn. A negative
// ChunkDelay is treated as zero.
func NewAudioStreamer(conn *Connection, opts StreamerOptions) *AudioStreamer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkDelay < 0 {
		opts.ChunkDelay = 0
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &AudioStreamer{
		conn:       conn,
		chunkSize:  opts.ChunkSize,
		chunkDelay: opts.ChunkDelay,
		ackTimeout: opts.AckTimeout,
		clock:      opts.Clock,
		logger:     loggerOrNop(opts.Logger),
		recorder:   opts.Recorder,
		slot:       semaphore.NewWeighted(1),
	}
}

// StreamFile streams one file. The caller must have checked that the
// connection is authenticated.
//
// ctx bounds only the wait for the stream slot. Once started, a stream runs
// to completion or failure. A missing save acknowledgement is not an error;
// it is reported through StreamReport.Acknowledged.
func (a *AudioStreamer) StreamFile(ctx context.Context, path string) (*StreamReport, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()

	return a.streamFile(ctx, path)
}

// StreamFiles streams paths sequentially and stops at the first failure.
// Reports for the files that completed are returned alongside the error.
func (a *AudioStreamer) StreamFiles(ctx context.Context, paths []string) ([]StreamReport, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()

	return a.streamFiles(ctx, paths)
}

func (a *AudioStreamer) acquire(ctx context.Context) error {
	if err := a.slot.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrStreamBusy, err)
	}
	return nil
}

func (a *AudioStreamer) release() { a.slot.Release(1) }

// streamFiles requires the slot to be held.
func (a *AudioStreamer) streamFiles(ctx context.Context, paths []string) ([]StreamReport, error) {
	reports := make([]StreamReport, 0, len(paths))
	for i, path := range paths {
		report, err := a.streamFile(ctx, path)
		if err != nil {
			return reports, fmt.Errorf("file %d of %d: %w", i+1, len(paths), err)
		}
		reports = append(reports, *report)
	}
	return reports, nil
}

// streamHandles are the three channel handles of one stream session.
type streamHandles struct {
	ack   *Subscription
	audio *Advertisement
	meta  *Advertisement
}

// release frees every handle that was acquired. Each release is attempted
// even when an earlier one fails.
func (h streamHandles) release(ctx context.Context, conn *Connection) error {
	var errs []error
	if h.ack != nil {
		if err := conn.Unsubscribe(ctx, *h.ack); err != nil {
			errs = append(errs, err)
		}
	}
	if h.audio != nil {
		if err := conn.Unadvertise(ctx, *h.audio); err != nil {
			errs = append(errs, err)
		}
	}
	if h.meta != nil {
		if err := conn.Unadvertise(ctx, *h.meta); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// streamFile requires the slot to be held.
func (a *AudioStreamer) streamFile(ctx context.Context, path string) (report *StreamReport, err error) {
	ctx = context.WithoutCancel(ctx)

	session := &StreamReport{
		SessionID: uuid.NewString(),
		FilePath:  path,
		FileName:  filepath.Base(path),
		ChunkSize: a.chunkSize,
		StartedAt: a.clock.Now(),
	}

	var handles streamHandles
	defer func() {
		relErr := handles.release(ctx, a.conn)
		session.Duration = a.clock.Now().Sub(session.StartedAt)

		if err != nil {
			a.logger.Error("audio stream failed",
				"session_id", session.SessionID, "file", session.FileName,
				"chunks_sent", session.ChunksSent, "error", err)
			report, err = nil, fmt.Errorf("%w: %s: %w", ErrStreamFailed, session.FileName, errors.Join(err, relErr))
			return
		}
		if relErr != nil {
			a.logger.Warn("releasing audio channels failed", "session_id", session.SessionID, "error", relErr)
		}
		if a.recorder != nil {
			a.recorder.RecordStream(*session)
		}
	}()

	acks := make(chan struct{}, 1)
	sub, err := a.conn.Subscribe(ctx, TopicAudioSaveComplete, TypeString, func(raw json.RawMessage) {
		if v, derr := decodeString(raw); derr == nil && v == AudioSavedValue {
			select {
			case acks <- struct{}{}:
			default:
			}
		}
	})
	if err != nil {
		return nil, err
	}
	handles.ack = &sub

	audio, err := a.conn.Advertise(ctx, TopicAudioStream, TypeUInt8MultiArray)
	if err != nil {
		return nil, err
	}
	handles.audio = &audio

	meta, err := a.conn.Advertise(ctx, TopicAudioMetadata, TypeString)
	if err != nil {
		return nil, err
	}
	handles.meta = &meta

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening audio file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading audio file size: %w", err)
	}
	session.TotalBytes = info.Size()

	if err := a.publishMetadata(ctx, meta, session); err != nil {
		return nil, err
	}

	a.logger.Info("streaming audio file",
		"session_id", session.SessionID, "file", session.FileName,
		"bytes", session.TotalBytes, "chunk_size", a.chunkSize)

	if err := a.publishChunks(ctx, audio, f, session); err != nil {
		return nil, err
	}

	if err := a.conn.Publish(ctx, audio, newChunk(nil)); err != nil {
		return nil, fmt.Errorf("publishing end marker: %w", err)
	}

	session.Acknowledged = a.waitSaved(acks, session)
	return session, nil
}

func (a *AudioStreamer) publishMetadata(ctx context.Context, meta Advertisement, session *StreamReport) error {
	payload, err := json.Marshal(AudioMetadata{
		FileName:    session.FileName,
		FileSize:    session.TotalBytes,
		ChunkSize:   a.chunkSize,
		TotalChunks: chunkCount(session.TotalBytes, a.chunkSize),
	})
	if err != nil {
		return fmt.Errorf("encoding audio metadata: %w", err)
	}
	if err := a.conn.Publish(ctx, meta, StringMsg{Data: string(payload)}); err != nil {
		return fmt.Errorf("publishing audio metadata: %w", err)
	}
	return nil
}

// publishChunks sends r in order, chunkSize bytes at a time.
func (a *AudioStreamer) publishChunks(ctx context.Context, audio Advertisement, r io.Reader, session *StreamReport) error {
	buf := make([]byte, a.chunkSize)
	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			if session.ChunksSent > 0 && a.chunkDelay > 0 {
				a.clock.Sleep(a.chunkDelay)
			}
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := a.conn.Publish(ctx, audio, newChunk(chunk)); err != nil {
				return fmt.Errorf("publishing chunk %d: %w", session.ChunksSent+1, err)
			}
			session.ChunksSent++
		}
		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF), errors.Is(rerr, io.ErrUnexpectedEOF):
			return nil
		default:
			return fmt.Errorf("reading audio file: %w", rerr)
		}
	}
}

// waitSaved waits for the save acknowledgement. A timeout is logged and
// otherwise ignored.
func (a *AudioStreamer) waitSaved(acks <-chan struct{}, session *StreamReport) bool {
	timer := a.clock.NewTimer(a.ackTimeout)
	defer timer.Stop()

	select {
	case <-acks:
		a.logger.Info("audio file saved by robot", "session_id", session.SessionID, "file", session.FileName)
		return true
	case <-timer.C:
		a.logger.Warn("no save acknowledgement from robot, continuing",
			"session_id", session.SessionID, "file", session.FileName, "timeout", a.ackTimeout)
		return false
	}
}
