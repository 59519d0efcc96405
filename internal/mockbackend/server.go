// Package mockbackend is a stand-in LiveCall backend. It records the
// caller's audio to WAV and echoes every block back.
package mockbackend

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/yoockh/callbridge/internal/audio"
	"github.com/yoockh/callbridge/internal/livecallpb"
)

const finalizeTimeout = 2 * time.Minute

type Options struct {
	RecordingsDir string
	// RecordFormat fills format fields the gateway leaves at zero.
	RecordFormat audio.Format
	// EchoSampleRate resamples echoed audio; 0 echoes at the input rate.
	EchoSampleRate int
	Finalizer      *Finalizer
	Logger         *logrus.Logger
}

type Server struct {
	livecallpb.UnimplementedLiveCallServer

	opts Options
	log  *logrus.Logger
	wg   sync.WaitGroup

	mu         sync.Mutex
	recordings []RecordingSummary
}

func NewServer(opts Options) *Server {
	if opts.RecordingsDir == "" {
		opts.RecordingsDir = "recordings"
	}
	if opts.RecordFormat == (audio.Format{}) {
		opts.RecordFormat = audio.Format{SampleRate: 16000, SampleWidthBits: 16, NumChannels: 1}
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{opts: opts, log: log}
}

// NewGRPCServer builds a grpc.Server serving LiveCall and the standard
// health service.
func NewGRPCServer(s *Server, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.ForceServerCodec(livecallpb.Codec{})}, opts...)
	g := grpc.NewServer(opts...)
	livecallpb.RegisterLiveCallServer(g, s)

	hs := health.NewServer()
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(livecallpb.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(g, hs)
	return g, hs
}

func (s *Server) StreamCall(stream grpc.BidiStreamingServer[livecallpb.ClientRequest, livecallpb.ServerResponse]) error {
	log := logrus.NewEntry(s.log)
	var rec *recording
	defer func() {
		if rec != nil {
			s.finish(log, rec)
		}
	}()

	for {
		req, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Info("gateway closed stream")
			return nil
		}
		if err != nil {
			if status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled) {
				log.Info("stream canceled")
				return nil
			}
			log.WithError(err).Warn("stream receive failed")
			return err
		}
		if !req.Status {
			log.Debug("ignoring request with status=false")
			continue
		}

		switch {
		case req.InitialInfo != nil:
			info := req.InitialInfo
			log = log.WithFields(logrus.Fields{"call_id": info.CallID, "tenant_id": info.WorkspaceID})
			if rec != nil {
				log.Warn("duplicate initial info ignored")
				continue
			}
			rec, err = openRecording(s.opts.RecordingsDir, info.CallID, s.opts.RecordFormat)
			if err != nil {
				log.WithError(err).Error("cannot open recording")
				continue
			}
			log.WithFields(logrus.Fields{
				"customer_phone": info.CustomerPhoneNumber,
				"type_call":      info.TypeCall,
				"env":            info.Environment,
				"path":           rec.path,
			}).Info("call started")

		case req.PlayAudio != nil:
			fr, err := s.frame(req.PlayAudio)
			if err != nil {
				log.WithError(err).Warn("dropping invalid audio")
				continue
			}
			if rec == nil {
				log.Warn("audio before initial info, not recorded")
			} else if err := rec.write(fr); err != nil {
				log.WithError(err).Warn("recording write failed")
			}
			out, err := s.echoFrame(fr)
			if err != nil {
				log.WithError(err).Warn("echo resample failed, chunk skipped")
				continue
			}
			if err := s.send(stream, out); err != nil {
				log.WithError(err).Warn("echo failed")
				return err
			}

		case req.Disconnect != nil:
			log.Info("disconnect received")
			return nil

		default:
			log.Debug("empty request ignored")
		}
	}
}

func (s *Server) frame(pa *livecallpb.PlayAudio) (audio.Frame, error) {
	f := s.opts.RecordFormat
	if pa.SampleRate > 0 {
		f.SampleRate = int(pa.SampleRate)
	}
	if pa.SampleWidth > 0 {
		f.SampleWidthBits = int(pa.SampleWidth)
	}
	if pa.NumChannels > 0 {
		f.NumChannels = int(pa.NumChannels)
	}
	content, err := base64.StdEncoding.DecodeString(pa.AudioContent)
	if err != nil {
		return audio.Frame{}, err
	}
	fr := audio.Frame{Format: f, Content: content}
	return fr, fr.Validate()
}

// echoFrame converts fr to ECHO_SAMPLE_RATE when one is set.
func (s *Server) echoFrame(fr audio.Frame) (audio.Frame, error) {
	rate := s.opts.EchoSampleRate
	if rate <= 0 || rate == fr.Format.SampleRate {
		return fr, nil
	}
	pcm, err := audio.ResamplePCM16(fr.Content, fr.Format, rate)
	if err != nil {
		return audio.Frame{}, err
	}
	return audio.Frame{Format: audio.Format{SampleRate: rate, SampleWidthBits: 16, NumChannels: 1}, Content: pcm}, nil
}

func (s *Server) send(stream grpc.BidiStreamingServer[livecallpb.ClientRequest, livecallpb.ServerResponse], fr audio.Frame) error {
	return stream.Send(&livecallpb.ServerResponse{
		Status: true,
		AudioOutput: &livecallpb.ServerAudioChunk{
			SampleRate:   int32(fr.Format.SampleRate),
			SampleWidth:  int32(fr.Format.SampleWidthBits),
			NumChannels:  int32(fr.Format.NumChannels),
			Duration:     float32(fr.Seconds()),
			AudioContent: base64.StdEncoding.EncodeToString(fr.Content),
		},
	})
}

func (s *Server) finish(log *logrus.Entry, rec *recording) {
	sum, err := rec.close()
	if err != nil {
		log.WithError(err).Error("recording close failed")
	}
	log.WithFields(logrus.Fields{
		"path":     sum.Path,
		"bytes":    sum.Bytes,
		"duration": sum.Duration.String(),
	}).Info("recording saved")

	s.mu.Lock()
	s.recordings = append(s.recordings, sum)
	s.mu.Unlock()

	if s.opts.Finalizer == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
		defer cancel()
		if _, err := s.opts.Finalizer.Finalize(ctx, sum); err != nil {
			log.WithError(err).Error("recording finalize failed")
		}
	}()
}

// Recordings lists the recordings closed so far.
func (s *Server) Recordings() []RecordingSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordingSummary(nil), s.recordings...)
}

// Wait blocks until pending finalizers return.
func (s *Server) Wait() { s.wg.Wait() }
