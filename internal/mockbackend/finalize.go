package mockbackend

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/callbridge/internal/providers/stt"
	"github.com/yoockh/callbridge/internal/storage"
)

const wavHeaderSize = 44

// Finalizer post-processes closed recordings. Both steps are optional.
type Finalizer struct {
	Uploader    storage.Uploader
	Transcriber stt.Provider
	Language    string
	Logger      *logrus.Logger
}

// FinalizeResult reports what happened to one recording.
type FinalizeResult struct {
	Location   string
	Transcript stt.Transcript
}

func (f *Finalizer) Finalize(ctx context.Context, sum RecordingSummary) (FinalizeResult, error) {
	var res FinalizeResult
	log := f.logger().WithFields(logrus.Fields{"call_id": sum.CallID, "path": sum.Path})

	if f.Uploader != nil {
		loc, err := f.upload(ctx, sum)
		if err != nil {
			return res, err
		}
		res.Location = loc
		log.WithField("location", loc).Info("recording uploaded")
	}

	if f.Transcriber != nil && sum.Bytes > 0 {
		if sum.Format.SampleWidthBits != 16 || sum.Format.NumChannels != 1 {
			log.WithField("format", sum.Format.String()).Warn("skipping transcription of non mono pcm16 recording")
			return res, nil
		}
		pcm, err := readPCM(sum.Path)
		if err != nil {
			return res, err
		}
		t, err := f.Transcriber.Transcribe(ctx, pcm, sum.Format.SampleRate, f.Language)
		if err != nil {
			return res, fmt.Errorf("transcribe %s: %w", sum.CallID, err)
		}
		res.Transcript = t
		log.WithFields(logrus.Fields{
			"transcript": t.Text,
			"confidence": t.Confidence,
		}).Info("recording transcribed")
	}
	return res, nil
}

func (f *Finalizer) upload(ctx context.Context, sum RecordingSummary) (string, error) {
	file, err := os.Open(sum.Path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	return f.Uploader.Upload(ctx, filepath.Base(sum.Path), "audio/wav", file)
}

func (f *Finalizer) logger() *logrus.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return logrus.StandardLogger()
}

func readPCM(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if _, err := file.Seek(wavHeaderSize, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(file)
}
