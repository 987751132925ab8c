package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/homemic/sleep-server/internal/audio"
	"github.com/homemic/sleep-server/pkg/queue"
	"github.com/homemic/sleep-server/pkg/storage"
)

// ClipProcessor moves spooled audio clips to S3 and records the object key.
type ClipProcessor struct {
	clips  *audio.Repository
	s3     *storage.S3
	queue  *queue.Queue
	logger *zap.Logger
}

// NewClipProcessor creates a clip upload processor.
func NewClipProcessor(clips *audio.Repository, s3 *storage.S3, q *queue.Queue, logger *zap.Logger) *ClipProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClipProcessor{clips: clips, s3: s3, queue: q, logger: logger}
}

// Process executes one clip upload job.
func (p *ClipProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeClipUpload {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ClipUploadPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	clip, err := p.clips.GetByID(ctx, payload.ClipID)
	if err != nil {
		return fmt.Errorf("clip not found: %s", payload.ClipID)
	}
	if clip.Uploaded {
		p.logger.Info("clip already uploaded", zap.String("clip_id", clip.ID.String()))
		return nil
	}

	f, err := os.Open(payload.LocalPath)
	if err != nil {
		return fmt.Errorf("open spooled clip: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat spooled clip: %w", err)
	}

	key := storage.ClipKey(payload.SessionID.String(), payload.ClipID.String())
	if _, err := p.s3.Upload(ctx, key, "audio/wav", f, info.Size()); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	if err := p.clips.MarkUploaded(ctx, payload.ClipID, key); err != nil {
		return fmt.Errorf("update db: %w", err)
	}
	if err := os.Remove(payload.LocalPath); err != nil {
		p.logger.Warn("remove spooled clip", zap.Error(err), zap.String("path", payload.LocalPath))
	}

	p.logger.Info("clip upload completed", zap.String("clip_id", payload.ClipID.String()), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ClipProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("clip worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
