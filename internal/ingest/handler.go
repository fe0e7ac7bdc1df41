package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/neurobot/backend/internal/features"
	"github.com/neurobot/backend/internal/group"
	"github.com/neurobot/backend/internal/health"
	"github.com/neurobot/backend/internal/inference"
	"github.com/neurobot/backend/internal/metrics"
	"github.com/neurobot/backend/internal/record"
	"github.com/neurobot/backend/internal/ws"
)

var ErrValidation = errors.New("eeg field required (array of numbers)")

// Dependency names reported to the health tracker.
const (
	DepStorage   = "storage"
	DepInference = "inference"
	DepDatabase  = "database"
)

// BlobStore keeps the raw sample. An empty URL with a nil error means the
// sample was not stored.
type BlobStore interface {
	SampleKey() string
	PutSample(ctx context.Context, key string, body []byte) (string, error)
}

// MoodInferrer labels a feature summary. It never fails; degraded results
// are reported through sentinel labels.
type MoodInferrer interface {
	InferMood(ctx context.Context, f features.Summary) string
}

type Publisher interface {
	Publish(ctx context.Context, group string, ev ws.Event)
}

type Options struct {
	Group        string
	MaxBodyBytes int64
}

// Handler serves the ingest and record endpoints.
type Handler struct {
	blobs   BlobStore
	moods   MoodInferrer
	records record.Repository
	pub     Publisher
	opts    Options
	health  *health.Tracker
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewHandler(blobs BlobStore, moods MoodInferrer, records record.Repository, pub Publisher,
	opts Options, tracker *health.Tracker, m *metrics.Metrics, log *zap.Logger) *Handler {
	if opts.Group == "" {
		opts.Group = group.Live
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 8 << 20
	}
	return &Handler{
		blobs:   blobs,
		moods:   moods,
		records: records,
		pub:     pub,
		opts:    opts,
		health:  tracker,
		metrics: m,
		log:     log,
	}
}

// uploadRequest keeps elements as pointers so a null inside the array is
// rejected instead of decoding to zero.
type uploadRequest struct {
	EEG []*float64 `json:"eeg"`
}

func (r uploadRequest) samples() ([]float64, error) {
	if len(r.EEG) == 0 {
		return nil, ErrValidation
	}
	out := make([]float64, len(r.EEG))
	for i, v := range r.EEG {
		if v == nil {
			return nil, fmt.Errorf("%w: null at index %d", ErrValidation, i)
		}
		out[i] = *v
	}
	return out, nil
}

type rawSample struct {
	EEG []float64 `json:"eeg"`
}

type uploadResponse struct {
	ID       int64            `json:"id"`
	Mood     string           `json:"mood"`
	Features features.Summary `json:"features"`
	S3       *string          `json:"s3"`
}

// Result is the outcome of one processed sample.
type Result struct {
	Record *record.Record
	// Degraded is set when storage or inference failed and a sentinel was
	// used in its place.
	Degraded bool
}

// Upload handles POST /api/upload_eeg/.
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxBodyBytes)

	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.IngestRequest(metrics.OutcomeInvalid)
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": "request body too large"})
			return
		}
		h.reject(c, fmt.Errorf("%w: %v", ErrValidation, err))
		return
	}
	samples, err := req.samples()
	if err != nil {
		h.reject(c, err)
		return
	}

	res, err := h.Process(c.Request.Context(), samples)
	if errors.Is(err, ErrValidation) {
		h.reject(c, err)
		return
	}
	if err != nil {
		h.metrics.IngestRequest(metrics.OutcomeFailed)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to persist record"})
		return
	}

	if res.Degraded {
		h.metrics.IngestRequest(metrics.OutcomeDegraded)
	} else {
		h.metrics.IngestRequest(metrics.OutcomeOK)
	}
	rec := res.Record
	c.JSON(http.StatusOK, uploadResponse{
		ID:       rec.ID,
		Mood:     rec.Mood,
		Features: rec.Features,
		S3:       rec.RawDataURL,
	})
}

func (h *Handler) reject(c *gin.Context, err error) {
	h.metrics.IngestRequest(metrics.OutcomeInvalid)
	h.log.Debug("upload rejected", zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"detail": ErrValidation.Error()})
}

// Process runs the pipeline for one non-empty sample: features, raw upload,
// mood, persistence, then exactly one publish. Storage and inference
// failures degrade the result. A sample whose features overflow is rejected
// with ErrValidation before anything is stored; otherwise only a persistence
// failure is returned, and nothing is published in that case.
func (h *Handler) Process(ctx context.Context, samples []float64) (*Result, error) {
	if len(samples) == 0 {
		return nil, ErrValidation
	}
	summary := features.Compute(samples)
	if !summary.Finite() {
		return nil, fmt.Errorf("%w: features out of range", ErrValidation)
	}
	res := &Result{}

	rawURL, err := h.storeRaw(ctx, samples)
	if err != nil {
		res.Degraded = true
		h.health.RecordFailure(DepStorage, err)
		h.log.Warn("raw sample upload failed", zap.Error(err))
	} else {
		h.health.RecordSuccess(DepStorage)
	}

	mood := h.moods.InferMood(ctx, summary)
	if mood == inference.MoodError {
		res.Degraded = true
		h.health.RecordFailure(DepInference, errors.New("mood inference unavailable"))
	} else {
		h.health.RecordSuccess(DepInference)
	}

	rec := &record.Record{
		Features: summary,
		Mood:     inference.Clamp(mood),
	}
	if rawURL != "" {
		rec.RawDataURL = &rawURL
	}
	if err := h.records.Create(ctx, rec); err != nil {
		h.health.RecordFailure(DepDatabase, err)
		h.log.Error("record persist failed", zap.Error(err))
		return nil, fmt.Errorf("persist record: %w", err)
	}
	h.health.RecordSuccess(DepDatabase)
	res.Record = rec

	// The record exists now; its event goes out even if the caller has gone.
	h.pub.Publish(context.WithoutCancel(ctx), h.opts.Group, ws.NewEEGProcessed(rec.ID, rec.Features, rec.Mood))

	h.log.Info("eeg processed",
		zap.Int64("record", rec.ID),
		zap.Int("length", summary.Length),
		zap.String("mood", rec.Mood),
		zap.Bool("stored", rec.RawDataURL != nil))
	return res, nil
}

func (h *Handler) storeRaw(ctx context.Context, samples []float64) (string, error) {
	body, err := json.Marshal(rawSample{EEG: samples})
	if err != nil {
		return "", err
	}
	return h.blobs.PutSample(ctx, h.blobs.SampleKey(), body)
}

// GetRecord handles GET /api/records/:id.
func (h *Handler) GetRecord(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusNotFound, gin.H{"detail": "record not found"})
		return
	}

	rec, err := h.records.Get(c.Request.Context(), id)
	if errors.Is(err, record.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "record not found"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "failed to load record"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
