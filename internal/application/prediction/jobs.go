package prediction

import (
	"bytes"
	"context"
	"time"

	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/turtacn/ache-predictor/pkg/errors"
)

// JobService runs uploads in the background through the worker fleet.
type JobService interface {
	// Submit validates the upload, stores a pending job and queues it.
	Submit(ctx context.Context, name string, data []byte, requestID string) (*prediction.Job, error)
	Status(ctx context.Context, id string) (*prediction.Job, error)
	// Handle processes one queued request. A returned error means the
	// request should be retried; pipeline failures complete the job instead.
	Handle(ctx context.Context, req *prediction.JobRequest) error
}

type jobServiceImpl struct {
	predictor    Service
	store        prediction.JobStore
	publisher    prediction.JobPublisher
	locker       prediction.JobLocker
	maxMolecules int
	metrics      *prometheus.AppMetrics
	logger       logging.Logger
}

// JobOption configures a JobService.
type JobOption func(*jobServiceImpl)

// WithJobLocker makes Handle claim each job before running it.
func WithJobLocker(l prediction.JobLocker) JobOption {
	return func(s *jobServiceImpl) { s.locker = l }
}

// NewJobService creates a job service. publisher may be nil on the worker
// side when completion events are not wanted.
func NewJobService(predictor Service, store prediction.JobStore, publisher prediction.JobPublisher, maxMolecules int, metrics *prometheus.AppMetrics, logger logging.Logger, opts ...JobOption) (JobService, error) {
	if predictor == nil || store == nil {
		return nil, apperrors.New(apperrors.ErrCodeInternal, "job service requires a predictor and a job store")
	}
	if metrics == nil {
		metrics = prometheus.NewNoopAppMetrics()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &jobServiceImpl{
		predictor:    predictor,
		store:        store,
		publisher:    publisher,
		maxMolecules: maxMolecules,
		metrics:      metrics,
		logger:       logger.Named("jobs"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *jobServiceImpl) Submit(ctx context.Context, name string, data []byte, requestID string) (*prediction.Job, error) {
	if s.publisher == nil {
		return nil, apperrors.FeatureDisabled("async jobs")
	}
	mols, err := prediction.ParseMolecules(bytes.NewReader(data), s.maxMolecules)
	if err != nil {
		return nil, &StageError{Stage: prediction.StageIngest, Err: err}
	}

	job := prediction.NewJob(name, len(mols))
	if err := s.store.Put(ctx, job); err != nil {
		return nil, err
	}
	req := &prediction.JobRequest{
		JobID:      job.ID,
		InputName:  name,
		Payload:    data,
		RequestID:  requestID,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := s.publisher.PublishRequest(ctx, req); err != nil {
		job.ErrorCode = string(apperrors.ErrCodeJobPublishFailed)
		job.Error = "job could not be queued"
		_ = job.Transition(prediction.JobFailed)
		if perr := s.store.Put(context.WithoutCancel(ctx), job); perr != nil {
			s.logger.Warn("failed to mark unqueued job", logging.String("job_id", job.ID), logging.Err(perr))
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeJobPublishFailed, "job could not be queued")
	}
	s.metrics.JobsSubmittedTotal.WithLabelValues().Inc()
	s.logger.Info("job submitted", logging.String("job_id", job.ID), logging.Int("molecules", len(mols)))
	return job, nil
}

func (s *jobServiceImpl) Status(ctx context.Context, id string) (*prediction.Job, error) {
	if id == "" {
		return nil, apperrors.New(apperrors.ErrCodeBadRequest, "job id is required")
	}
	return s.store.Get(ctx, id)
}

func (s *jobServiceImpl) Handle(ctx context.Context, req *prediction.JobRequest) error {
	if req == nil || req.JobID == "" {
		return apperrors.New(apperrors.ErrCodeJobPayload, "job request has no id")
	}
	log := s.logger.With(logging.String("job_id", req.JobID))

	if s.locker != nil {
		release, ok, err := s.locker.TryClaim(ctx, req.JobID)
		if err != nil {
			return err
		}
		if !ok {
			// Another worker holds the job and still owns its message.
			log.Info("job claimed elsewhere, skipping")
			return nil
		}
		defer release()
	}

	job, err := s.store.Get(ctx, req.JobID)
	if apperrors.IsCode(err, apperrors.ErrCodeJobNotFound) {
		// The status entry expired; score the payload anyway and recreate it.
		job = prediction.NewJob(req.InputName, 0)
		job.ID = req.JobID
	} else if err != nil {
		return err
	}
	if job.Status.Terminal() {
		log.Info("skipping completed job", logging.String("status", string(job.Status)))
		return nil
	}
	job.Attempts++
	if err := job.Transition(prediction.JobRunning); err != nil {
		return err
	}
	if err := s.store.Put(ctx, job); err != nil {
		return err
	}

	start := time.Now()
	out, err := s.predictor.Predict(ctx, &PredictInput{
		Name:      req.InputName,
		Data:      bytes.NewReader(req.Payload),
		Source:    prediction.SourceJob,
		RequestID: req.RequestID,
	})
	if err != nil {
		se, ok := AsStageError(err)
		if !ok {
			return err
		}
		job.ErrorCode = string(se.Code())
		job.Error = se.Message()
		_ = job.Transition(prediction.JobFailed)
	} else {
		job.RunID = out.Run.ID
		job.MoleculeCount = out.Run.MoleculeCount
		job.DownloadURL = out.DownloadURL
		_ = job.Transition(prediction.JobSucceeded)
	}

	if err := s.store.Put(context.WithoutCancel(ctx), job); err != nil {
		return err
	}
	prometheus.RecordJob(s.metrics, string(job.Status), time.Since(start))
	log.Info("job finished", logging.String("status", string(job.Status)), logging.String("run_id", job.RunID))

	if s.publisher != nil {
		ev := &prediction.JobCompleted{
			JobID:       job.ID,
			Status:      job.Status,
			RunID:       job.RunID,
			DownloadURL: job.DownloadURL,
			ErrorCode:   job.ErrorCode,
			FinishedAt:  job.UpdatedAt,
		}
		if err := s.publisher.PublishCompleted(context.WithoutCancel(ctx), ev); err != nil {
			log.Warn("failed to publish completion", logging.Err(err))
		}
	}
	return nil
}

//Personal.AI order the ending
