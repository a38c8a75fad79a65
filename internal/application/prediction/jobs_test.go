package prediction

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ache-predictor/internal/domain/prediction"
	apperrors "github.com/turtacn/ache-predictor/pkg/errors"
)

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]prediction.Job
}

func newMemJobStore() *memJobStore { return &memJobStore{jobs: map[string]prediction.Job{}} }

func (s *memJobStore) Put(_ context.Context, job *prediction.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memJobStore) Get(_ context.Context, id string) (*prediction.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeJobNotFound, "job not found")
	}
	return &j, nil
}

type MockJobPublisher struct {
	mock.Mock
}

func (m *MockJobPublisher) PublishRequest(ctx context.Context, req *prediction.JobRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *MockJobPublisher) PublishCompleted(ctx context.Context, ev *prediction.JobCompleted) error {
	return m.Called(ctx, ev).Error(0)
}

func newJobService(t *testing.T, f *fixture, pub prediction.JobPublisher) (JobService, *memJobStore) {
	t.Helper()
	store := newMemJobStore()
	js, err := NewJobService(f.service(t, nil), store, pub, 0, nil, nil)
	require.NoError(t, err)
	return js, store
}

func TestJobService_SubmitAndHandle(t *testing.T) {
	f := newFixture(t, true, true)
	pub := new(MockJobPublisher)
	var queued *prediction.JobRequest
	pub.On("PublishRequest", mock.Anything, mock.AnythingOfType("*prediction.JobRequest")).
		Run(func(args mock.Arguments) { queued = args.Get(1).(*prediction.JobRequest) }).
		Return(nil)
	pub.On("PublishCompleted", mock.Anything, mock.MatchedBy(func(ev *prediction.JobCompleted) bool {
		return ev.Status == prediction.JobSucceeded && ev.RunID != ""
	})).Return(nil)

	js, _ := newJobService(t, f, pub)
	ctx := context.Background()

	job, err := js.Submit(ctx, "input.txt", []byte("CCO\tmol1\nCCN\tmol2\n"), "req-1")
	require.NoError(t, err)
	assert.Equal(t, prediction.JobPending, job.Status)
	assert.Equal(t, 2, job.MoleculeCount)
	require.NotNil(t, queued)
	assert.Equal(t, job.ID, queued.JobID)
	assert.Equal(t, "req-1", queued.RequestID)

	require.NoError(t, js.Handle(ctx, queued))

	done, err := js.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, prediction.JobSucceeded, done.Status)
	assert.Equal(t, 1, done.Attempts)
	assert.NotEmpty(t, done.RunID)
	pub.AssertExpectations(t)

	// Redelivery of a finished job is a no-op.
	require.NoError(t, js.Handle(ctx, queued))
	pub.AssertNumberOfCalls(t, "PublishCompleted", 1)
}

func TestJobService_SubmitRejectsBadInput(t *testing.T) {
	f := newFixture(t, true, true)
	pub := new(MockJobPublisher)
	js, _ := newJobService(t, f, pub)

	_, err := js.Submit(context.Background(), "bad.txt", []byte("no tabs here\n"), "")
	se, ok := AsStageError(err)
	require.True(t, ok)
	assert.Equal(t, prediction.StageIngest, se.Stage)
	pub.AssertNotCalled(t, "PublishRequest", mock.Anything, mock.Anything)
}

func TestJobService_PublishFailureMarksJobFailed(t *testing.T) {
	f := newFixture(t, true, true)
	pub := new(MockJobPublisher)
	pub.On("PublishRequest", mock.Anything, mock.Anything).Return(errors.New("broker unavailable"))
	js, store := newJobService(t, f, pub)

	_, err := js.Submit(context.Background(), "input.txt", []byte("CCO\tmol1\n"), "")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeJobPublishFailed))

	require.Len(t, store.jobs, 1)
	for _, j := range store.jobs {
		assert.Equal(t, prediction.JobFailed, j.Status)
		assert.Equal(t, string(apperrors.ErrCodeJobPublishFailed), j.ErrorCode)
	}
}

func TestJobService_HandlePipelineFailure(t *testing.T) {
	f := newFixture(t, false, true)
	pub := new(MockJobPublisher)
	pub.On("PublishCompleted", mock.Anything, mock.Anything).Return(nil)
	js, store := newJobService(t, f, pub)

	job := prediction.NewJob("input.txt", 1)
	require.NoError(t, store.Put(context.Background(), job))

	err := js.Handle(context.Background(), &prediction.JobRequest{JobID: job.ID, Payload: []byte("CCO\tmol1\n")})
	require.NoError(t, err, "pipeline failures complete the job instead of retrying")

	got, err := js.Status(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, prediction.JobFailed, got.Status)
	assert.Equal(t, string(apperrors.ErrCodeModelMissing), got.ErrorCode)
	assert.Contains(t, got.Error, "acetylcholinesterase_model.pkl")
}

func TestJobService_HandleExpiredStatus(t *testing.T) {
	f := newFixture(t, true, true)
	js, _ := newJobService(t, f, nil)

	require.NoError(t, js.Handle(context.Background(), &prediction.JobRequest{JobID: "gone", Payload: []byte("CCO\tmol1\n")}))
	got, err := js.Status(context.Background(), "gone")
	require.NoError(t, err)
	assert.Equal(t, prediction.JobSucceeded, got.Status)
}

func TestJobService_SubmitWithoutPublisher(t *testing.T) {
	f := newFixture(t, true, true)
	js, _ := newJobService(t, f, nil)
	_, err := js.Submit(context.Background(), "input.txt", []byte("CCO\tmol1\n"), "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeFeatureDisabled))
}

func TestJobService_HandleRejectsEmptyRequest(t *testing.T) {
	f := newFixture(t, true, true)
	js, _ := newJobService(t, f, nil)
	err := js.Handle(context.Background(), &prediction.JobRequest{})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeJobPayload))
}

type fakeLocker struct {
	held     map[string]bool
	released int
}

func (l *fakeLocker) TryClaim(_ context.Context, jobID string) (func(), bool, error) {
	if l.held[jobID] {
		return nil, false, nil
	}
	l.held[jobID] = true
	return func() { l.released++; delete(l.held, jobID) }, true, nil
}

func TestJobService_HandleSkipsClaimedJob(t *testing.T) {
	f := newFixture(t, true, true)
	store := newMemJobStore()
	locker := &fakeLocker{held: map[string]bool{"busy": true}}
	js, err := NewJobService(f.service(t, nil), store, nil, 0, nil, nil, WithJobLocker(locker))
	require.NoError(t, err)

	job := prediction.NewJob("input.txt", 1)
	job.ID = "busy"
	require.NoError(t, store.Put(context.Background(), job))

	require.NoError(t, js.Handle(context.Background(), &prediction.JobRequest{JobID: "busy", Payload: []byte("CCO\tmol1\n")}))
	got, _ := store.Get(context.Background(), "busy")
	assert.Equal(t, prediction.JobPending, got.Status)
	assert.EqualValues(t, 0, f.padel.calls.Load())

	require.NoError(t, js.Handle(context.Background(), &prediction.JobRequest{JobID: "free", Payload: []byte("CCO\tmol1\n")}))
	assert.Equal(t, 1, locker.released)
}

//Personal.AI order the ending
