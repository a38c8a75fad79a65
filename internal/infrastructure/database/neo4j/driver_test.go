package neo4j

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ache-predictor/internal/config"
	"github.com/turtacn/ache-predictor/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/ache-predictor/pkg/errors"
)

type MockDriver struct {
	mock.Mock
}

func (m *MockDriver) VerifyConnectivity(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
func (m *MockDriver) NewSession(ctx context.Context, cfg neo4j.SessionConfig) internalSession {
	return m.Called(ctx, cfg).Get(0).(internalSession)
}
func (m *MockDriver) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockSession hands tx to the work function.
type MockSession struct {
	mock.Mock
	tx Transaction
}

func (m *MockSession) ExecuteRead(ctx context.Context, work func(Transaction) (any, error)) (any, error) {
	return work(m.tx)
}
func (m *MockSession) ExecuteWrite(ctx context.Context, work func(Transaction) (any, error)) (any, error) {
	return work(m.tx)
}
func (m *MockSession) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type stubTransaction struct {
	result Result
	err    error
}

func (s *stubTransaction) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return s.result, s.err
}

type stubResult struct {
	records []*neo4j.Record
	pos     int
}

func (r *stubResult) Next(ctx context.Context) bool {
	if r.pos < len(r.records) {
		r.pos++
		return true
	}
	return false
}
func (r *stubResult) Record() *neo4j.Record { return r.records[r.pos-1] }
func (r *stubResult) Err() error            { return nil }
func (r *stubResult) Consume(ctx context.Context) (neo4j.ResultSummary, error) {
	return nil, nil
}

func healthyResult() *stubResult {
	return &stubResult{records: []*neo4j.Record{{Keys: []string{"health"}, Values: []any{int64(1)}}}}
}

func TestDriver_HealthCheck(t *testing.T) {
	md := new(MockDriver)
	session := &MockSession{tx: &stubTransaction{result: healthyResult()}}
	md.On("VerifyConnectivity", mock.Anything).Return(nil)
	md.On("NewSession", mock.Anything, mock.MatchedBy(func(c neo4j.SessionConfig) bool {
		return c.DatabaseName == config.DefaultNeo4jDatabase && c.AccessMode == neo4j.AccessModeRead
	})).Return(session)
	session.On("Close", mock.Anything).Return(nil)

	d := newDriver(md, config.Neo4jConfig{}, logging.NewNopLogger())
	require.NoError(t, d.HealthCheck(context.Background()))
	md.AssertExpectations(t)
	session.AssertExpectations(t)
}

func TestDriver_HealthCheck_Unreachable(t *testing.T) {
	md := new(MockDriver)
	md.On("VerifyConnectivity", mock.Anything).Return(errors.New("connection refused"))

	d := newDriver(md, config.Neo4jConfig{}, nil)
	err := d.HealthCheck(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabaseError))
	md.AssertNotCalled(t, "NewSession", mock.Anything, mock.Anything)
}

func TestDriver_ExecuteWrite_WrapsFailure(t *testing.T) {
	md := new(MockDriver)
	session := &MockSession{tx: &stubTransaction{err: errors.New("constraint violated")}}
	md.On("NewSession", mock.Anything, mock.MatchedBy(func(c neo4j.SessionConfig) bool {
		return c.DatabaseName == "provenance" && c.AccessMode == neo4j.AccessModeWrite
	})).Return(session)
	session.On("Close", mock.Anything).Return(nil)

	d := newDriver(md, config.Neo4jConfig{Database: "provenance"}, nil)
	_, err := d.ExecuteWrite(context.Background(), func(tx Transaction) (any, error) {
		return tx.Run(context.Background(), "CREATE (n)", nil)
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabaseError))
}

func TestDriver_CloseOnce(t *testing.T) {
	md := new(MockDriver)
	md.On("Close", mock.Anything).Return(nil).Once()

	d := newDriver(md, config.Neo4jConfig{}, nil)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	md.AssertNumberOfCalls(t, "Close", 1)
}

func TestCollectRecords(t *testing.T) {
	res := &stubResult{records: []*neo4j.Record{
		{Keys: []string{"id"}, Values: []any{"a"}},
		{Keys: []string{"id"}, Values: []any{"b"}},
	}}
	ids, err := CollectRecords(context.Background(), res, func(r *neo4j.Record) (string, error) {
		return r.Values[0].(string), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestExtractSingleRecord_Empty(t *testing.T) {
	_, err := ExtractSingleRecord(context.Background(), &stubResult{}, func(r *neo4j.Record) (string, error) {
		return "", nil
	})
	assert.True(t, apperrors.IsNotFound(err))
}

//Personal.AI order the ending
