package repositories

import (
	"context"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/mock"

	infraNeo4j "github.com/turtacn/ache-predictor/internal/infrastructure/database/neo4j"
)

// MockInfraDriver implements infraNeo4j.DriverInterface
type MockInfraDriver struct {
	mock.Mock
}

func (m *MockInfraDriver) ExecuteRead(ctx context.Context, work infraNeo4j.TransactionWork) (any, error) {
	args := m.Called(ctx, work)
	if fn, ok := args.Get(0).(func(context.Context, infraNeo4j.TransactionWork) (any, error)); ok {
		return fn(ctx, work)
	}
	return nil, args.Error(1)
}

func (m *MockInfraDriver) ExecuteWrite(ctx context.Context, work infraNeo4j.TransactionWork) (any, error) {
	args := m.Called(ctx, work)
	if fn, ok := args.Get(0).(func(context.Context, infraNeo4j.TransactionWork) (any, error)); ok {
		return fn(ctx, work)
	}
	return nil, args.Error(1)
}

func (m *MockInfraDriver) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockInfraDriver) Close() error {
	return m.Called().Error(0)
}

// MockInfraTransaction implements infraNeo4j.Transaction
type MockInfraTransaction struct {
	mock.Mock
}

func (m *MockInfraTransaction) Run(ctx context.Context, cypher string, params map[string]any) (infraNeo4j.Result, error) {
	args := m.Called(ctx, cypher, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(infraNeo4j.Result), args.Error(1)
}

// MockResult replays Records. Next peeks, Record advances.
type MockResult struct {
	Records []*neo4j.Record
	Current int
	Error   error
}

func (m *MockResult) Next(ctx context.Context) bool {
	return m.Current < len(m.Records)
}

func (m *MockResult) Record() *neo4j.Record {
	if m.Current < len(m.Records) {
		rec := m.Records[m.Current]
		m.Current++
		return rec
	}
	return nil
}

func (m *MockResult) Err() error { return m.Error }

func (m *MockResult) Consume(ctx context.Context) (neo4j.ResultSummary, error) {
	return nil, nil
}

func NewRecord(keys []string, values []any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

// SetupMockDriver routes ExecuteRead/ExecuteWrite to the returned transaction mock.
func SetupMockDriver(t *testing.T) (*MockInfraDriver, *MockInfraTransaction) {
	t.Helper()
	d := new(MockInfraDriver)
	tx := new(MockInfraTransaction)
	run := func(ctx context.Context, work infraNeo4j.TransactionWork) (any, error) {
		return work(tx)
	}
	d.On("ExecuteRead", mock.Anything, mock.Anything).Return(run, nil).Maybe()
	d.On("ExecuteWrite", mock.Anything, mock.Anything).Return(run, nil).Maybe()
	return d, tx
}

//Personal.AI order the ending
