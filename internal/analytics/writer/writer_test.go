package writer

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/marketcore-backend/internal/analytics/types"
)

func TestNewWriterValidation(t *testing.T) {
	_, err := New(nil, Config{Table: "pipeline_events"})
	assert.Error(t, err)
	_, err = newWriter(&fakeInserter{}, Config{Table: " "})
	assert.Error(t, err)

	w, err := newWriter(&fakeInserter{}, Config{Table: "t", RetryPolicy: RetryPolicy{InitialBackoff: time.Second, MaximumBackoff: time.Millisecond}})
	require.NoError(t, err)
	assert.Equal(t, 1, w.batchSize)
	assert.Equal(t, defaultMaxAttempts, w.retry.MaxAttempts)
	assert.Equal(t, time.Second, w.retry.MaximumBackoff)
}

func TestPipelineTable(t *testing.T) {
	spec := PipelineTable("pipeline_events")
	assert.Equal(t, "pipeline_events", spec.Name)
	assert.Equal(t, "occurred_at", spec.PartitionField)
	assert.NotEmpty(t, spec.Schema)
}

func TestWriterRetriesOnTransientError(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{&googleapi.Error{Code: http.StatusServiceUnavailable}, nil}

	require.NoError(t, writer.InsertPipeline(context.Background(), types.PipelineEventRow{EventID: "1"}))
	require.Len(t, fake.calls, 2)
	assert.Equal(t, "pipeline_events", fake.calls[1].table)
	assert.Empty(t, writer.buffer)
}

func TestWriterStopsOnPermanentErrorAndKeepsRows(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	fake.responses = []error{&googleapi.Error{Code: http.StatusBadRequest}}

	err := writer.InsertPipeline(context.Background(), types.PipelineEventRow{EventID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempt 1")
	assert.Len(t, fake.calls, 1)
	assert.Len(t, writer.buffer, 1, "failed rows stay buffered")

	require.NoError(t, writer.Flush(context.Background()))
	assert.Len(t, fake.calls, 2)
	assert.Empty(t, writer.buffer)
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	unavailable := &googleapi.Error{Code: http.StatusServiceUnavailable}
	fake.responses = []error{unavailable, unavailable, unavailable, unavailable}

	require.Error(t, writer.InsertPipeline(context.Background(), types.PipelineEventRow{EventID: "1"}))
	assert.Len(t, fake.calls, defaultMaxAttempts)
}

func TestWriterHonoursCancellationBetweenAttempts(t *testing.T) {
	fake := &fakeInserter{responses: []error{&googleapi.Error{Code: http.StatusServiceUnavailable}}}
	writer, err := newWriter(fake, Config{Table: "pipeline_events", RetryPolicy: RetryPolicy{InitialBackoff: time.Hour}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, writer.InsertPipeline(ctx, types.PipelineEventRow{EventID: "1"}), context.DeadlineExceeded)
	assert.Len(t, fake.calls, 1)
}

func TestWriterBatching(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	writer.batchSize = 2

	require.NoError(t, writer.InsertPipeline(context.Background(), types.PipelineEventRow{EventID: "1"}))
	assert.Empty(t, fake.calls)

	require.NoError(t, writer.InsertPipeline(context.Background(), types.PipelineEventRow{EventID: "2"}))
	require.Len(t, fake.calls, 1)
	assert.Equal(t, 2, fake.calls[0].rowCount)
}

func TestWriterFlush(t *testing.T) {
	writer, fake := newWriterWithFakeInserter(t)
	writer.batchSize = 10
	require.NoError(t, writer.InsertPipeline(context.Background(), types.PipelineEventRow{EventID: "1"}))
	require.NoError(t, writer.Flush(context.Background()))
	assert.Len(t, fake.calls, 1)
	assert.Empty(t, writer.buffer)

	require.NoError(t, writer.Flush(context.Background()))
	assert.Len(t, fake.calls, 1, "empty flush is a no-op")
}

type insertCall struct {
	table    string
	rowCount int
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	i := len(f.calls)
	f.calls = append(f.calls, insertCall{table: table, rowCount: len(rows)})
	if i < len(f.responses) {
		return f.responses[i]
	}
	return nil
}

func newWriterWithFakeInserter(t *testing.T) (*BigQueryWriter, *fakeInserter) {
	t.Helper()
	fake := &fakeInserter{}
	writer, err := newWriter(fake, Config{
		Table:       "pipeline_events",
		RetryPolicy: RetryPolicy{InitialBackoff: time.Millisecond, MaximumBackoff: time.Millisecond},
	})
	require.NoError(t, err)
	return writer, fake
}
