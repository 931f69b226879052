//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/urban-comfort-index/internal/adapter/kafka"
	"github.com/couchcryptid/urban-comfort-index/internal/adapter/memstore"
	"github.com/couchcryptid/urban-comfort-index/internal/config"
	"github.com/couchcryptid/urban-comfort-index/internal/domain"
	"github.com/couchcryptid/urban-comfort-index/internal/observability"
	"github.com/couchcryptid/urban-comfort-index/internal/pipeline"
	"github.com/couchcryptid/urban-comfort-index/internal/scoring"
)

const (
	testSignalTopic = "test-signals"
	testScoreTopic  = "test-scores"
)

// scoreMessage holds a deserialized message read from the score topic.
type scoreMessage struct {
	Record  domain.ComfortIndexRecord
	Key     string
	Headers map[string]string
}

func readScore(ctx context.Context, t *testing.T, consumer *kafkago.Reader) scoreMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from score topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var rec domain.ComfortIndexRecord
	require.NoError(t, json.Unmarshal(msg.Value, &rec), "unmarshal score message")
	return scoreMessage{Record: rec, Key: string(msg.Key), Headers: headers}
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSignalTopic:   testSignalTopic,
		KafkaScoreTopic:    testScoreTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

func scoreConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testScoreTopic,
		GroupID:     fmt.Sprintf("test-scores-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func produce(ctx context.Context, t *testing.T, broker string, values ...[]byte) {
	t.Helper()
	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSignalTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, len(values))
	for i, v := range values {
		msgs[i] = kafkago.Message{Key: []byte(fmt.Sprintf("signal-%d", i)), Value: v}
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))
}

// TestKafkaReaderWriter verifies the adapter layer: a signal round-trips
// through kafka.Reader and a score round-trips through kafka.Writer.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSignalTopic)
	createTopic(t, broker, testScoreTopic)
	cfg := testConfig(broker, "test-reader")

	lines := loadSignalLines(t)
	humanLine := lines[2]
	produce(ctx, t, broker, humanLine)

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawMessage
	for len(batch) == 0 {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) == 0 && ctx.Err() != nil {
			t.Fatal("timed out waiting for message from signal topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("signal-0"), raw.Key)
	assert.Equal(t, humanLine, raw.Value)
	assert.Equal(t, testSignalTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	env, err := pipeline.NewTransformer(discardLogger()).Transform(ctx, raw)
	require.NoError(t, err)
	require.NotNil(t, env.Human)
	assert.Equal(t, "11110-515", env.UnitID())
	assert.Equal(t, "2024-03-26", env.Date())

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	rec := domain.ComfortIndexRecord{
		UnitID:      "11110-515",
		Date:        "2024-03-26",
		UCIScore:    47.25,
		UCIGrade:    domain.GradeC,
		WindowWeeks: 4,
		CreatedAt:   time.Date(2024, time.March, 27, 6, 0, 0, 0, time.UTC),
	}
	require.NoError(t, writer.PublishScores(ctx, []domain.ComfortIndexRecord{rec}))

	sm := readScore(ctx, t, scoreConsumer(t, broker))
	assert.Equal(t, "11110-515", sm.Key)
	assert.Equal(t, "11110-515", sm.Headers["unit_id"])
	assert.Equal(t, "C", sm.Headers["uci_grade"])
	assert.Equal(t, "2024-03-27T06:00:00Z", sm.Headers["computed_at"])
	assert.Equal(t, 47.25, sm.Record.UCIScore)
}

// runPipeline wires Reader -> Transformer -> StoreLoader with scores
// published through kafka.Writer, and runs it until the returned stop is
// called.
func runPipeline(ctx context.Context, t *testing.T, cfg *config.Config) (*memstore.Store, *observability.Metrics, func()) {
	t.Helper()
	store := memstore.New()
	metrics := observability.NewMetricsForTesting()

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	svc := scoring.NewService(store, writer, scoring.DefaultOptions(), discardLogger(), metrics)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	rescore := func(ctx context.Context, unitID, date string) error {
		return svc.RescoreAfterIngest(ctx, unitID, date, domain.MinWindowWeeks, true)
	}
	p := pipeline.New(reader, pipeline.NewTransformer(discardLogger()), pipeline.NewStoreLoader(store, discardLogger()), rescore, discardLogger(), metrics, 50)

	runCtx, stop := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(runCtx) }()

	return store, metrics, func() {
		stop()
		require.NoError(t, <-errCh)
	}
}

// TestPipelineEndToEnd publishes the signal fixture and verifies that
// signals land in storage and rescored units appear on the score topic.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSignalTopic)
	createTopic(t, broker, testScoreTopic)
	cfg := testConfig(broker, "test-pipeline")

	produce(ctx, t, broker, loadSignalLines(t)...)
	store, metrics, stop := runPipeline(ctx, t, cfg)

	// 11110-520 is never registered, so only 11110-515 is scored. A date
	// may be rescored more than once when its signals span batches.
	consumer := scoreConsumer(t, broker)
	latest := map[string]domain.ComfortIndexRecord{}
	for len(latest) < 2 {
		sm := readScore(ctx, t, consumer)
		assert.Equal(t, "11110-515", sm.Key)
		assert.Equal(t, string(sm.Record.UCIGrade), sm.Headers["uci_grade"])
		latest[sm.Record.Date] = sm.Record
	}
	assert.Contains(t, latest, "2024-03-26")
	assert.Contains(t, latest, "2024-03-27")

	// The invalid lines close the fixture; once they are counted and the
	// unregistered unit has been attempted, every batch is loaded.
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.TransformErrors) == 3 &&
			testutil.ToFloat64(metrics.ScoresComputed.WithLabelValues("unit_not_found")) == 1
	}, 30*time.Second, 100*time.Millisecond)
	stop()

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.SignalsIngested.WithLabelValues("human")))

	rec, err := store.FindScore(ctx, "11110-515", "2024-03-27")
	require.NoError(t, err)
	assert.Equal(t, domain.GradeFor(rec.UCIScore), rec.UCIGrade)
	assert.True(t, rec.UsePigeon)
	require.NotNil(t, rec.Components.Get(domain.SourcePigeon), "pigeon component")
}

// TestPipelineTransformError verifies that a poison pill is skipped and the
// pipeline keeps scoring the messages behind it.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSignalTopic)
	createTopic(t, broker, testScoreTopic)
	cfg := testConfig(broker, "test-poison")

	lines := loadSignalLines(t)
	produce(ctx, t, broker, []byte("not-json{{{"), lines[0], lines[2])
	_, metrics, stop := runPipeline(ctx, t, cfg)

	consumer := scoreConsumer(t, broker)
	sm := readScore(ctx, t, consumer)
	assert.Equal(t, "11110-515", sm.Key)
	assert.Equal(t, "2024-03-26", sm.Record.Date)

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on score topic")

	stop()
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TransformErrors))
}
