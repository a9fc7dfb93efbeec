//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	kafkalog "regcast/internal/registry/durability/kafka"
	"regcast/internal/registry/models"
	"regcast/pkg/testutil/containers"
)

const testTopic = "regcast.changes.test"

type KafkaLogSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
	log      *kafkalog.Log
	ctx      context.Context
}

func TestKafkaLogSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaLogSuite))
}

func (s *KafkaLogSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redpanda = containers.NewRedpandaContainer(s.T(),
		kgo.ConsumeTopics(testTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(s.redpanda.CreateTopic(s.ctx, testTopic))
	s.log = kafkalog.New(s.redpanda.Client, testTopic)
}

func (s *KafkaLogSuite) TestAppendProducesKeyedRecords() {
	events := []models.ChangeEvent{
		{EventID: "ev-1", Kind: models.ChangeRegistered, Identity: "svc-a", At: time.Now().UTC()},
		{EventID: "ev-2", Kind: models.ChangeReplaced, Identity: "svc-a", At: time.Now().UTC()},
		{EventID: "ev-3", Kind: models.ChangeUnregistered, Identity: "svc-b", At: time.Now().UTC()},
	}
	for _, ev := range events {
		s.Require().NoError(s.log.Append(s.ctx, ev))
	}

	consumed := make([]models.ChangeEvent, 0, len(events))
	deadline := time.Now().Add(30 * time.Second)
	for len(consumed) < len(events) && time.Now().Before(deadline) {
		fetchCtx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		fetches := s.redpanda.Client.PollFetches(fetchCtx)
		cancel()

		fetches.EachRecord(func(record *kgo.Record) {
			var ev models.ChangeEvent
			s.Require().NoError(json.Unmarshal(record.Value, &ev))
			s.Equal(ev.Identity, string(record.Key), "records are keyed by identity")
			consumed = append(consumed, ev)
		})
	}

	s.Require().Len(consumed, len(events))
	for i, ev := range events {
		s.Equal(ev.EventID, consumed[i].EventID)
		s.Equal(ev.Kind, consumed[i].Kind)
	}
}
