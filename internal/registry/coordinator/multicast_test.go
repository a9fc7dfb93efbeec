package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"regcast/internal/metadata"
	"regcast/internal/registry/models"
	"regcast/internal/registry/ports"
	memorystore "regcast/internal/registry/store/memory"
	dErrors "regcast/pkg/domain-errors"
)

// gaugeMessenger tracks the peak number of concurrent publishes.
type gaugeMessenger struct {
	inflight atomic.Int64
	peak     atomic.Int64
	delay    time.Duration
}

func (m *gaugeMessenger) Publish(ctx context.Context, _ string, _ []byte) error {
	cur := m.inflight.Add(1)
	defer m.inflight.Add(-1)
	for {
		prev := m.peak.Load()
		if cur <= prev || m.peak.CompareAndSwap(prev, cur) {
			break
		}
	}
	select {
	case <-time.After(m.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stuckMessenger never returns until the attempt context expires.
type stuckMessenger struct{}

func (stuckMessenger) Publish(ctx context.Context, _ string, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

// flakyMessenger fails a fixed number of times per address, then succeeds.
type flakyMessenger struct {
	mu       sync.Mutex
	failures int
	attempts map[string]int
}

func (m *flakyMessenger) Publish(_ context.Context, address string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attempts == nil {
		m.attempts = make(map[string]int)
	}
	m.attempts[address]++
	if m.attempts[address] <= m.failures {
		return errors.New("broker unavailable")
	}
	return nil
}

// resolutionFailingStore makes target resolution fail.
type resolutionFailingStore struct {
	ports.RegistryStore
}

func (resolutionFailingStore) List(context.Context, *ports.ListHint) ([]models.Identity, error) {
	return nil, errors.New("store down")
}

type MulticastSuite struct {
	suite.Suite
	ctx context.Context
}

func TestMulticastSuite(t *testing.T) {
	suite.Run(t, new(MulticastSuite))
}

func (s *MulticastSuite) SetupTest() {
	s.ctx = context.Background()
}

// newCoordinator builds a coordinator over a fresh memory store populated
// with n identities, delivering through the given messenger.
func (s *MulticastSuite) newCoordinator(cfg Config, messenger ports.Messenger, n int) *Coordinator {
	if cfg.EvictionInterval == 0 {
		cfg.EvictionInterval = time.Hour
	}
	coord, err := New(cfg, memorystore.New(), messenger)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = coord.Close() })

	for i := range n {
		_, err := coord.Register(s.ctx, models.RegisterRequest{
			ID:       fmt.Sprintf("svc-%03d", i),
			Metadata: metadata.Map{"idx": metadata.Int(int64(i))},
		})
		s.Require().NoError(err)
	}
	return coord
}

func (s *MulticastSuite) TestEmptyTargetSet() {
	coord := s.newCoordinator(Config{}, newRecordingMessenger(), 0)

	report, err := coord.Multicast(s.ctx, nil, []byte("x"), models.MulticastOptions{})
	s.Require().NoError(err)
	s.Equal(0, report.Targets)
	s.Empty(report.Results)
	s.NotEmpty(report.OperationID)
}

func (s *MulticastSuite) TestDeliversToEveryTarget() {
	messenger := newRecordingMessenger()
	coord := s.newCoordinator(Config{}, messenger, 20)

	report, err := coord.Multicast(s.ctx, nil, []byte("payload"), models.MulticastOptions{})
	s.Require().NoError(err)
	s.Equal(20, report.Targets)
	s.Equal(20, report.Delivered)
	s.Equal(report.Targets, report.Delivered+report.Failed+report.TimedOut)
	s.Equal(20, messenger.total())

	for _, res := range report.Results {
		s.Equal(models.DeliveryDelivered, res.Status)
		s.Equal(1, res.Attempts)
	}
}

func (s *MulticastSuite) TestConcurrencyBound() {
	messenger := &gaugeMessenger{delay: 10 * time.Millisecond}
	coord := s.newCoordinator(Config{MaxConcurrency: 5}, messenger, 100)

	report, err := coord.Multicast(s.ctx, nil, []byte("x"), models.MulticastOptions{})
	s.Require().NoError(err)
	s.Equal(100, report.Delivered)
	s.LessOrEqual(messenger.peak.Load(), int64(5), "in-flight deliveries must respect the pool")
}

func (s *MulticastSuite) TestPerCallConcurrencyCeiling() {
	messenger := &gaugeMessenger{delay: 10 * time.Millisecond}
	coord := s.newCoordinator(Config{MaxConcurrency: 64}, messenger, 50)

	report, err := coord.Multicast(s.ctx, nil, []byte("x"), models.MulticastOptions{MaxConcurrency: 3})
	s.Require().NoError(err)
	s.Equal(50, report.Delivered)
	s.LessOrEqual(messenger.peak.Load(), int64(3))
}

func (s *MulticastSuite) TestAllFailuresIsStillASuccessfulCall() {
	messenger := newRecordingMessenger()
	messenger.failWith = errors.New("broker down")
	coord := s.newCoordinator(Config{RetryAttempts: -1}, messenger, 10)

	report, err := coord.Multicast(s.ctx, nil, []byte("x"), models.MulticastOptions{})
	s.Require().NoError(err, "per-target failures never fail the call")
	s.Equal(10, report.Targets)
	s.Equal(0, report.Delivered)
	s.Equal(10, report.Failed)
	for _, res := range report.Results {
		s.Equal(models.DeliveryFailed, res.Status)
		s.Error(res.Err)
	}
}

func (s *MulticastSuite) TestRetriesEventuallySucceed() {
	messenger := &flakyMessenger{failures: 2}
	coord := s.newCoordinator(Config{RetryBackoff: time.Millisecond}, messenger, 5)

	report, err := coord.Multicast(s.ctx, nil, []byte("x"), models.MulticastOptions{RetryAttempts: 2})
	s.Require().NoError(err)
	s.Equal(5, report.Delivered)
	for _, res := range report.Results {
		s.Equal(3, res.Attempts, "two retries after the first attempt")
	}
}

func (s *MulticastSuite) TestRetriesExhausted() {
	messenger := &flakyMessenger{failures: 5}
	coord := s.newCoordinator(Config{RetryBackoff: time.Millisecond}, messenger, 1)

	report, err := coord.Multicast(s.ctx, nil, []byte("x"), models.MulticastOptions{RetryAttempts: 1})
	s.Require().NoError(err)
	s.Equal(1, report.Failed)
	s.Equal(2, report.Results[0].Attempts)
}

func (s *MulticastSuite) TestSlowTargetsTimeOut() {
	coord := s.newCoordinator(Config{RetryAttempts: -1}, stuckMessenger{}, 4)

	report, err := coord.Multicast(s.ctx, nil, []byte("x"), models.MulticastOptions{
		PerTargetTimeout: 20 * time.Millisecond,
	})
	s.Require().NoError(err)
	s.Equal(4, report.TimedOut)
	s.Equal(0, report.Delivered)
	for _, res := range report.Results {
		s.Equal(models.DeliveryTimedOut, res.Status)
	}
}

func (s *MulticastSuite) TestOverallDeadline() {
	// One slot, stuck deliveries: the deadline must cut the whole
	// operation short and report the stragglers timed out.
	coord := s.newCoordinator(Config{RetryAttempts: -1}, stuckMessenger{}, 10)

	start := time.Now()
	report, err := coord.Multicast(s.ctx, nil, []byte("x"), models.MulticastOptions{
		MaxConcurrency:   1,
		PerTargetTimeout: time.Minute,
		Deadline:         50 * time.Millisecond,
	})
	s.Require().NoError(err)
	s.Less(time.Since(start), 5*time.Second, "multicast must not hang")
	s.Equal(10, report.Targets)
	s.Equal(10, report.TimedOut)
	s.Equal(report.Targets, len(report.Results))
}

func (s *MulticastSuite) TestCallerCancellation() {
	coord := s.newCoordinator(Config{RetryAttempts: -1}, stuckMessenger{}, 8)

	ctx, cancel := context.WithCancel(s.ctx)
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	report, err := coord.Multicast(ctx, nil, []byte("x"), models.MulticastOptions{
		PerTargetTimeout: time.Minute,
	})
	s.Require().NoError(err)
	s.Equal(8, report.TimedOut)
}

func (s *MulticastSuite) TestResolutionFailure() {
	coord, err := New(Config{EvictionInterval: time.Hour}, memorystore.New(), newRecordingMessenger())
	s.Require().NoError(err)
	defer coord.Close()
	coord.store = resolutionFailingStore{}

	_, err = coord.Multicast(s.ctx, nil, []byte("x"), models.MulticastOptions{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}
