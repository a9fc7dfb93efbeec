package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"regcast/internal/filter"
	"regcast/internal/metadata"
	"regcast/internal/registry/models"
	"regcast/internal/registry/ports"
	"regcast/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) identity(id string, meta metadata.Map) models.Identity {
	return models.Identity{
		ID:           id,
		Address:      "regcast.identity." + id,
		Metadata:     meta,
		RegisteredAt: time.Now(),
	}
}

func (s *MemoryStoreSuite) TestPut() {
	s.Run("stores a new record", func() {
		err := s.store.Put(s.ctx, s.identity("svc-1", nil), false)
		s.Require().NoError(err)

		rec, ok, err := s.store.Get(s.ctx, "svc-1")
		s.Require().NoError(err)
		s.True(ok)
		s.Equal("svc-1", rec.ID)
	})

	s.Run("rejects a duplicate id", func() {
		s.Require().NoError(s.store.Put(s.ctx, s.identity("svc-dup", nil), false))

		err := s.store.Put(s.ctx, s.identity("svc-dup", nil), false)
		s.ErrorIs(err, sentinel.ErrDuplicate)
	})

	s.Run("replace supersedes the whole record", func() {
		s.Require().NoError(s.store.Put(s.ctx, s.identity("svc-rep", metadata.Map{"v": metadata.Int(1)}), false))
		s.Require().NoError(s.store.Put(s.ctx, s.identity("svc-rep", metadata.Map{"v": metadata.Int(2)}), true))

		rec, ok, err := s.store.Get(s.ctx, "svc-rep")
		s.Require().NoError(err)
		s.Require().True(ok)
		v, _ := rec.Metadata.Get("v")
		s.True(v.Equal(metadata.Int(2)))
	})
}

func (s *MemoryStoreSuite) TestGet() {
	s.Run("missing id reports not found without error", func() {
		_, ok, err := s.store.Get(s.ctx, "absent")
		s.Require().NoError(err)
		s.False(ok)
	})
}

func (s *MemoryStoreSuite) TestList() {
	s.Run("returns every record without a hint", func() {
		for i := range 5 {
			id := fmt.Sprintf("svc-%d", i)
			s.Require().NoError(s.store.Put(s.ctx, s.identity(id, nil), false))
		}

		records, err := s.store.List(s.ctx, nil)
		s.Require().NoError(err)
		s.Len(records, 5)
	})

	s.Run("filter hint narrows results", func() {
		s.Require().NoError(s.store.Put(s.ctx, s.identity("eu-1", metadata.Map{"region": metadata.String("eu")}), false))
		s.Require().NoError(s.store.Put(s.ctx, s.identity("us-1", metadata.Map{"region": metadata.String("us")}), false))

		hint := &ports.ListHint{Filter: filter.Equals("region", metadata.String("eu"))}
		records, err := s.store.List(s.ctx, hint)
		s.Require().NoError(err)
		s.Require().Len(records, 1)
		s.Equal("eu-1", records[0].ID)
	})
}

func (s *MemoryStoreSuite) TestDelete() {
	s.Run("removes an existing record", func() {
		s.Require().NoError(s.store.Put(s.ctx, s.identity("svc-del", nil), false))

		removed, err := s.store.Delete(s.ctx, "svc-del")
		s.Require().NoError(err)
		s.True(removed)

		_, ok, err := s.store.Get(s.ctx, "svc-del")
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("deleting an absent id is not an error", func() {
		removed, err := s.store.Delete(s.ctx, "absent")
		s.Require().NoError(err)
		s.False(removed)
	})
}

func (s *MemoryStoreSuite) TestCount() {
	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, count)

	s.Require().NoError(s.store.Put(s.ctx, s.identity("svc-a", nil), false))
	s.Require().NoError(s.store.Put(s.ctx, s.identity("svc-b", nil), false))

	count, err = s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *MemoryStoreSuite) TestConcurrentAccess() {
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("svc-%d", i)
			_ = s.store.Put(s.ctx, s.identity(id, nil), false)
			_, _, _ = s.store.Get(s.ctx, id)
			_, _ = s.store.List(s.ctx, nil)
		}()
	}
	wg.Wait()

	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(20, count)
}
