package orders

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/testutil"
)

type StoreSuite struct {
	testutil.DBSuite
	store *Store
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.DBSuite.SetupSuite()
	s.store = NewStore(slog.Default())
}

func (s *StoreSuite) insert(messageID string) string {
	id, inserted, err := s.store.Insert(s.Ctx, s.DB(), &Order{
		Source:    "refusjon",
		MessageID: messageID,
		Payload:   []byte(`{}`),
	})
	s.Require().NoError(err)
	s.Require().True(inserted)
	return id
}

func (s *StoreSuite) TestInsert_DuplicateMessageReturnsExistingID() {
	first := s.insert("msg-1")

	id, inserted, err := s.store.Insert(s.Ctx, s.DB(), &Order{
		Source:    "refusjon",
		MessageID: "msg-1",
		Payload:   []byte(`{"other":true}`),
	})
	s.Require().NoError(err)
	s.False(inserted)
	s.Equal(first, id)

	n, err := s.store.CountUnprocessed(s.Ctx, s.DB())
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *StoreSuite) TestClaim_SkipLockedPartitionsOrders() {
	a := s.insert("msg-a")
	b := s.insert("msg-b")

	tx1, err := s.DB().BeginTx(s.Ctx, nil)
	s.Require().NoError(err)
	defer func() { _ = tx1.Rollback() }()
	tx2, err := s.DB().BeginTx(s.Ctx, nil)
	s.Require().NoError(err)
	defer func() { _ = tx2.Rollback() }()
	tx3, err := s.DB().BeginTx(s.Ctx, nil)
	s.Require().NoError(err)
	defer func() { _ = tx3.Rollback() }()

	o1, err := s.store.ClaimNextUnprocessed(s.Ctx, tx1)
	s.Require().NoError(err)
	s.Require().NotNil(o1)
	o2, err := s.store.ClaimNextUnprocessed(s.Ctx, tx2)
	s.Require().NoError(err)
	s.Require().NotNil(o2)

	s.Equal(a, o1.ID, "oldest first")
	s.Equal(b, o2.ID)

	o3, err := s.store.ClaimNextUnprocessed(s.Ctx, tx3)
	s.Require().NoError(err)
	s.Nil(o3, "all unprocessed orders are locked")

	s.Require().NoError(tx1.Rollback())
	o3, err = s.store.ClaimNextUnprocessed(s.Ctx, tx3)
	s.Require().NoError(err)
	s.Require().NotNil(o3)
	s.Equal(a, o3.ID, "released by rollback")
}

func (s *StoreSuite) TestMarkProcessed_OnlyOnce() {
	id := s.insert("msg-1")

	ok, err := s.store.MarkProcessed(s.Ctx, s.DB(), id)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.MarkProcessed(s.Ctx, s.DB(), id)
	s.Require().NoError(err)
	s.False(ok)

	order, err := s.store.Get(s.Ctx, s.DB(), id)
	s.Require().NoError(err)
	s.True(order.Processed())

	tx, err := s.DB().BeginTx(s.Ctx, nil)
	s.Require().NoError(err)
	defer func() { _ = tx.Rollback() }()
	claimed, err := s.store.ClaimNextUnprocessed(s.Ctx, tx)
	s.Require().NoError(err)
	s.Nil(claimed)
}
