package service

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/condobill/condobill/internal/api/dto"
	"github.com/condobill/condobill/internal/domain/credit"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/testutil"
	"github.com/condobill/condobill/internal/types"
)

type CreditServiceSuite struct {
	testutil.BaseServiceTestSuite
	service CreditService
}

func TestCreditService(t *testing.T) {
	suite.Run(t, new(CreditServiceSuite))
}

func (s *CreditServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewCreditService(testServiceParams(&s.BaseServiceTestSuite))
}

func (s *CreditServiceSuite) writeDoc(doc *credit.Document) {
	b := s.GetStore().Batch()
	s.GetRepos().Credit.QueueSet(s.GetContext(), b, doc, "")
	s.Require().NoError(b.Commit(s.GetContext()))
}

func (s *CreditServiceSuite) TestGetBalanceForUnknownUnitIsZero() {
	resp, err := s.service.GetBalance(s.GetContext(), &dto.GetCreditBalanceRequest{UnitID: "101"})
	s.Require().NoError(err)
	s.Equal(int64(0), resp.Balance)
	s.Empty(resp.History)
}

func (s *CreditServiceSuite) TestGetBalanceReturnsHistory() {
	s.writeDoc(&credit.Document{Units: map[string]*credit.UnitCredit{
		"101": {
			CreditBalance: 15000,
			History: []credit.HistoryEntry{
				{ID: "ch_1", Amount: 25000, Type: types.CreditEntryStartingBalance, BalanceAfter: 25000},
				{ID: "ch_2", Amount: -10000, Type: types.CreditEntryUsed, TransactionID: "txn_1", BalanceAfter: 15000},
			},
		},
	}})

	resp, err := s.service.GetBalance(s.GetContext(), &dto.GetCreditBalanceRequest{UnitID: "101"})
	s.Require().NoError(err)
	s.Equal(int64(15000), resp.Balance)
	s.Equal("150.00", resp.BalanceDisplay)
	s.Len(resp.History, 2)
}

func (s *CreditServiceSuite) TestGetBalanceRejectsInconsistentRecord() {
	s.writeDoc(&credit.Document{Units: map[string]*credit.UnitCredit{
		"101": {
			CreditBalance: 99999,
			History: []credit.HistoryEntry{
				{ID: "ch_1", Amount: 25000, Type: types.CreditEntryStartingBalance, BalanceAfter: 25000},
			},
		},
	}})

	_, err := s.service.GetBalance(s.GetContext(), &dto.GetCreditBalanceRequest{UnitID: "101"})
	s.Error(err)
	s.True(ierr.IsPermanent(err))
}

func (s *CreditServiceSuite) TestCheckInvariantsReportsWithoutCorrecting() {
	s.writeDoc(&credit.Document{Units: map[string]*credit.UnitCredit{
		"101": {
			CreditBalance: 25000,
			History: []credit.HistoryEntry{
				{ID: "ch_1", Amount: 25000, Type: types.CreditEntryStartingBalance, BalanceAfter: 25000},
			},
		},
		"102": {
			CreditBalance: 40000,
			History: []credit.HistoryEntry{
				{ID: "ch_2", Amount: 25000, Type: types.CreditEntryStartingBalance, BalanceAfter: 25000},
			},
		},
	}})

	mismatches, err := s.service.CheckInvariants(s.GetContext())
	s.Require().NoError(err)
	s.Require().Len(mismatches, 1)
	s.Equal("102", mismatches[0].UnitID)
	s.Equal(int64(40000), mismatches[0].Balance)
	s.Equal(int64(25000), mismatches[0].HistorySum)

	// the stored document is left as found
	doc, _, err := s.GetRepos().Credit.Get(s.GetContext())
	s.Require().NoError(err)
	s.Equal(int64(40000), doc.Units["102"].CreditBalance)
}

func (s *CreditServiceSuite) TestListBalancesCoversAllUnits() {
	s.writeDoc(&credit.Document{Units: map[string]*credit.UnitCredit{
		"101": {CreditBalance: 10000, History: []credit.HistoryEntry{
			{ID: "ch_1", Amount: 10000, Type: types.CreditEntryStartingBalance, BalanceAfter: 10000},
		}},
		"102": {History: []credit.HistoryEntry{}},
	}})

	balances, err := s.service.ListBalances(s.GetContext())
	s.Require().NoError(err)
	s.Len(balances, 2)
}

func (s *CreditServiceSuite) TestApplyCreditChangeRejectsOverdraft() {
	doc := &credit.Document{}
	err := applyCreditChange(doc, "101", -5000, types.CreditEntryUsed, "txn_1", "", s.GetClock().Now())
	s.Error(err)
	s.True(ierr.IsPermanent(err))
	s.Equal(int64(0), doc.Unit("101").CreditBalance)
}

func (s *CreditServiceSuite) TestApplyCreditChangeTracksLastChange() {
	doc := &credit.Document{}
	now := s.GetClock().Now()
	s.Require().NoError(applyCreditChange(doc, "101", 10000, types.CreditEntryAdded, "txn_1", "overpayment", now))
	s.Require().NoError(applyCreditChange(doc, "101", -4000, types.CreditEntryUsed, "txn_2", "", now))

	u := doc.Unit("101")
	s.Equal(int64(6000), u.CreditBalance)
	s.Require().NotNil(u.LastChange)
	s.Equal(1, u.LastChange.HistoryIndex)
	s.Equal(int64(6000), u.History[1].BalanceAfter)
	s.NoError(u.CheckInvariants())
}
