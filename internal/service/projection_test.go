package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/condobill/condobill/internal/api/dto"
	"github.com/condobill/condobill/internal/testutil"
	"github.com/condobill/condobill/internal/types"
)

type ProjectionServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  ProjectionService
	payments PaymentService
}

func TestProjectionService(t *testing.T) {
	suite.Run(t, new(ProjectionServiceSuite))
}

func (s *ProjectionServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := testServiceParams(&s.BaseServiceTestSuite)
	s.service = NewProjectionService(params)
	s.payments = NewPaymentService(params)
	s.GetClock().SetNow(time.Date(2025, time.August, 20, 18, 0, 0, 0, time.UTC))
}

func (s *ProjectionServiceSuite) TestRebuildFromBillPeriods() {
	seedBillPeriod(&s.BaseServiceTestSuite, types.ModuleWaterBills, "2026-00", "2025-08-10", map[string]int64{"101": 90000, "102": 50000})
	seedBillPeriod(&s.BaseServiceTestSuite, types.ModuleWaterBills, "2026-02", "2025-10-10", map[string]int64{"101": 70000})

	doc, err := s.service.Rebuild(s.GetContext(), types.ModuleWaterBills, 2026)
	s.Require().NoError(err)

	s.Equal(2026, doc.FiscalYear)
	s.Equal("2026-00", doc.Months[0].Period)
	s.Len(doc.Months[0].Units, 2)
	s.Equal("2026-02", doc.Months[2].Period)
	s.Nil(doc.Months[1].Units)

	// ten days past the 2025-08-10 due date
	july := doc.Months[0].Units["101"]
	s.Equal(int64(90000), july.UnpaidAmount)
	s.Equal(10, july.DaysPastDue)
}

func (s *ProjectionServiceSuite) TestGetAggregatedDataBuildsOnFirstRead() {
	seedBillPeriod(&s.BaseServiceTestSuite, types.ModuleWaterBills, "2026-00", "2025-08-10", map[string]int64{"101": 90000})

	resp, err := s.service.GetAggregatedData(s.GetContext(), &dto.GetAggregatedDataRequest{
		Module:     types.ModuleWaterBills,
		FiscalYear: 2026,
	})
	s.Require().NoError(err)
	s.Equal("2026-00", resp.Months[0].Period)

	// the build was persisted
	stored, err := s.GetRepos().Projection.Get(s.GetContext(), types.ModuleWaterBills, 2026)
	s.Require().NoError(err)
	s.Equal("2026-00", stored.Months[0].Period)
}

func (s *ProjectionServiceSuite) TestPaymentRefreshesStoredView() {
	seedBillPeriod(&s.BaseServiceTestSuite, types.ModuleWaterBills, "2026-00", "2025-08-10", map[string]int64{"101": 90000})
	_, err := s.service.Rebuild(s.GetContext(), types.ModuleWaterBills, 2026)
	s.Require().NoError(err)

	_, err = s.payments.RecordPayment(s.GetContext(), &dto.RecordPaymentRequest{
		Module: types.ModuleWaterBills,
		UnitID: "101",
		Amount: "900.00",
	})
	s.Require().NoError(err)

	// the distributor refreshes the touched month on commit; a plain read
	// already reflects the payment
	resp, err := s.service.GetAggregatedData(s.GetContext(), &dto.GetAggregatedDataRequest{
		Module:     types.ModuleWaterBills,
		FiscalYear: 2026,
	})
	s.Require().NoError(err)
	s.Equal(int64(90000), resp.Months[0].Units["101"].PaidAmount)
	s.Equal(types.BillStatusPaid, resp.Months[0].Units["101"].Status)
	s.Equal(0, resp.Months[0].Units["101"].DaysPastDue)
}

func (s *ProjectionServiceSuite) TestReversalRefreshesStoredView() {
	seedBillPeriod(&s.BaseServiceTestSuite, types.ModuleWaterBills, "2026-00", "2025-08-10", map[string]int64{"101": 90000})
	_, err := s.service.Rebuild(s.GetContext(), types.ModuleWaterBills, 2026)
	s.Require().NoError(err)

	paid, err := s.payments.RecordPayment(s.GetContext(), &dto.RecordPaymentRequest{
		Module: types.ModuleWaterBills,
		UnitID: "101",
		Amount: "900.00",
	})
	s.Require().NoError(err)
	_, err = s.payments.DeletePayment(s.GetContext(), &dto.DeletePaymentRequest{TransactionID: paid.TransactionID})
	s.Require().NoError(err)

	resp, err := s.service.GetAggregatedData(s.GetContext(), &dto.GetAggregatedDataRequest{
		Module:     types.ModuleWaterBills,
		FiscalYear: 2026,
	})
	s.Require().NoError(err)
	s.Equal(int64(0), resp.Months[0].Units["101"].PaidAmount)
	s.Equal(types.BillStatusUnpaid, resp.Months[0].Units["101"].Status)
}

func (s *ProjectionServiceSuite) TestForceRefreshRebuildsFromBills() {
	seedBillPeriod(&s.BaseServiceTestSuite, types.ModuleWaterBills, "2026-00", "2025-08-10", map[string]int64{"101": 90000})
	_, err := s.service.Rebuild(s.GetContext(), types.ModuleWaterBills, 2026)
	s.Require().NoError(err)

	// corrupt the stored view directly; the bills remain the truth
	doc, err := s.GetRepos().Projection.Get(s.GetContext(), types.ModuleWaterBills, 2026)
	s.Require().NoError(err)
	u := doc.Months[0].Units["101"]
	u.PaidAmount = 12345
	doc.Months[0].Units["101"] = u
	s.Require().NoError(s.GetRepos().Projection.Set(s.GetContext(), doc))

	stale, err := s.service.GetAggregatedData(s.GetContext(), &dto.GetAggregatedDataRequest{
		Module:     types.ModuleWaterBills,
		FiscalYear: 2026,
	})
	s.Require().NoError(err)
	s.Equal(int64(12345), stale.Months[0].Units["101"].PaidAmount)

	fresh, err := s.service.GetAggregatedData(s.GetContext(), &dto.GetAggregatedDataRequest{
		Module:       types.ModuleWaterBills,
		FiscalYear:   2026,
		ForceRefresh: true,
	})
	s.Require().NoError(err)
	s.Equal(int64(0), fresh.Months[0].Units["101"].PaidAmount)
	s.Equal(int64(90000), fresh.Months[0].Units["101"].UnpaidAmount)
}

func (s *ProjectionServiceSuite) TestRefreshForPeriodRewritesOnlyItsSlot() {
	seedBillPeriod(&s.BaseServiceTestSuite, types.ModuleWaterBills, "2026-00", "2025-08-10", map[string]int64{"101": 90000})
	seedBillPeriod(&s.BaseServiceTestSuite, types.ModuleWaterBills, "2026-01", "2025-09-10", map[string]int64{"101": 60000})
	_, err := s.service.Rebuild(s.GetContext(), types.ModuleWaterBills, 2026)
	s.Require().NoError(err)

	_, err = s.payments.RecordPayment(s.GetContext(), &dto.RecordPaymentRequest{
		Module: types.ModuleWaterBills,
		UnitID: "101",
		Amount: "900.00",
	})
	s.Require().NoError(err)

	p, _, err := s.GetRepos().Bill.GetPeriod(s.GetContext(), types.ModuleWaterBills, "2026-00")
	s.Require().NoError(err)
	s.Require().NoError(s.service.RefreshForPeriod(s.GetContext(), p))

	doc, err := s.GetRepos().Projection.Get(s.GetContext(), types.ModuleWaterBills, 2026)
	s.Require().NoError(err)
	s.Equal(int64(90000), doc.Months[0].Units["101"].PaidAmount)
	s.Equal(int64(0), doc.Months[1].Units["101"].PaidAmount)
	s.Equal("2026-01", doc.Months[1].Period)
}

func (s *ProjectionServiceSuite) TestRefreshForPeriodRebuildsWhenYearMissing() {
	seedBillPeriod(&s.BaseServiceTestSuite, types.ModuleWaterBills, "2026-00", "2025-08-10", map[string]int64{"101": 90000})

	p, _, err := s.GetRepos().Bill.GetPeriod(s.GetContext(), types.ModuleWaterBills, "2026-00")
	s.Require().NoError(err)
	s.Require().NoError(s.service.RefreshForPeriod(s.GetContext(), p))

	doc, err := s.GetRepos().Projection.Get(s.GetContext(), types.ModuleWaterBills, 2026)
	s.Require().NoError(err)
	s.Equal("2026-00", doc.Months[0].Period)
}

func (s *ProjectionServiceSuite) TestQuarterLandsOnFirstMonthOfQuarter() {
	seedBillPeriod(&s.BaseServiceTestSuite, types.ModuleHOADues, "2026-Q2", "2025-10-15", map[string]int64{"101": 500000})

	doc, err := s.service.Rebuild(s.GetContext(), types.ModuleHOADues, 2026)
	s.Require().NoError(err)
	s.Equal("2026-Q2", doc.Months[3].Period)
	s.Nil(doc.Months[0].Units)
	s.Nil(doc.Months[4].Units)
}
