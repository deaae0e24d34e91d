package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/condobill/condobill/internal/domain/bill"
	"github.com/condobill/condobill/internal/testutil"
	"github.com/condobill/condobill/internal/types"
)

// testServiceParams wires a ServiceParams over the suite's in-memory
// store so service tests construct services the same way production does.
func testServiceParams(s *testutil.BaseServiceTestSuite) ServiceParams {
	return NewServiceParams(s.GetLogger(), s.GetConfig(), s.GetClock(), s.GetStore(), s.GetRepos(), nil)
}

func mustDate(t *testing.T, iso string) time.Time {
	t.Helper()
	d, err := types.ParseISODate(iso)
	if err != nil {
		t.Fatalf("bad date %s: %v", iso, err)
	}
	return d
}

func TestComputeAccrual(t *testing.T) {
	rate := decimal.RequireFromString("0.05")
	due := mustDate(t, "2025-08-10")

	t.Run("compounds per full month late", func(t *testing.T) {
		// 2000.00 at 5% monthly: one month 100.00, two 205.00, three 315.25
		assert.Equal(t, int64(10000), computeAccrual(200000, 0, 0, 0, rate, due, mustDate(t, "2025-09-10")))
		assert.Equal(t, int64(20500), computeAccrual(200000, 0, 0, 0, rate, due, mustDate(t, "2025-10-10")))
		assert.Equal(t, int64(31525), computeAccrual(200000, 0, 0, 0, rate, due, mustDate(t, "2025-11-10")))
	})

	t.Run("nothing accrues inside thirty days", func(t *testing.T) {
		assert.Equal(t, int64(0), computeAccrual(200000, 0, 0, 0, rate, due, mustDate(t, "2025-08-10")))
		assert.Equal(t, int64(0), computeAccrual(200000, 0, 0, 0, rate, due, mustDate(t, "2025-09-08")))
	})

	t.Run("freezes once the base is fully paid", func(t *testing.T) {
		got := computeAccrual(200000, 200000, 20500, 0, rate, due, mustDate(t, "2026-05-10"))
		assert.Equal(t, int64(20500), got)
	})

	t.Run("accrues only on the unpaid base", func(t *testing.T) {
		// 500.00 unpaid for three months: 500 * 0.157625 = 78.81
		got := computeAccrual(200000, 150000, 0, 0, rate, due, mustDate(t, "2025-11-10"))
		assert.Equal(t, int64(7881), got)
	})

	t.Run("never reports less than what was paid toward it", func(t *testing.T) {
		got := computeAccrual(200000, 199999, 10000, 4000, rate, due, mustDate(t, "2025-09-10"))
		assert.Equal(t, int64(4000), got)
	})

	t.Run("before the due date owes only what was paid", func(t *testing.T) {
		got := computeAccrual(200000, 0, 0, 0, rate, due, mustDate(t, "2025-07-01"))
		assert.Equal(t, int64(0), got)
	})
}

type PenaltyServiceSuite struct {
	testutil.BaseServiceTestSuite
	service PenaltyService
}

func TestPenaltyService(t *testing.T) {
	suite.Run(t, new(PenaltyServiceSuite))
}

func (s *PenaltyServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewPenaltyService(testServiceParams(&s.BaseServiceTestSuite))
}

func (s *PenaltyServiceSuite) seedPeriod(module types.BillingModule, periodID string, charges map[string]int64) {
	seedBillPeriod(&s.BaseServiceTestSuite, module, periodID, "2025-08-10", charges)
}

func (s *PenaltyServiceSuite) TestRefreshPeriodCompoundsThreeMonths() {
	s.seedPeriod(types.ModuleWaterBills, "2026-00", map[string]int64{"101": 200000})
	asOf := mustDate(s.T(), "2025-11-10")

	p, rev, err := s.GetRepos().Bill.GetPeriod(s.GetContext(), types.ModuleWaterBills, "2026-00")
	s.Require().NoError(err)
	updated, err := s.service.RefreshPeriod(s.GetContext(), p, rev, asOf)
	s.NoError(err)
	s.Equal(1, updated)

	p, _, err = s.GetRepos().Bill.GetPeriod(s.GetContext(), types.ModuleWaterBills, "2026-00")
	s.Require().NoError(err)
	u := p.Units["101"]
	s.Equal(int64(31525), u.PenaltyAmount)
	s.Equal(int64(231525), u.TotalAmount)
	s.Equal(types.BillStatusUnpaid, u.Status)
	s.Require().NotNil(u.LastPenaltyUpdate)
	s.Equal("2025-11-10", types.FormatISODate(*u.LastPenaltyUpdate))
}

func (s *PenaltyServiceSuite) TestRefreshPeriodIsIdempotentForSameDate() {
	s.seedPeriod(types.ModuleWaterBills, "2026-00", map[string]int64{"101": 200000, "102": 80000})
	asOf := mustDate(s.T(), "2025-10-10")

	p, rev, err := s.GetRepos().Bill.GetPeriod(s.GetContext(), types.ModuleWaterBills, "2026-00")
	s.Require().NoError(err)
	updated, err := s.service.RefreshPeriod(s.GetContext(), p, rev, asOf)
	s.Require().NoError(err)
	s.Equal(2, updated)

	p, rev, err = s.GetRepos().Bill.GetPeriod(s.GetContext(), types.ModuleWaterBills, "2026-00")
	s.Require().NoError(err)
	updated, err = s.service.RefreshPeriod(s.GetContext(), p, rev, asOf)
	s.NoError(err)
	s.Equal(0, updated)
}

func (s *PenaltyServiceSuite) TestRefreshLeavesPaidUnitsAlone() {
	s.seedPeriod(types.ModuleWaterBills, "2026-00", map[string]int64{"101": 200000})

	// settle the base before any penalty accrues
	p, _, err := s.GetRepos().Bill.GetPeriod(s.GetContext(), types.ModuleWaterBills, "2026-00")
	s.Require().NoError(err)
	u := p.Units["101"]
	u.BasePaid = u.CurrentCharge
	u.Recalculate()
	s.Require().NoError(s.GetRepos().Bill.ForceSetPeriod(s.GetContext(), p))

	p, rev, err := s.GetRepos().Bill.GetPeriod(s.GetContext(), types.ModuleWaterBills, "2026-00")
	s.Require().NoError(err)
	updated, err := s.service.RefreshPeriod(s.GetContext(), p, rev, mustDate(s.T(), "2026-02-10"))
	s.NoError(err)
	s.Equal(0, updated)
}

func (s *PenaltyServiceSuite) TestRefreshAllCoversBothModules() {
	s.seedPeriod(types.ModuleWaterBills, "2026-00", map[string]int64{"101": 200000})
	s.seedPeriod(types.ModuleHOADues, "2026-Q1", map[string]int64{"101": 500000})

	total, err := s.service.RefreshAll(s.GetContext(), mustDate(s.T(), "2025-09-10"))
	s.NoError(err)
	s.Equal(2, total)

	p, _, err := s.GetRepos().Bill.GetPeriod(s.GetContext(), types.ModuleHOADues, "2026-Q1")
	s.Require().NoError(err)
	s.Equal(int64(25000), p.Units["101"].PenaltyAmount)
}

func (s *PenaltyServiceSuite) TestRefreshModuleUpdatesEveryStalePeriod() {
	s.seedPeriod(types.ModuleWaterBills, "2026-00", map[string]int64{"101": 200000, "102": 80000})
	s.seedPeriod(types.ModuleWaterBills, "2026-01", map[string]int64{"101": 80000})
	s.seedPeriod(types.ModuleWaterBills, "2026-02", map[string]int64{"101": 40000})

	total, err := s.service.RefreshModule(s.GetContext(), types.ModuleWaterBills, mustDate(s.T(), "2025-11-10"))
	s.NoError(err)
	s.Equal(4, total)

	// three months at 5%: factor 0.157625 on each unpaid base
	p, _, err := s.GetRepos().Bill.GetPeriod(s.GetContext(), types.ModuleWaterBills, "2026-00")
	s.Require().NoError(err)
	s.Equal(int64(31525), p.Units["101"].PenaltyAmount)
	s.Equal(int64(12610), p.Units["102"].PenaltyAmount)

	p, _, err = s.GetRepos().Bill.GetPeriod(s.GetContext(), types.ModuleWaterBills, "2026-02")
	s.Require().NoError(err)
	s.Equal(int64(6305), p.Units["101"].PenaltyAmount)
	s.Equal(int64(46305), p.Units["101"].TotalAmount)
}

func (s *PenaltyServiceSuite) TestRefreshModuleSkipsCurrentPeriods() {
	s.seedPeriod(types.ModuleWaterBills, "2026-00", map[string]int64{"101": 200000})

	total, err := s.service.RefreshModule(s.GetContext(), types.ModuleWaterBills, mustDate(s.T(), "2025-08-20"))
	s.NoError(err)
	s.Equal(0, total)
}

func (s *PenaltyServiceSuite) TestAccrualDelegatesToStoredSnapshot() {
	u := &bill.UnitBill{CurrentCharge: 200000, Status: types.BillStatusUnpaid, TotalAmount: 200000}
	snapshot := bill.ConfigSnapshot{PenaltyRate: decimal.RequireFromString("0.10")}
	got := s.service.Accrual(u, snapshot, mustDate(s.T(), "2025-08-10"), mustDate(s.T(), "2025-10-10"))
	// 2000.00 at 10% for two months: 2000 * 0.21 = 420.00
	s.Equal(int64(42000), got)
}
