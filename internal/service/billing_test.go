package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/condobill/condobill/internal/api/dto"
	"github.com/condobill/condobill/internal/docstore"
	"github.com/condobill/condobill/internal/domain/billingconfig"
	ierr "github.com/condobill/condobill/internal/errors"
	"github.com/condobill/condobill/internal/testutil"
	"github.com/condobill/condobill/internal/types"
)

type BillingServiceSuite struct {
	testutil.BaseServiceTestSuite
	billing  BillingService
	readings ReadingService
}

func TestBillingService(t *testing.T) {
	suite.Run(t, new(BillingServiceSuite))
}

func (s *BillingServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	params := testServiceParams(&s.BaseServiceTestSuite)
	s.billing = NewBillingService(params)
	s.readings = NewReadingService(params)
}

func (s *BillingServiceSuite) seedConfig(module types.BillingModule, cfg *billingconfig.Config) {
	path := docstore.BillingConfigPath(s.ClientID(), module)
	s.Require().NoError(s.GetStore().Set(s.GetContext(), path, cfg, docstore.SetOptions{}))
}

func (s *BillingServiceSuite) waterConfig() *billingconfig.Config {
	return &billingconfig.Config{
		RatePerM3:        2500,
		CarWashRate:      5000,
		PenaltyRate:      decimal.RequireFromString("0.05"),
		GraceDays:        30,
		Currency:         "MXN",
		FiscalStartMonth: 7,
		Units:            []string{"101", "102", "103"},
		MeterOrder:       []string{"103", "101", "102"},
	}
}

func (s *BillingServiceSuite) submitReadings(periodID string, units map[string]dto.ReadingEntryRequest) {
	_, err := s.readings.SubmitReadings(s.GetContext(), &dto.SubmitReadingsRequest{
		Module:      types.ModuleWaterBills,
		PeriodID:    periodID,
		ReadingDate: "2025-07-05",
		Units:       units,
	})
	s.Require().NoError(err)
}

func (s *BillingServiceSuite) generate(module types.BillingModule, periodID string, force bool) (*dto.GenerateBillsResponse, error) {
	return s.billing.GenerateBills(s.GetContext(), &dto.GenerateBillsRequest{
		Module:   module,
		PeriodID: periodID,
		BillDate: "2025-07-10",
		Force:    force,
	})
}

func (s *BillingServiceSuite) TestGenerateWaterBillsFromReadings() {
	s.seedConfig(types.ModuleWaterBills, s.waterConfig())
	s.submitReadings("2026-00", map[string]dto.ReadingEntryRequest{
		"101": {Reading: 120, CarWashCount: 1},
		"102": {Reading: 85},
		"103": {Reading: 40},
	})

	resp, err := s.generate(types.ModuleWaterBills, "2026-00", false)
	s.Require().NoError(err)

	s.Equal("2025-08-09", resp.DueDate)
	s.Empty(resp.UnitsSkipped)
	s.Require().Len(resp.UnitsBilled, 3)
	// sorted by unit id; first period starts every meter at zero
	s.Equal("101", resp.UnitsBilled[0].UnitID)
	s.Equal(int64(120), resp.UnitsBilled[0].Consumption)
	s.Equal(int64(120*2500+5000), resp.UnitsBilled[0].CurrentCharge)
	s.Equal(int64(85*2500), resp.UnitsBilled[1].CurrentCharge)
	s.Equal(int64(40*2500), resp.UnitsBilled[2].CurrentCharge)
	s.Equal(resp.UnitsBilled[0].CurrentCharge+resp.UnitsBilled[1].CurrentCharge+resp.UnitsBilled[2].CurrentCharge, resp.TotalBilled)

	p, err := s.billing.GetPeriod(s.GetContext(), types.ModuleWaterBills, "2026-00")
	s.Require().NoError(err)
	s.Equal("2025-07-05", p.ReadingDate)
	s.Equal(int64(2500), p.ConfigSnapshot.RatePerM3)
	s.True(p.ConfigSnapshot.PenaltyRate.Equal(decimal.RequireFromString("0.05")))
	s.Equal(types.BillStatusUnpaid, p.Units["101"].Status)
}

func (s *BillingServiceSuite) TestPriorReadingsComeFromPreviousPeriod() {
	s.seedConfig(types.ModuleWaterBills, s.waterConfig())
	s.submitReadings("2026-00", map[string]dto.ReadingEntryRequest{
		"101": {Reading: 120}, "102": {Reading: 85}, "103": {Reading: 40},
	})
	_, err := s.generate(types.ModuleWaterBills, "2026-00", false)
	s.Require().NoError(err)

	s.submitReadings("2026-01", map[string]dto.ReadingEntryRequest{
		"101": {Reading: 150}, "102": {Reading: 90}, "103": {Reading: 40},
	})
	resp, err := s.generate(types.ModuleWaterBills, "2026-01", false)
	s.Require().NoError(err)

	s.Equal(int64(30), resp.UnitsBilled[0].Consumption)
	s.Equal(int64(30*2500), resp.UnitsBilled[0].CurrentCharge)

	p, err := s.billing.GetPeriod(s.GetContext(), types.ModuleWaterBills, "2026-01")
	s.Require().NoError(err)
	s.Equal(int64(120), p.Units["101"].PriorReading)
	// an unchanged meter bills zero
	s.Equal(int64(0), p.Units["103"].CurrentCharge)
}

func (s *BillingServiceSuite) TestNegativeConsumptionFlagsForReview() {
	s.seedConfig(types.ModuleWaterBills, s.waterConfig())
	s.submitReadings("2026-00", map[string]dto.ReadingEntryRequest{
		"101": {Reading: 120}, "102": {Reading: 85}, "103": {Reading: 40},
	})
	_, err := s.generate(types.ModuleWaterBills, "2026-00", false)
	s.Require().NoError(err)

	s.submitReadings("2026-01", map[string]dto.ReadingEntryRequest{
		"101": {Reading: 100}, "102": {Reading: 90}, "103": {Reading: 45},
	})
	resp, err := s.generate(types.ModuleWaterBills, "2026-01", false)
	s.Require().NoError(err)

	flagged := resp.UnitsBilled[0]
	s.Equal("101", flagged.UnitID)
	s.True(flagged.NeedsReview)
	s.Equal(int64(0), flagged.Consumption)
	s.Equal(int64(0), flagged.CurrentCharge)

	// the rest of the period bills normally
	s.Equal(int64(5*2500), resp.UnitsBilled[1].CurrentCharge)

	entries, err := s.GetRepos().AuditLog.List(s.GetContext())
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(AuditActionNegativeReading, entries[0].Action)
}

func (s *BillingServiceSuite) TestGenerateWithoutReadingsRejected() {
	s.seedConfig(types.ModuleWaterBills, s.waterConfig())

	_, err := s.generate(types.ModuleWaterBills, "2026-00", false)
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *BillingServiceSuite) TestUnitWithoutReadingIsSkipped() {
	s.seedConfig(types.ModuleWaterBills, s.waterConfig())
	s.submitReadings("2026-00", map[string]dto.ReadingEntryRequest{
		"101": {Reading: 120},
	})

	resp, err := s.generate(types.ModuleWaterBills, "2026-00", false)
	s.Require().NoError(err)
	s.Len(resp.UnitsBilled, 1)
	s.Equal([]string{"102", "103"}, resp.UnitsSkipped)
}

func (s *BillingServiceSuite) TestRegenerationRequiresForce() {
	s.seedConfig(types.ModuleWaterBills, s.waterConfig())
	s.submitReadings("2026-00", map[string]dto.ReadingEntryRequest{
		"101": {Reading: 120}, "102": {Reading: 85}, "103": {Reading: 40},
	})
	_, err := s.generate(types.ModuleWaterBills, "2026-00", false)
	s.Require().NoError(err)

	_, err = s.generate(types.ModuleWaterBills, "2026-00", false)
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *BillingServiceSuite) TestForcedRegenerationDiscardsPaymentsAndAudits() {
	s.seedConfig(types.ModuleWaterBills, s.waterConfig())
	s.submitReadings("2026-00", map[string]dto.ReadingEntryRequest{
		"101": {Reading: 120}, "102": {Reading: 85}, "103": {Reading: 40},
	})
	_, err := s.generate(types.ModuleWaterBills, "2026-00", false)
	s.Require().NoError(err)

	payments := NewPaymentService(testServiceParams(&s.BaseServiceTestSuite))
	s.GetClock().SetNow(time.Date(2025, time.July, 15, 18, 0, 0, 0, time.UTC))
	_, err = payments.RecordPayment(s.GetContext(), &dto.RecordPaymentRequest{
		Module: types.ModuleWaterBills,
		UnitID: "102",
		Amount: "500.00",
	})
	s.Require().NoError(err)

	resp, err := s.generate(types.ModuleWaterBills, "2026-00", true)
	s.Require().NoError(err)
	s.True(resp.Forced)

	p, err := s.billing.GetPeriod(s.GetContext(), types.ModuleWaterBills, "2026-00")
	s.Require().NoError(err)
	s.Equal(int64(0), p.Units["102"].BasePaid)
	s.Empty(p.Units["102"].Payments)

	entries, err := s.GetRepos().AuditLog.List(s.GetContext())
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(AuditActionForceRegenerate, entries[0].Action)
}

func (s *BillingServiceSuite) TestSnapshotIgnoresLaterConfigChanges() {
	s.seedConfig(types.ModuleWaterBills, s.waterConfig())
	s.submitReadings("2026-00", map[string]dto.ReadingEntryRequest{
		"101": {Reading: 120}, "102": {Reading: 85}, "103": {Reading: 40},
	})
	_, err := s.generate(types.ModuleWaterBills, "2026-00", false)
	s.Require().NoError(err)

	raised := s.waterConfig()
	raised.RatePerM3 = 4000
	s.seedConfig(types.ModuleWaterBills, raised)

	s.submitReadings("2026-01", map[string]dto.ReadingEntryRequest{
		"101": {Reading: 130}, "102": {Reading: 95}, "103": {Reading: 50},
	})
	_, err = s.generate(types.ModuleWaterBills, "2026-01", false)
	s.Require().NoError(err)

	old, err := s.billing.GetPeriod(s.GetContext(), types.ModuleWaterBills, "2026-00")
	s.Require().NoError(err)
	s.Equal(int64(2500), old.ConfigSnapshot.RatePerM3)

	fresh, err := s.billing.GetPeriod(s.GetContext(), types.ModuleWaterBills, "2026-01")
	s.Require().NoError(err)
	s.Equal(int64(4000), fresh.ConfigSnapshot.RatePerM3)
	s.Equal(int64(10*4000), fresh.Units["101"].CurrentCharge)
}

func (s *BillingServiceSuite) TestQuarterlyDuesGeneration() {
	s.seedConfig(types.ModuleHOADues, &billingconfig.Config{
		PenaltyRate:      decimal.RequireFromString("0.05"),
		GraceDays:        30,
		Currency:         "MXN",
		FiscalStartMonth: 7,
		Units:            []string{"101", "102"},
		QuarterlyDues:    map[string]int64{"101": 500000, "102": 450000},
	})

	resp, err := s.generate(types.ModuleHOADues, "2026-Q1", false)
	s.Require().NoError(err)
	s.Equal(int64(950000), resp.TotalBilled)
	s.Equal(int64(500000), resp.UnitsBilled[0].CurrentCharge)
}

func (s *BillingServiceSuite) TestQuarterlyDuesMissingUnitRejected() {
	s.seedConfig(types.ModuleHOADues, &billingconfig.Config{
		PenaltyRate:      decimal.RequireFromString("0.05"),
		GraceDays:        30,
		Currency:         "MXN",
		FiscalStartMonth: 7,
		Units:            []string{"101", "103"},
		QuarterlyDues:    map[string]int64{"101": 500000},
	})

	_, err := s.generate(types.ModuleHOADues, "2026-Q1", false)
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *BillingServiceSuite) TestReadingsImmutableOnceBilled() {
	s.seedConfig(types.ModuleWaterBills, s.waterConfig())
	s.submitReadings("2026-00", map[string]dto.ReadingEntryRequest{
		"101": {Reading: 120}, "102": {Reading: 85}, "103": {Reading: 40},
	})
	_, err := s.generate(types.ModuleWaterBills, "2026-00", false)
	s.Require().NoError(err)

	_, err = s.readings.SubmitReadings(s.GetContext(), &dto.SubmitReadingsRequest{
		Module:      types.ModuleWaterBills,
		PeriodID:    "2026-00",
		ReadingDate: "2025-07-06",
		Units:       map[string]dto.ReadingEntryRequest{"101": {Reading: 125}},
	})
	s.Error(err)
	s.True(ierr.IsAlreadyExists(err))
}

func (s *BillingServiceSuite) TestReadingsRejectedForUnmeteredModule() {
	_, err := s.readings.SubmitReadings(s.GetContext(), &dto.SubmitReadingsRequest{
		Module:      types.ModuleHOADues,
		PeriodID:    "2026-00",
		ReadingDate: "2025-07-05",
		Units:       map[string]dto.ReadingEntryRequest{"101": {Reading: 10}},
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}
