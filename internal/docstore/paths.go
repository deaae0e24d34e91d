package docstore

import (
	"fmt"

	"github.com/condobill/condobill/internal/types"
)

// Logical document paths. Collections end at an even path depth; the final
// segment is the document id.

func projectSegment(module types.BillingModule) string {
	if module == types.ModuleHOADues {
		return "hoaDues"
	}
	return "waterBills"
}

// ReadingsPath locates a reading period document.
func ReadingsPath(clientID string, module types.BillingModule, periodID string) string {
	return fmt.Sprintf("clients/%s/projects/%s/readings/%s", clientID, projectSegment(module), periodID)
}

// BillsPath locates a bill period document.
func BillsPath(clientID string, module types.BillingModule, periodID string) string {
	return fmt.Sprintf("clients/%s/projects/%s/bills/%s", clientID, projectSegment(module), periodID)
}

// BillsPrefix is the listing prefix for all bill periods of a module.
func BillsPrefix(clientID string, module types.BillingModule) string {
	return fmt.Sprintf("clients/%s/projects/%s/bills/", clientID, projectSegment(module))
}

// AggregatedDataPath locates the per-fiscal-year projection document.
func AggregatedDataPath(clientID string, module types.BillingModule, fiscalYear int) string {
	return fmt.Sprintf("clients/%s/projects/%s/aggregatedData/%d", clientID, projectSegment(module), fiscalYear)
}

// CreditBalancesPath locates the single per-client credit balance document.
func CreditBalancesPath(clientID string) string {
	return fmt.Sprintf("clients/%s/units/creditBalances", clientID)
}

// TransactionPath locates a transaction document.
func TransactionPath(clientID, transactionID string) string {
	return fmt.Sprintf("clients/%s/transactions/%s", clientID, transactionID)
}

// TransactionsCollection is the query collection for a client's transactions.
func TransactionsCollection(clientID string) string {
	return fmt.Sprintf("clients/%s/transactions", clientID)
}

// BillingConfigPath locates a module's billing configuration document.
func BillingConfigPath(clientID string, module types.BillingModule) string {
	return fmt.Sprintf("clients/%s/config/%s", clientID, projectSegment(module))
}

// AuditLogPath locates one audit entry.
func AuditLogPath(clientID, entryID string) string {
	return fmt.Sprintf("clients/%s/auditLogs/%s", clientID, entryID)
}

// SchedulerRunPath locates the nightly run log for a Cancun calendar date.
func SchedulerRunPath(date string) string {
	return fmt.Sprintf("system/nightlyScheduler/runs/%s", date)
}

// SchedulerLeasePath locates the singleton scheduler lease document.
func SchedulerLeasePath() string {
	return "system/nightlyScheduler/lease"
}

// ExchangeRatePath locates the day's exchange-rate document.
func ExchangeRatePath(date string) string {
	return fmt.Sprintf("system/exchangeRates/%s", date)
}

// ClientsPrefix lists every client-scoped document; used by the backup task.
func ClientsPrefix() string {
	return "clients/"
}

// ClientPrefix lists every document belonging to one client.
func ClientPrefix(clientID string) string {
	return fmt.Sprintf("clients/%s/", clientID)
}
