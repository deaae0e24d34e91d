package types

// RunMode is the deployment mode of the process
type RunMode string

const (
	ModeLocal     RunMode = "local"
	ModeProd      RunMode = "prod"
	ModeScheduler RunMode = "scheduler"
)

// LogLevel controls the logger verbosity
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// BillingModule identifies which billing project a bill or payment belongs to
type BillingModule string

const (
	ModuleWaterBills BillingModule = "water"
	ModuleHOADues    BillingModule = "hoa"
)

func (m BillingModule) Validate() bool {
	return m == ModuleWaterBills || m == ModuleHOADues
}

// BillStatus is derived from paid vs total amounts, never stored free-form
type BillStatus string

const (
	BillStatusUnpaid  BillStatus = "unpaid"
	BillStatusPartial BillStatus = "partial"
	BillStatusPaid    BillStatus = "paid"
)

// DeriveBillStatus returns the status implied by the paid and total amounts
func DeriveBillStatus(paidAmount, totalAmount int64) BillStatus {
	switch {
	case paidAmount <= 0:
		return BillStatusUnpaid
	case paidAmount >= totalAmount:
		return BillStatusPaid
	default:
		return BillStatusPartial
	}
}

// TransactionType distinguishes money in from money out
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// CreditEntryType classifies credit-balance history entries
type CreditEntryType string

const (
	CreditEntryStartingBalance CreditEntryType = "starting_balance"
	CreditEntryAdded           CreditEntryType = "credit_added"
	CreditEntryUsed            CreditEntryType = "credit_used"
	CreditEntryReversal        CreditEntryType = "reversal"
)

// TaskStatus is the outcome of a single scheduler task
type TaskStatus string

const (
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"
	TaskStatusSkipped TaskStatus = "skipped"
)

// RunStatus is the aggregate outcome of a scheduler run
type RunStatus string

const (
	RunStatusRunning        RunStatus = "running"
	RunStatusSuccess        RunStatus = "success"
	RunStatusPartialFailure RunStatus = "partial_failure"
)

// AllocationTarget says which bucket of a bill an allocation pays down
type AllocationTarget string

const (
	AllocationTargetBase    AllocationTarget = "base"
	AllocationTargetPenalty AllocationTarget = "penalty"
	AllocationTargetCredit  AllocationTarget = "credit"
)

// CategoryAccountCredit is the allocation category for overpayment captured as credit
const CategoryAccountCredit = "account-credit"
