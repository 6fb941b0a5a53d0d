package entity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmorley/finance-ingest/constants"
)

// TransactionRecord is one transaction entry from an ingested file. It is
// constructed transiently per input file, validated, handed to the store for a
// single insert attempt and then discarded.
type TransactionRecord struct {
	GUID             string                     `json:"guid"`
	AccountNameOwner string                     `json:"accountNameOwner"`
	AccountType      constants.AccountType      `json:"accountType"`
	TransactionType  constants.TransactionType  `json:"transactionType"`
	Description      string                     `json:"description"`
	Category         string                     `json:"category"`
	Amount           decimal.Decimal            `json:"amount"`
	TransactionDate  time.Time                  `json:"transactionDate"`
	TransactionState constants.TransactionState `json:"transactionState"`
	Notes            string                     `json:"notes"`
	ActiveStatus     bool                       `json:"activeStatus"`
}

// IngestionOutcome is the terminal disposition of one inbound file.
type IngestionOutcome string

const (
	OutcomeSucceeded        IngestionOutcome = "SUCCEEDED"
	OutcomeFailedNotJSON    IngestionOutcome = "FAILED_NOT_JSON"
	OutcomeFailedJSONParse  IngestionOutcome = "FAILED_JSON_PARSE"
	OutcomeFailedValidation IngestionOutcome = "FAILED_VALIDATION_OR_PERSISTENCE"
)

// FileResult pairs an outcome with the originating file and, for failures, a
// diagnostic message for the operator.
type FileResult struct {
	Path       string
	Outcome    IngestionOutcome
	Records    int
	Diagnostic string
	ArchivedTo string
}
