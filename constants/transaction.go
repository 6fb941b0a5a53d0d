package constants

import "strings"

// AccountType is the canonical account kind for a transaction.
type AccountType string

// Stable values (store these exact strings in DB).
const (
	AccountTypeDebit     AccountType = "debit"
	AccountTypeCredit    AccountType = "credit"
	AccountTypeUndefined AccountType = "undefined"
)

// TransactionType is the canonical direction of a transaction.
type TransactionType string

const (
	TransactionTypeExpense   TransactionType = "expense"
	TransactionTypeIncome    TransactionType = "income"
	TransactionTypeTransfer  TransactionType = "transfer"
	TransactionTypeUndefined TransactionType = "undefined"
)

// TransactionState is the canonical settlement state of a transaction.
type TransactionState string

const (
	TransactionStateCleared     TransactionState = "cleared"
	TransactionStateOutstanding TransactionState = "outstanding"
	TransactionStateFuture      TransactionState = "future"
	TransactionStateUndefined   TransactionState = "undefined"
)

// Normalize lowercases and trims an enum label before lookup.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ParseAccountType maps a raw label to its canonical AccountType.
func ParseAccountType(s string) (AccountType, bool) {
	switch Normalize(s) {
	case string(AccountTypeDebit):
		return AccountTypeDebit, true
	case string(AccountTypeCredit):
		return AccountTypeCredit, true
	case string(AccountTypeUndefined):
		return AccountTypeUndefined, true
	}
	return "", false
}

// ParseTransactionType maps a raw label to its canonical TransactionType.
func ParseTransactionType(s string) (TransactionType, bool) {
	switch Normalize(s) {
	case string(TransactionTypeExpense):
		return TransactionTypeExpense, true
	case string(TransactionTypeIncome):
		return TransactionTypeIncome, true
	case string(TransactionTypeTransfer):
		return TransactionTypeTransfer, true
	case string(TransactionTypeUndefined):
		return TransactionTypeUndefined, true
	}
	return "", false
}

// ParseTransactionState maps a raw label to its canonical TransactionState.
func ParseTransactionState(s string) (TransactionState, bool) {
	switch Normalize(s) {
	case string(TransactionStateCleared):
		return TransactionStateCleared, true
	case string(TransactionStateOutstanding):
		return TransactionStateOutstanding, true
	case string(TransactionStateFuture):
		return TransactionStateFuture, true
	case string(TransactionStateUndefined):
		return TransactionStateUndefined, true
	}
	return "", false
}
