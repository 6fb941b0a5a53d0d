package ingest

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dmorley/finance-ingest/constants"
	"github.com/dmorley/finance-ingest/internal/common"
	"github.com/dmorley/finance-ingest/internal/entity"
)

var (
	// account moniker + owner, underscore-separated, lowercase only
	accountNameOwnerRe = regexp.MustCompile(`^[a-z-]+_[a-z]+$`)
	categoryRe         = regexp.MustCompile(`^[a-z0-9_-]{0,50}$`)

	// 8-integer-digit currency column
	maxAmountMagnitude = decimal.New(1, 8)
)

// RecordValidator enforces the field invariants on every candidate in a file.
// All checks run for every candidate so the diagnostic reports every violation,
// not just the first. One failing candidate fails the whole file: partial
// insertion would silently drop data the caller believed was saved.
type RecordValidator struct {
	logger *slog.Logger
}

func NewRecordValidator(logger *slog.Logger) *RecordValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordValidator{logger: logger}
}

// ValidateAll checks every candidate and returns the normalized sequence in
// input order, or a common.ErrValidation failure describing all violations.
func (rv *RecordValidator) ValidateAll(candidates []entity.TransactionRecord) ([]entity.TransactionRecord, error) {
	var problems []string

	out := make([]entity.TransactionRecord, 0, len(candidates))
	for i, rec := range candidates {
		normalized, v := rv.validateOne(rec)
		if v.HasErrors() {
			problems = append(problems, fmt.Sprintf("record %d: %s", i, v.ErrorMessage()))
			continue
		}
		out = append(out, normalized)
	}

	if len(problems) > 0 {
		rv.logger.Warn("file failed validation", "violations", len(problems))
		return nil, common.NewAppError("VALIDATION_FAILED", strings.Join(problems, " | "), common.ErrValidation)
	}
	return out, nil
}

func (rv *RecordValidator) validateOne(rec entity.TransactionRecord) (entity.TransactionRecord, *common.Validator) {
	v := common.NewValidator()

	v.Field("guid", rec.GUID, common.Required, common.CanonicalUUID)
	v.Field("accountNameOwner", rec.AccountNameOwner,
		common.Pattern(accountNameOwnerRe, "must be lowercase account_owner"))
	v.Field("description", rec.Description, common.MinLength(1), common.MaxLength(75))
	v.Field("category", rec.Category, common.Pattern(categoryRe, "must be a lowercase token of at most 50 characters"))
	v.Field("notes", rec.Notes, common.MaxLength(100))

	if !rec.Amount.Equal(rec.Amount.Round(2)) {
		v.Field("amount", rec.Amount.String(), failWith("must have at most 2 decimal places"))
	}
	if !rec.Amount.Abs().LessThan(maxAmountMagnitude) {
		v.Field("amount", rec.Amount.String(), failWith("magnitude exceeds 8 integer digits"))
	}

	accountType, ok := constants.ParseAccountType(string(rec.AccountType))
	if !ok {
		v.Field("accountType", string(rec.AccountType), failWith("is not a known account type"))
	}
	transactionType, ok := constants.ParseTransactionType(string(rec.TransactionType))
	if !ok {
		v.Field("transactionType", string(rec.TransactionType), failWith("is not a known transaction type"))
	}
	transactionState, ok := constants.ParseTransactionState(string(rec.TransactionState))
	if !ok {
		v.Field("transactionState", string(rec.TransactionState), failWith("is not a known transaction state"))
	}

	if v.HasErrors() {
		return rec, v
	}

	rec.AccountType = accountType
	rec.TransactionType = transactionType
	rec.TransactionState = transactionState
	return rec, v
}

// failWith adapts an already-detected violation to the ValidationRule shape so
// it lands in the same collected error list.
func failWith(message string) common.ValidationRule {
	return func(fieldName string, value interface{}) *common.ValidationError {
		return &common.ValidationError{Field: fieldName, Value: value, Message: message}
	}
}
