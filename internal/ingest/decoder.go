package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"github.com/dmorley/finance-ingest/constants"
	"github.com/dmorley/finance-ingest/internal/common"
	"github.com/dmorley/finance-ingest/internal/entity"
)

// rawTransaction mirrors the wire shape of one array element. Enum fields stay
// raw strings here; the validator normalizes them.
type rawTransaction struct {
	GUID             string      `json:"guid"`
	AccountNameOwner string      `json:"accountNameOwner"`
	AccountType      string      `json:"accountType"`
	TransactionType  string      `json:"transactionType"`
	Description      string      `json:"description"`
	Category         string      `json:"category"`
	Amount           json.Number `json:"amount"`
	TransactionDate  string      `json:"transactionDate"`
	TransactionState string      `json:"transactionState"`
	Notes            string      `json:"notes"`
	ActiveStatus     *bool       `json:"activeStatus"`
}

// Decoder turns raw file bytes into TransactionRecord candidates. It reports
// "not JSON at all" (common.ErrNotJSON) distinctly from "tokenizes as JSON but
// has the wrong structure" (common.ErrJSONStructure). A file is decoded
// atomically: one malformed element fails the whole file.
type Decoder struct {
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewDecoder(logger *slog.Logger) (*Decoder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := compileEnvelopeSchema()
	if err != nil {
		return nil, err
	}
	return &Decoder{schema: schema, logger: logger}, nil
}

// Decode parses one file's content into an ordered sequence of candidates,
// preserving array order.
func (d *Decoder) Decode(data []byte) ([]entity.TransactionRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, common.NewAppError("EMPTY_CONTENT", "file is empty", common.ErrNotJSON)
	}

	// Content that does not even open a JSON structure is not JSON; this also
	// rejects top-level scalars (strings, numbers, booleans).
	if trimmed[0] != '[' && trimmed[0] != '{' {
		return nil, common.NewAppError("NOT_JSON", "content does not begin a JSON array or object", common.ErrNotJSON)
	}

	var tree any
	if err := json.Unmarshal(trimmed, &tree); err != nil {
		return nil, common.NewAppError("MALFORMED_JSON", fmt.Sprintf("content is not well-formed json: %v", err), common.ErrJSONStructure)
	}

	if err := d.schema.Validate(tree); err != nil {
		return nil, common.NewAppError("BAD_SHAPE", fmt.Sprintf("content is not an array of transaction objects: %v", err), common.ErrJSONStructure)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var raws []rawTransaction
	if err := dec.Decode(&raws); err != nil {
		// Shape already validated; reaching here means a field type slipped past
		// the schema.
		return nil, common.NewAppError("BAD_SHAPE", fmt.Sprintf("content does not map to transaction records: %v", err), common.ErrJSONStructure)
	}

	records := make([]entity.TransactionRecord, 0, len(raws))
	for i, raw := range raws {
		rec, err := toRecord(raw)
		if err != nil {
			return nil, common.NewAppError("BAD_RECORD", fmt.Sprintf("record %d cannot be decoded: %v", i, err), common.ErrJSONStructure)
		}
		records = append(records, rec)
	}

	d.logger.Debug("decoded inbound file", "records", len(records))
	return records, nil
}

func toRecord(raw rawTransaction) (entity.TransactionRecord, error) {
	var rec entity.TransactionRecord

	txDate, err := time.Parse("2006-01-02", raw.TransactionDate)
	if err != nil {
		return rec, fmt.Errorf("transactionDate %q is not a calendar date", raw.TransactionDate)
	}

	// The schema guarantees a JSON number; keep the literal's scale by parsing
	// the token text rather than going through float64.
	amount, err := decimal.NewFromString(raw.Amount.String())
	if err != nil {
		return rec, fmt.Errorf("amount %q is not a decimal", raw.Amount.String())
	}

	active := true
	if raw.ActiveStatus != nil {
		active = *raw.ActiveStatus
	}

	rec = entity.TransactionRecord{
		GUID:             raw.GUID,
		AccountNameOwner: raw.AccountNameOwner,
		AccountType:      constants.AccountType(raw.AccountType),
		TransactionType:  constants.TransactionType(raw.TransactionType),
		Description:      raw.Description,
		Category:         raw.Category,
		Amount:           amount,
		TransactionDate:  txDate,
		TransactionState: constants.TransactionState(raw.TransactionState),
		Notes:            raw.Notes,
		ActiveStatus:     active,
	}
	return rec, nil
}
