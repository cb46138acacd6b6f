package athstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"DipSentinel/internal/model"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

const (
	keyValue     = "ath_value"
	keyDate      = "ath_date"
	keyUpdatedAt = "updated_at"
)

// Snapshot is the full symbol -> record mapping persisted as one unit.
// Fields on disk that this version does not know are kept per symbol and
// written back on save.
type Snapshot struct {
	records map[string]model.ATHRecord
	extra   map[string]map[string]json.RawMessage
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		records: make(map[string]model.ATHRecord),
		extra:   make(map[string]map[string]json.RawMessage),
	}
}

// Get returns the record for symbol.
func (s *Snapshot) Get(symbol string) (model.ATHRecord, bool) {
	rec, ok := s.records[symbol]
	return rec, ok
}

// Put inserts or replaces the record for rec.Symbol. Unknown fields stored
// for the symbol are kept.
func (s *Snapshot) Put(rec model.ATHRecord) {
	s.records[rec.Symbol] = rec
}

// Len returns the number of records.
func (s *Snapshot) Len() int { return len(s.records) }

// Symbols returns the stored symbols in sorted order.
func (s *Snapshot) Symbols() []string {
	out := make([]string, 0, len(s.records))
	for sym := range s.records {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Records returns the records sorted by symbol.
func (s *Snapshot) Records() []model.ATHRecord {
	out := make([]model.ATHRecord, 0, len(s.records))
	for _, sym := range s.Symbols() {
		out = append(out, s.records[sym])
	}
	return out
}

// MarshalJSON encodes the snapshot with sorted keys so identical snapshots
// serialize identically.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]json.RawMessage, len(s.records))
	for sym, rec := range s.records {
		// Load rejects these, so never write them.
		if !rec.ATHValue.IsPositive() {
			return nil, fmt.Errorf("record %s: ath_value must be positive, got %s", sym, rec.ATHValue.String())
		}
		if !rec.ATHDate.IsValid() {
			return nil, fmt.Errorf("record %s: invalid ath_date %q", sym, rec.ATHDate.String())
		}
		fields := make(map[string]json.RawMessage, len(s.extra[sym])+3)
		for k, v := range s.extra[sym] {
			fields[k] = v
		}
		v, err := json.Marshal(rec.ATHValue)
		if err != nil {
			return nil, err
		}
		fields[keyValue] = v
		if fields[keyDate], err = json.Marshal(rec.ATHDate); err != nil {
			return nil, err
		}
		if !rec.UpdatedAt.IsZero() {
			if fields[keyUpdatedAt], err = json.Marshal(rec.UpdatedAt.UTC()); err != nil {
				return nil, err
			}
		}
		out[sym] = fields
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes and validates a snapshot. Any record that cannot be
// trusted fails the whole decode.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if raw == nil {
		return errors.New("snapshot is not a JSON object")
	}

	snap := NewSnapshot()
	for sym, body := range raw {
		if sym == "" {
			return errors.New("empty symbol key")
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
			return fmt.Errorf("record %s: not an object", sym)
		}
		rec, err := decodeRecord(sym, fields)
		if err != nil {
			return fmt.Errorf("record %s: %w", sym, err)
		}
		snap.records[sym] = rec

		delete(fields, keyValue)
		delete(fields, keyDate)
		delete(fields, keyUpdatedAt)
		if len(fields) > 0 {
			snap.extra[sym] = fields
		}
	}
	*s = *snap
	return nil
}

func decodeRecord(sym string, fields map[string]json.RawMessage) (model.ATHRecord, error) {
	rec := model.ATHRecord{Symbol: sym}

	rawValue, ok := fields[keyValue]
	if !ok {
		return rec, fmt.Errorf("missing %s", keyValue)
	}
	var value decimal.Decimal
	if err := json.Unmarshal(rawValue, &value); err != nil {
		return rec, fmt.Errorf("%s: %w", keyValue, err)
	}
	if !value.IsPositive() {
		return rec, fmt.Errorf("%s must be positive, got %s", keyValue, value)
	}
	rec.ATHValue = value

	rawDate, ok := fields[keyDate]
	if !ok {
		return rec, fmt.Errorf("missing %s", keyDate)
	}
	var date civil.Date
	if err := json.Unmarshal(rawDate, &date); err != nil {
		return rec, fmt.Errorf("%s: %w", keyDate, err)
	}
	if !date.IsValid() {
		return rec, fmt.Errorf("%s: invalid date %s", keyDate, date)
	}
	rec.ATHDate = date

	if rawUpdated, ok := fields[keyUpdatedAt]; ok {
		var ts time.Time
		if err := json.Unmarshal(rawUpdated, &ts); err != nil {
			return rec, fmt.Errorf("%s: %w", keyUpdatedAt, err)
		}
		rec.UpdatedAt = ts.UTC()
	}
	return rec, nil
}
