package store

import (
	"encoding/json"
	"fmt"
	"strconv"

	"pixie/internal/schema"
)

// Item is a decoded record: the raw payload merged with the row's generated
// column values. Items are plain values owned by the caller; they hold no
// reference back to the store.
type Item struct {
	// Key is the record's primary-key value, normalized to a string.
	Key string

	// Table is the table the record came from.
	Table string

	// Owner is the dataset code of the store that produced the item.
	Owner string

	// Data is the decoded payload. Generated-column values win on key
	// collision since they are authoritative projections.
	Data map[string]any

	// Marking is the optional workflow-state tag stored as a side column.
	Marking string
}

// decodeRow builds an Item from one scanned row. Column values are merged
// over the decoded raw payload; json-typed properties are decoded back into
// structured values.
func decodeRow(t *schema.Table, owner string, cols []string, vals []any) (*Item, error) {
	data := make(map[string]any)

	jsonProps := make(map[string]struct{})
	for _, p := range t.JSONProperties() {
		jsonProps[p.Code] = struct{}{}
	}

	var rawSeen bool

	for i, col := range cols {
		if col != RawColumn {
			continue
		}

		rawSeen = true

		raw := asString(vals[i])
		if raw == "" {
			break
		}

		err := json.Unmarshal([]byte(raw), &data)
		if err != nil {
			return nil, fmt.Errorf("%w: table %s: %v", ErrDecode, t.Name, err)
		}

		break
	}

	if !rawSeen {
		return nil, fmt.Errorf("%w: table %s row has no %s column", ErrDecode, t.Name, RawColumn)
	}

	item := &Item{Table: t.Name, Owner: owner, Data: data}

	for i, col := range cols {
		if col == RawColumn || vals[i] == nil {
			continue
		}

		value := normalizeValue(vals[i])

		if _, isJSON := jsonProps[col]; isJSON {
			if text, ok := value.(string); ok && text != "" {
				var decoded any
				if err := json.Unmarshal([]byte(text), &decoded); err == nil {
					value = decoded
				}
			}
		}

		data[col] = value

		if col == MarkingColumn {
			if marking, ok := value.(string); ok {
				item.Marking = marking
			}
		}
	}

	key, ok := data[t.PkName]
	if !ok {
		return nil, fmt.Errorf("%w: table %s row has no %s", ErrDecode, t.Name, t.PkName)
	}

	item.Key = formatKey(key)

	return item, nil
}

// normalizeValue converts driver scan values into the types callers see from
// decoded JSON.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}

	return v
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return ""
	}
}

// formatKey normalizes a primary-key value to its string form. JSON decoding
// hands integers back as float64, so integral floats render without the
// fractional part.
func formatKey(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}

		return strconv.FormatFloat(val, 'g', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
