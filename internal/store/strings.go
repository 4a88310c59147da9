package store

import (
	"context"
	"fmt"

	"github.com/zeebo/xxh3"

	"pixie/internal/schema"
)

// TranslatedString is one row of the built-in translation string table.
type TranslatedString struct {
	Hash   string
	Locale string
	Text   string
	TrKey  string
}

// StringHash computes the content hash a translatable column stores in place
// of its text. The locale participates so the same source text hashes
// differently per language.
func StringHash(locale, text string) string {
	return fmt.Sprintf("%x", xxh3.HashString(locale+"\x00"+text))
}

// AddString upserts one localized string and returns its hash. trKey is the
// optional back-reference to the field the string translates.
func (s *Store) AddString(ctx context.Context, locale, text, trKey string) (string, error) {
	hash := StringHash(locale, text)

	err := s.Set(ctx, schema.StringsTable, nil, &SetOptions{
		Key: hash,
		Properties: map[string]any{
			"locale":                      locale,
			"text":                        text,
			schema.TranslationKeyProperty: trKey,
		},
	})
	if err != nil {
		return "", err
	}

	return hash, nil
}

// GetString resolves a string hash back to its stored row. A missing hash
// returns nil, matching Get.
func (s *Store) GetString(ctx context.Context, hash string) (*TranslatedString, error) {
	item, err := s.Get(ctx, schema.StringsTable, hash)
	if err != nil {
		return nil, err
	}

	if item == nil {
		return nil, nil
	}

	row := &TranslatedString{Hash: item.Key}

	if locale, ok := item.Data["locale"].(string); ok {
		row.Locale = locale
	}

	if text, ok := item.Data["text"].(string); ok {
		row.Text = text
	}

	if trKey, ok := item.Data[schema.TranslationKeyProperty].(string); ok {
		row.TrKey = trKey
	}

	return row, nil
}

// Strings iterates the string table, optionally filtered to one locale.
func (s *Store) Strings(ctx context.Context, locale string) ([]*TranslatedString, error) {
	var where map[string]any
	if locale != "" {
		where = map[string]any{"locale": locale}
	}

	seq, err := s.Iterate(ctx, schema.StringsTable, Query{Where: where})
	if err != nil {
		return nil, err
	}

	rows := make([]*TranslatedString, 0)

	for _, item := range seq {
		row := &TranslatedString{Hash: item.Key}

		if loc, ok := item.Data["locale"].(string); ok {
			row.Locale = loc
		}

		if text, ok := item.Data["text"].(string); ok {
			row.Text = text
		}

		if trKey, ok := item.Data[schema.TranslationKeyProperty].(string); ok {
			row.TrKey = trKey
		}

		rows = append(rows, row)
	}

	return rows, nil
}
