package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/temcen/recurate/internal/validation"
)

// Source yields raw catalog records.
type Source interface {
	Records(ctx context.Context) ([]Record, error)
}

// FileSource reads the JSON array written by the catalog fetcher.
type FileSource struct {
	path      string
	validator *validation.SchemaValidator
	logger    *logrus.Logger
}

func NewFileSource(path string, validator *validation.SchemaValidator, logger *logrus.Logger) *FileSource {
	return &FileSource{
		path:      path,
		validator: validator,
		logger:    logger,
	}
}

func (s *FileSource) Records(ctx context.Context) ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", s.path, err)
	}

	records, err := DecodeRecords(data, s.validator)
	if err != nil {
		return nil, fmt.Errorf("catalog file %s: %w", s.path, err)
	}

	s.logger.WithFields(logrus.Fields{
		"path":    s.path,
		"records": len(records),
	}).Info("Catalog file read")

	return records, nil
}

// DecodeRecords decodes a JSON array of records, validating every element
// against the record schema when a validator is given.
func DecodeRecords(data []byte, validator *validation.SchemaValidator) ([]Record, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("catalog is not a JSON array: %w", err)
	}

	records := make([]Record, len(raw))
	for i, msg := range raw {
		if err := decodeRecord(msg, validator, &records[i]); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return records, nil
}

func decodeRecord(msg []byte, validator *validation.SchemaValidator, rec *Record) error {
	if validator != nil {
		if err := validator.ValidateAnimeRecord(msg).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
	}
	if err := json.Unmarshal(msg, rec); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return nil
}
