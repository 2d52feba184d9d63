package storage

import (
	"bytes"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"healthledger/core/validation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func encodeDocument(doc Document) ([]byte, error) {
	if doc.Version == 0 {
		doc.Version = CurrentVersion
	}
	return json.Marshal(doc)
}

// decodeDocument checks structure first so a damaged store is reported as
// corrupted instead of being half-read.
func decodeDocument(data []byte) (*Document, error) {
	if err := validation.ValidateDocument(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedStore, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedStore, err)
	}
	if doc.Version == 0 {
		doc.Version = CurrentVersion
	}
	return &doc, nil
}

// assembleDocument rebuilds document bytes from individually stored blocks so
// every backend goes through the same structural check.
func assembleDocument(version, difficulty int, rawBlocks [][]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"version":`)
	buf.WriteString(strconv.Itoa(version))
	buf.WriteString(`,"difficulty":`)
	buf.WriteString(strconv.Itoa(difficulty))
	buf.WriteString(`,"chain":[`)
	for i, raw := range rawBlocks {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(raw)
	}
	buf.WriteString(`]}`)
	return buf.Bytes()
}
