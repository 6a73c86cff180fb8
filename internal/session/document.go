package session

import (
	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// legacyTypeKey marks documents written before versioning; they hold the
// attributes at the top level.
const legacyTypeKey = "__session_type__"

type document struct {
	Version    int            `json:"version"`
	Attributes map[string]any `json:"attributes"`
}

// Encode renders the session as an indented UTF-8 JSON document.
func Encode(s *Session) ([]byte, error) {
	attrs, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	data, err := sonic.ConfigStd.MarshalIndent(document{Version: Version, Attributes: attrs}, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode session")
	}
	return append(data, '\n'), nil
}

// Decode parses a document and returns its attributes. Empty input is an
// empty session.
func Decode(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return map[string]any{}, nil
	}

	raw := map[string]any{}
	if err := sonic.ConfigStd.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "decode session")
	}
	if _, legacy := raw[legacyTypeKey]; legacy {
		delete(raw, legacyTypeKey)
		return raw, nil
	}

	var doc document
	if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "decode session")
	}
	if doc.Version < 1 || doc.Version > Version {
		return nil, errors.Wrapf(ErrVersion, "%d", doc.Version)
	}
	if doc.Attributes == nil {
		doc.Attributes = map[string]any{}
	}
	return doc.Attributes, nil
}
