package ledgercrypt

import (
	"bytes"
	"encoding/json"
)

// Stored envelope format (TEXT column or export file):
//
//	{"encrypted": "<hex ciphertext>", "iv": "<32 hex chars>", "tag": "<32 hex chars>"}
//
// Exported files may carry an extra "compression" key naming the algorithm
// applied to the plaintext before sealing. Field values never do.

const (
	ivSize  = 16
	tagSize = 16
)

// Envelope is one encrypted value. It is immutable once produced; updating
// a field replaces its envelope wholesale.
type Envelope struct {
	Ciphertext  string `json:"encrypted"`
	IV          string `json:"iv"`
	Tag         string `json:"tag"`
	Compression string `json:"compression,omitempty"`
}

// Marshal serializes the envelope to its stored JSON form.
func (e *Envelope) Marshal() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FieldState classifies a stored sensitive value.
type FieldState int

const (
	// FieldLegacy means the value is not an envelope and is plaintext written
	// before encryption was introduced.
	FieldLegacy FieldState = iota
	// FieldEncrypted means the value is an envelope that decrypted successfully.
	FieldEncrypted
	// FieldCorrupt means the value is shaped like an envelope but failed to
	// decrypt. It is an integrity violation, never legacy data.
	FieldCorrupt
	// FieldUnverified means the value is an envelope that could not be
	// checked because the master key was unavailable.
	FieldUnverified
)

func (s FieldState) String() string {
	switch s {
	case FieldLegacy:
		return "legacy"
	case FieldEncrypted:
		return "encrypted"
	case FieldCorrupt:
		return "corrupt"
	case FieldUnverified:
		return "unverified"
	default:
		return "unknown"
	}
}

var envelopeKeys = [...]string{"encrypted", "iv", "tag"}

// ParseEnvelope reports whether s is a stored envelope: a JSON object whose
// "encrypted", "iv" and "tag" keys all hold JSON strings. Any other input,
// including invalid JSON, returns ok == false and is legacy plaintext.
//
// ParseEnvelope only checks shape; hex and length errors surface on decrypt.
func ParseEnvelope(s string) (env *Envelope, ok bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return nil, false
	}

	var values [len(envelopeKeys)]string
	for i, k := range envelopeKeys {
		raw, present := fields[k]
		if !present {
			return nil, false
		}
		if !isJSONString(raw) {
			return nil, false
		}
		if err := json.Unmarshal(raw, &values[i]); err != nil {
			return nil, false
		}
	}

	env = &Envelope{Ciphertext: values[0], IV: values[1], Tag: values[2]}
	if raw, present := fields["compression"]; present {
		if !isJSONString(raw) || json.Unmarshal(raw, &env.Compression) != nil {
			// Keep the raw text so decryption rejects it as unsupported.
			env.Compression = string(raw)
		}
	}
	return env, true
}

// isJSONString reports whether raw is a JSON string rather than null or
// another type, which json.Unmarshal into a string would accept or coerce.
func isJSONString(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '"'
}
