package types

const redactedPlaceholder = "[REDACTED]"

var redactedJSON = []byte(`"` + redactedPlaceholder + `"`)

// SecretString is a string type for credentials. It redacts itself when
// formatted or JSON-marshaled so secrets cannot leak through log lines or
// serialized config dumps.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value. Limit calls to the places that
// genuinely need the secret, such as Authorization headers and connection
// strings.
func (s SecretString) Unmask() string {
	return string(s)
}
