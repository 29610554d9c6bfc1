package text

// ValidateKey checks that key can be sent on the text protocol.
//
// A key is 1 to 250 bytes drawn from the printable ASCII range 0x21-0x7e:
// no space, no control characters (including a trailing newline), no DEL
// and no bytes above 0x7f.
func ValidateKey(key string) error {
	if len(key) < MinKeyLength {
		return &ValidationError{Message: "key is empty"}
	}

	if len(key) > MaxKeyLength {
		return &ValidationError{Message: "key exceeds maximum length of 250 bytes", Value: key}
	}

	for i := 0; i < len(key); i++ {
		if c := key[i]; c < 0x21 || c > 0x7e {
			if c == '\n' && i == len(key)-1 {
				return &ValidationError{Message: "key has trailing newline", Value: key}
			}
			return &ValidationError{Message: "key contains invalid character", Value: key}
		}
	}

	return nil
}

// ValidateExptime checks that an expiration time is acceptable.
// Zero means no expiration. Values above 30 days are unix timestamps on the server.
func ValidateExptime(exptime int) error {
	if exptime < 0 {
		return &ValidationError{Message: "exptime negative", Value: exptime}
	}
	return nil
}
