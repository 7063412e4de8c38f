package config

import "errors"

// ErrSecretTooShort is returned by Validate when the configured watermark
// secret is under 16 bytes. Callers that treat configuration errors as
// fatal (SPEC_FULL.md section 7) should exit with code 2 on this error.
var ErrSecretTooShort = errors.New("config: watermark secret must be at least 16 bytes")
