// Package errors provides structured error handling for labsearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration and credential errors
//   - 2XX: Storage errors
//   - 3XX: Network and provider availability errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration or credential errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates vector store and file errors.
	CategoryStorage Category = "STORAGE"
	// CategoryNetwork indicates network or provider availability errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input or response validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal aborts the current indexing run.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails one operation; the caller may continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigInvalid         = "ERR_102_CONFIG_INVALID"
	ErrCodeMissingAPIKey         = "ERR_103_MISSING_API_KEY"
	ErrCodeInvalidCredentials    = "ERR_104_INVALID_CREDENTIALS"
	ErrCodeProviderUnknown       = "ERR_105_PROVIDER_UNKNOWN"
	ErrCodeEmbeddingsUnsupported = "ERR_106_EMBEDDINGS_UNSUPPORTED"

	// Storage errors (200-299)
	ErrCodeWorkspaceNotFound = "ERR_201_WORKSPACE_NOT_FOUND"
	ErrCodeWorkspaceCorrupt  = "ERR_202_WORKSPACE_CORRUPT"
	ErrCodeCorruptIndex      = "ERR_205_CORRUPT_INDEX"
	ErrCodeStorage           = "ERR_207_STORAGE"

	// Network errors (300-399)
	ErrCodeNetworkTimeout      = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable  = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeRateLimited         = "ERR_304_RATE_LIMITED"
	ErrCodeProviderUnavailable = "ERR_305_PROVIDER_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeMalformedResponse = "ERR_407_MALFORMED_RESPONSE"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "ERR_104_..." -> '1'
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
// Credential and capability failures are systemic: no later item in the
// same run can succeed, so they abort.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeInvalidCredentials, ErrCodeMissingAPIKey, ErrCodeEmbeddingsUnsupported,
		ErrCodeProviderUnknown, ErrCodeCorruptIndex, ErrCodeStorage:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeRateLimited, ErrCodeProviderUnavailable:
		return true
	default:
		return false
	}
}
