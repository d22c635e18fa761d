// Package wifi holds the domain model shared by the connectivity packages:
// credentials, display preferences, scan results, link status, the error
// taxonomy and the validation rules applied to anything a user submits.
//
// # Errors
//
// All packages report failures as *Error so callers can branch on the
// category without string matching:
//
//	if wifi.IsRadioModeError(err) {
//	    // the supervisor retries later
//	}
//
// ShortMessage turns an error into text suitable for the small status display.
//
// # Validation
//
// ValidateCredentials returns every problem found rather than stopping at the
// first one; FormatValidationErrors renders them for an HTTP 400 body.
package wifi
