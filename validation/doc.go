// Package validation holds the allow-list checks applied to untrusted input
// before any file or process is touched.
//
// Every rejection wraps ErrInvalidInput so callers can map it with errors.Is:
//
//	if err := validation.Domain(domain); err != nil {
//	    if errors.Is(err, validation.ErrInvalidInput) {
//	        // caller error, nothing was attempted
//	    }
//	}
package validation
