// Package scanner owns the fingerprint reader session subsystem.
//
// The package is split along the lifetime of one capture request:
//
//   - Resolver loads the vendor device-control and processing libraries from a
//     primary or fallback tier and binds their entry points into a Driver.
//   - Slot hands out at most one open Session for the single physical reader.
//   - Capture runs one bounded capture attempt against an open Session.
//   - Controller wraps Capture with a bounded retry policy and guarantees the
//     Session is closed exactly once.
//   - Translate and TranslateQuality classify every vendor status into the
//     error taxonomy (Kind) and decide whether it may be retried.
//
// Raw vendor handles never leave this package; transports only see Sample
// values and *Error values.
package scanner
