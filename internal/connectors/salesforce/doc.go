// Package salesforce implements the file source against the Salesforce
// REST API.
//
// # Objects
//
// Two families of files are listed:
//
//   - Attachment: legacy binaries attached directly to a parent record.
//     The parent type comes from the polymorphic Parent relationship.
//
//   - ContentVersion: modern Files. Only the latest version of each
//     ContentDocument is listed. Parents are resolved separately through
//     ContentDocumentLink, since one document can be shared with many
//     records.
//
// Listings use SOQL through the query resource and follow nextRecordsUrl
// until the server reports done. A listing that fails part way returns
// an error rather than the pages read so far.
//
// # Authentication
//
// The client sends a bearer token obtained out of band (for example from
// `sf org display`). Token refresh is not handled; a 401 aborts the run.
//
// # Rate Limiting
//
// Requests pass through a token bucket sized by requests_per_second.
// The Sforce-Limit-Info header is tracked so callers can report org API
// usage, and a 429 or REQUEST_LIMIT_EXCEEDED response pauses every
// request until its Retry-After has elapsed.
//
// # Errors
//
// Failures are returned as *APIError, which unwraps to the matching
// domain error so the pipeline can classify them with errors.Is.
package salesforce
