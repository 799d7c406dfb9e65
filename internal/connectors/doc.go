// Package connectors holds the remote systems files are exported from.
// Each subpackage implements driven.FileSource for one system; only
// Salesforce exists today.
package connectors
