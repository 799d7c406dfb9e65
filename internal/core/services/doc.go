// Package services implements the driving ports of the files pipeline.
//
// The pipeline is: Lister → Partition → Materializer (through a bounded
// worker pool) → IndexBuilder → Consolidator, followed in a later run by
// VerifyService → RetryService → InventoryService.
//
// Services depend only on domain types and driven ports; adapters are
// injected by the CLI.
package services
