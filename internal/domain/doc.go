// Package domain defines the core types of the change audit monitor.
//
// Types in this package are value objects shared by the fetcher, classifier,
// ledger, records table and measurement scheduler. They carry no database,
// HTTP or logging dependencies.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No context.Context, clients or handles in struct fields
//   - Pure helper methods are allowed (identity, state, precedence rules)
package domain
