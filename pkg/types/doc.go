// Package types defines the shared vocabulary of varstore: result-store table
// and column names, the ordered content Version, the error taxonomy returned by
// the maintenance engines, and the reports they produce.
package types
