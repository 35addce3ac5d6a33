// Package bigquery reads and writes frames from and to BigQuery tables.
//
// Reads run a query and materialize every row as strings. Writes stage the
// frame as CSV and run a load job, creating the table when needed. Preview
// runs the query as a dry run and reports the bytes it would scan.
//
// Every entry point requires Application Default Credentials unless explicit
// client options are supplied; see the gcp package.
package bigquery
