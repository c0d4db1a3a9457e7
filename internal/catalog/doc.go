// Package catalog defines the identifier format, the page/collection/report
// types, and the interfaces shared by the fetcher, extractor, pagination
// controller, reconciliation validator, and restriction detector.
// Implementations live in other packages; this package must not import
// transport or database clients.
package catalog
