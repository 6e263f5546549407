// Package util provides common utility data structures
//
// This package includes a generic set implementation and a hierarchical
// path index used by the continuation scheduler for prefix cancellation
package util
