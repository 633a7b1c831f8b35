// Package types defines the Repository port, the raw record and class schema
// types, configuration, and the standard error values for the fiberplant
// connectivity model.
package types
