// Package tools defines the capability descriptor and the ITool invocation
// handle it carries. A descriptor is immutable once built: name, description,
// usage examples and the eager flag that keeps it exposed on every request.
package tools
