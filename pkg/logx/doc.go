// Package logx wraps zerolog behind a small stable API.
//
// It exists so components take a value-type Logger they can derive from
// with With(), while the Service can swap sinks and levels at runtime
// (config hot reload) without re-plumbing loggers through the tree.
package logx
