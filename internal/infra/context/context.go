// Package context holds typed accessors for values carried on a context.Context.
package context

type contextKey string
