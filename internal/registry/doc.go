// Package registry holds the Go handlers behind pipeline actions. Modules
// register their handlers at startup; the executor looks them up by action
// type, decodes the action body into the handler's input struct and calls
// the handler.
package registry
