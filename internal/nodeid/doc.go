/*
Package nodeid formats and parses the identifiers of execution graph nodes.

A task that appears once in an expansion is identified by its name. Later
occurrences of the same task get an occurrence suffix: `compile`,
`compile#2`, `compile#3`.
*/
package nodeid
