// Package store defines the run history repository. Implementations live in
// subpackages; this package must not import database drivers or concrete
// clients.
package store
