// Package entity defines the contract between caller-owned domain objects and
// the persistence core.
package entity

// Entity is implemented by every mapped domain object.
//
// EntityName must not dereference its receiver: the registry calls it on
// typed nil pointers to resolve navigation targets.
type Entity interface {
	EntityName() string
}
