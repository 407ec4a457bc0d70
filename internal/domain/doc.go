// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (event.go, connection.go, errors.go, store.go) hold the shared types and the
// contracts of the collaborators around the distribution core. No implementation code - just contracts.
// Keeping interfaces here prevents circular imports between the core and its adapters.
package domain
