// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as handlers
// to distinguish between different failure scenarios. For example,
// ErrCityHasPOIs signals that a delete cannot proceed due to existing
// dependent records, while the per-resource not-found errors double as the
// ownership-miss signal: a scoped query that matches nothing looks exactly
// like a query for a resource that does not exist.
package repository

import "errors"

// ErrEmailExists is returned when a user insert or email change collides
// with an existing account. Handlers translate it into HTTP 409.
var ErrEmailExists = errors.New("email already exists")

// ErrUserNotFound is returned when a user cannot be found.
var ErrUserNotFound = errors.New("user not found")

// ErrCityNotFound is returned when a city cannot be found, including when a
// scoped query excludes it because the caller does not own it.
var ErrCityNotFound = errors.New("city not found")

// ErrPOINotFound is returned when a POI cannot be found, including when the
// caller does not own its city.
var ErrPOINotFound = errors.New("poi not found")

// ErrCityHasPOIs is returned when a city delete is rejected because POIs
// still reference it. Handlers translate it into HTTP 409.
var ErrCityHasPOIs = errors.New("city still has pois")
