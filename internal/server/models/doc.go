// Package models defines the records persisted by the refresh token and user
// stores.
package models
