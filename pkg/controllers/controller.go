// Package controllers implements the operator API of the ledger.
package controllers

import (
	"github.com/fintrack/backend/pkg/jobs"
	"gorm.io/gorm"
)

// Controller holds the dependencies of all handlers.
type Controller struct {
	DB   *gorm.DB
	Jobs *jobs.Jobs
}

// Response wraps the data of all successful responses.
type Response[T any] struct {
	Data T `json:"data"`
}
