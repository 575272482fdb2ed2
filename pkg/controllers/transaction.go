package controllers

import (
	"errors"
	"net/http"

	"github.com/fintrack/backend/pkg/httperrors"
	"github.com/fintrack/backend/pkg/httputil"
	"github.com/fintrack/backend/pkg/ledger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RegisterTransactionRoutes registers the routes for transactions with
// the RouterGroup that is passed.
func (co Controller) RegisterTransactionRoutes(r *gin.RouterGroup) {
	r.OPTIONS("/:id/apply", httputil.OptionsPost)
	r.POST("/:id/apply", co.ApplyTransaction)
}

type ApplyRequest struct {
	UserID uuid.UUID `json:"userId" example:"550dc009-cea6-4c12-b2a5-03446eb7b7cf"` // Owner of the recurring transaction
}

type ApplyResult struct {
	Outcome ledger.Outcome `json:"outcome" example:"applied"`
}

// ApplyTransaction applies a recurring transaction and waits for the outcome.
// It is queued behind the other events of the user and counts towards the
// per-user bounds.
//
// A transaction that is not due is not an error, the outcome tells the caller
// that nothing was changed.
func (co Controller) ApplyTransaction(c *gin.Context) {
	id, err := httputil.ParamUUID(c, "id")
	if err != nil {
		httperrors.Handler(c, err)
		return
	}

	var body ApplyRequest
	if err := httputil.BindData(c, &body); err != nil {
		httperrors.Handler(c, err)
		return
	}

	if body.UserID == uuid.Nil {
		httperrors.Handler(c, httperrors.Error{Err: errors.New("the userId must be set"), Status: http.StatusBadRequest})
		return
	}

	outcome, err := co.Jobs.ApplyThrottled(c.Request.Context(), ledger.TransactionRef{TransactionID: id, UserID: body.UserID})
	if err != nil {
		httperrors.Handler(c, err)
		return
	}

	if errors.Is(outcome.Err(), ledger.ErrNotFound) {
		httperrors.New(c, http.StatusNotFound, "there is no recurring transaction matching your query")
		return
	}

	c.JSON(http.StatusOK, Response[ApplyResult]{Data: ApplyResult{Outcome: outcome}})
}
