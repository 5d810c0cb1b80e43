package workflow

import (
	"time"

	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/mmdatafocus/purchasing_backend/models"
)

type MergeOptions struct {
	// RequireExpectedDateMatch rejects sources whose expected date differs from the target's.
	// Vendor equality is always required.
	RequireExpectedDateMatch bool
}

func DefaultMergeOptions() MergeOptions {
	return MergeOptions{RequireExpectedDateMatch: config.MergeRequireExpectedDateDefault()}
}

// validateMergeRequest checks the ids alone, before anything is loaded.
func validateMergeRequest(targetId int, sourceIds []int) error {
	if len(sourceIds) == 0 {
		return invalidRequest("at least one source purchase order must be provided")
	}
	if targetId <= 0 {
		return invalidRequest("target purchase order id must be a positive number")
	}
	for _, id := range sourceIds {
		if id <= 0 {
			return invalidRequest("purchase order ids must be positive numbers: %d", id)
		}
		if id == targetId {
			return invalidRequest("target purchase order cannot be one of the sources")
		}
	}
	return nil
}

// ValidateMerge enforces merge eligibility of loaded orders. It stops at the first violation.
func ValidateMerge(target *models.PurchaseOrder, sources []*models.PurchaseOrder, opts MergeOptions) error {
	if len(sources) == 0 {
		return invalidRequest("at least one source purchase order must be provided")
	}
	for _, source := range sources {
		if source.ID == target.ID {
			return invalidRequest("target purchase order cannot be one of the sources")
		}
	}

	if target.Received {
		return ineligible(target.ID, "cannot merge into purchase order %d because it has already been received", target.ID)
	}

	for _, source := range sources {
		if source.Received {
			return ineligible(source.ID, "source purchase order %d has already been received", source.ID)
		}
		if source.VendorId != target.VendorId {
			return ineligible(source.ID, "purchase order %d belongs to vendor %d, expected vendor %d", source.ID, source.VendorId, target.VendorId)
		}
		if opts.RequireExpectedDateMatch && !sameDate(source.ExpectedDate, target.ExpectedDate) {
			return ineligible(source.ID, "purchase order %d is expected on %s, expected %s",
				source.ID, source.ExpectedDate.Format(time.DateOnly), target.ExpectedDate.Format(time.DateOnly))
		}
	}
	return nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
