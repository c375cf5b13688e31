// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"context"

	"github.com/michaelwaves/coinchase/services/evidence"
)

// Refunder sends funds to a wallet address. Satisfied by *payment.LocusClient.
//
// Implementations must treat every call as a distinct transfer attempt; the
// controller guarantees at most one call per session.
type Refunder interface {
	SendRefund(ctx context.Context, address string, amount float64, transactionID string) (map[string]any, error)
}

// EvidenceSource resolves an identifier to shipment evidence. Satisfied by
// *evidence.Registry.
type EvidenceSource interface {
	CheckDeliveryStatus(identifier string) evidence.LookupResult
}
