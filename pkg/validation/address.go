// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that gate
// irreversible actions. A refund is only ever sent to an address that
// passes validation here.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// walletAddressPattern matches EVM-style wallet addresses:
// a 0x prefix followed by exactly 40 hex characters.
var walletAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidateWalletAddress validates a payout destination before funds move.
//
// Valid addresses:
//   - Start with "0x"
//   - Followed by exactly 40 hexadecimal characters
//
// Returns an error if the address is invalid.
//
// Example:
//
//	if err := validation.ValidateWalletAddress(addr); err != nil {
//	    return fmt.Errorf("refund blocked: %w", err)
//	}
//	// Safe to pass to the payment client
func ValidateWalletAddress(address string) error {
	if address == "" {
		return fmt.Errorf("wallet address cannot be empty")
	}

	if !walletAddressPattern.MatchString(address) {
		return fmt.Errorf("invalid wallet address format: %q (must be 0x followed by 40 hex chars)", address)
	}

	return nil
}

// IsWalletAddress reports whether the string is a well-formed wallet address.
func IsWalletAddress(address string) bool {
	return ValidateWalletAddress(address) == nil
}

// SanitizeWalletAddress trims surrounding whitespace and validates.
// Returns the trimmed address if valid, or an error if invalid.
func SanitizeWalletAddress(address string) (string, error) {
	normalized := strings.TrimSpace(address)
	if err := ValidateWalletAddress(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
