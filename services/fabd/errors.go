// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fabd

import "errors"

// Sentinel errors for the fabd service.
var (
	// ErrEmptyBatch indicates a batch evaluation request without rows.
	ErrEmptyBatch = errors.New("batch has no rows")

	// ErrBatchTooLarge indicates a batch exceeding the configured row limit.
	ErrBatchTooLarge = errors.New("batch exceeds row limit")

	// ErrNonFiniteOutput indicates an evaluation produced NaN or ±Inf,
	// which JSON cannot carry.
	ErrNonFiniteOutput = errors.New("output is not a finite number")

	// ErrNilStore indicates the service was created without a store.
	ErrNilStore = errors.New("store is required")
)
