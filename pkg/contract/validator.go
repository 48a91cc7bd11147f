package contract

import "fmt"

// 校验库函数（纯函数，无 I/O）：
// - ValidateRanges: 区间须按 Start 升序、首尾相接，恰好覆盖 [0,total)
// - ValidateSizes:  单 bundle 结果的求和不变量
func ValidateRanges(ranges []SizeRange, total int64) error {
	if total < 0 {
		return fmt.Errorf("negative total %d: %w", total, ErrInvariantViolation)
	}
	var expect int64
	for i, r := range ranges {
		if r.Start != expect {
			return fmt.Errorf("range %d starts at %d, want %d: %w", i, r.Start, expect, ErrInvariantViolation)
		}
		if r.End <= r.Start {
			return fmt.Errorf("range %d empty or reversed [%d,%d): %w", i, r.Start, r.End, ErrInvariantViolation)
		}
		expect = r.End
	}
	if expect != total {
		return fmt.Errorf("ranges cover %d of %d bytes: %w", expect, total, ErrInvariantViolation)
	}
	return nil
}

func ValidateSizes(s BundleSizes) error {
	var sum int64
	for k, v := range s.Files {
		if v < 0 {
			return fmt.Errorf("%s: negative size for %q: %w", s.Label, k, ErrInvariantViolation)
		}
		sum += v
	}
	if sum != s.TotalBytes {
		return fmt.Errorf("%s: sizes sum to %d, total %d: %w", s.Label, sum, s.TotalBytes, ErrInvariantViolation)
	}
	if s.Files[UnmappedKey] != s.UnmappedBytes {
		return fmt.Errorf("%s: unmapped bucket %d != %d: %w", s.Label, s.Files[UnmappedKey], s.UnmappedBytes, ErrInvariantViolation)
	}
	return nil
}
