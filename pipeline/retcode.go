// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// RetcodeValidator decides whether an exit code counts as success. The zero
// value accepts exactly 0. For a multi-stage pipeline only the terminal
// stage's code is validated; earlier codes are recorded but not judged.
type RetcodeValidator struct {
	codes  map[int]struct{}
	negate bool
	any    bool
}

// Retcodes returns a validator accepting exactly the given codes. With no
// arguments it accepts only 0.
func Retcodes(codes ...int) RetcodeValidator {
	return RetcodeValidator{codes: codeSet(codes)}
}

// NotRetcodes returns a validator accepting anything but the given codes.
func NotRetcodes(codes ...int) RetcodeValidator {
	return RetcodeValidator{codes: codeSet(codes), negate: true}
}

// AnyRetcode returns a validator that accepts every exit code.
func AnyRetcode() RetcodeValidator {
	return RetcodeValidator{any: true}
}

func codeSet(codes []int) map[int]struct{} {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}

	return set
}

// Valid reports whether code satisfies the policy.
func (v RetcodeValidator) Valid(code int) bool {
	if v.any {
		return true
	}

	if len(v.codes) == 0 {
		return code == 0 != v.negate
	}

	_, ok := v.codes[code]

	return ok != v.negate
}

// String implements fmt.Stringer.
func (v RetcodeValidator) String() string {
	if v.any {
		return "any"
	}

	codes := make([]int, 0, len(v.codes))
	for c := range v.codes {
		codes = append(codes, c)
	}

	sort.Ints(codes)

	if len(codes) == 0 {
		codes = []int{0}
	}

	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = fmt.Sprintf("%d", c)
	}

	joined := strings.Join(parts, ",")
	if v.negate {
		return "not(" + joined + ")"
	}

	return joined
}
