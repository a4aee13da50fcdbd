// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetcodeValidator(t *testing.T) {
	tests := []struct {
		name  string
		v     RetcodeValidator
		code  int
		valid bool
	}{
		{name: "zero value accepts zero", v: RetcodeValidator{}, code: 0, valid: true},
		{name: "zero value rejects nonzero", v: RetcodeValidator{}, code: 1, valid: false},
		{name: "empty retcodes accepts zero", v: Retcodes(), code: 0, valid: true},
		{name: "set accepts member", v: Retcodes(0, 2), code: 2, valid: true},
		{name: "set rejects non-member", v: Retcodes(0, 2), code: 1, valid: false},
		{name: "negated set rejects member", v: NotRetcodes(1), code: 1, valid: false},
		{name: "negated set accepts non-member", v: NotRetcodes(1), code: 0, valid: true},
		{name: "negated empty set rejects zero", v: NotRetcodes(), code: 0, valid: false},
		{name: "any accepts anything", v: AnyRetcode(), code: 137, valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.v.Valid(tt.code))
		})
	}
}

func TestRetcodeValidatorString(t *testing.T) {
	assert.Equal(t, "0", RetcodeValidator{}.String())
	assert.Equal(t, "0,2", Retcodes(2, 0).String())
	assert.Equal(t, "not(1)", NotRetcodes(1).String())
	assert.Equal(t, "any", AnyRetcode().String())
}
