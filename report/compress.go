// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package report formats the leakage engines' results as text/CSV
// tables and a call-tree dump, and implements the shared
// integer-sequence compression formatter used by the control-flow
// leakage output. The field-by-field, buffered-writer printing style
// uses direct fmt.Fprintf calls against a writer rather than a
// templating library.
package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aclements/leakanalyze/tcset"
)

// CompressIDs formats an ascending sequence of testcase ids: each
// maximal run of 3 or more consecutive integers becomes "a-b"; shorter
// runs are space-separated integers.
func CompressIDs(ids []tcset.ID) string {
	var out []string
	i := 0
	for i < len(ids) {
		j := i + 1
		for j < len(ids) && ids[j] == ids[j-1]+1 {
			j++
		}
		runLen := j - i
		if runLen >= 3 {
			out = append(out, fmt.Sprintf("%d-%d", ids[i], ids[j-1]))
		} else {
			for k := i; k < j; k++ {
				out = append(out, strconv.FormatUint(uint64(ids[k]), 10))
			}
		}
		i = j
	}
	return strings.Join(out, " ")
}
