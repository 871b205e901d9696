package ddbtest

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// TablePrefix marks every table the lifecycle helpers create. The prefix
// contains a capital letter on purpose, to validate case-sensitive handling
// of table names in the system under test.
const TablePrefix = "ddbtest_Test_"

var nameClock struct {
	sync.Mutex
	lastMS int64
}

// UniqueTableName returns a fresh test-table name built from the current
// millisecond clock. Names are strictly increasing within the process even
// when called faster than the clock ticks; they are not unique across
// processes racing on the same clock.
func UniqueTableName() string {
	nameClock.Lock()
	defer nameClock.Unlock()

	ms := time.Now().UnixMilli()
	if ms <= nameClock.lastMS {
		ms = nameClock.lastMS + 1
	}

	nameClock.lastMS = ms

	return TablePrefix + strconv.FormatInt(ms, 10)
}

// IsTestTable reports whether name carries TablePrefix.
func IsTestTable(name string) bool {
	return strings.HasPrefix(name, TablePrefix)
}
