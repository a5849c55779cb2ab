package postgres

import "strings"

// Poolers running in transaction mode drop cached extended-protocol
// statements between turns. These classify the two failure shapes that drop
// produces, so single-statement writes can retry once on a fresh statement.

func isBindParameterMismatch(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "bind message supplies") && strings.Contains(msg, "parameters")
}

func isUnnamedPreparedStatementMissing(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unnamed prepared statement does not exist") || strings.Contains(msg, "26000")
}
