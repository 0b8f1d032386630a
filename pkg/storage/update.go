package storage

import (
	"strconv"
	"strings"
)

// Changes accumulates the column assignments of an UPDATE
type Changes struct {
	cols []string
	args []interface{}
}

// Set assigns value to column
func (c *Changes) Set(column string, value interface{}) *Changes {
	c.cols = append(c.cols, column)
	c.args = append(c.args, value)
	return c
}

// SetIf assigns value to column only when ok is true
func (c *Changes) SetIf(ok bool, column string, value interface{}) *Changes {
	if !ok {
		return c
	}
	return c.Set(column, value)
}

// Len returns the number of assignments
func (c *Changes) Len() int {
	return len(c.cols)
}

// SQL renders " SET a = $1, b = $2" and its arguments. Follow it with
// Scope.SQLFrom(len(args)+1).
func (c *Changes) SQL() (string, []interface{}) {
	parts := make([]string, len(c.cols))
	for i, col := range c.cols {
		parts[i] = col + " = $" + strconv.Itoa(i+1)
	}
	return " SET " + strings.Join(parts, ", "), c.args
}
