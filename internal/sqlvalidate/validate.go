// Package sqlvalidate parses a SQL statement under the target dialect
// grammar and statically rejects anything unsafe to run unattended: DDL and
// DELETE anywhere in the tree (including subqueries), ambiguous duplicate
// table aliases, qualified column references outside a known column map,
// and (optionally) references to tables outside an explicit allow-list.
package sqlvalidate

import (
	"fmt"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"
)

// Result is the outcome of validating a statement.
type Result struct {
	// OK reports whether every rule passed.
	OK bool

	// Reason is a human-readable description of the first rule violated.
	// Empty when OK is true.
	Reason string

	// Tables is every table referenced anywhere in the statement, as
	// written (not lowercased), deduplicated.
	Tables []string
}

// Validator checks SQL statements against a fixed set of safety rules. A
// Validator with a nil or empty AllowedTables skips the allow-list rule.
type Validator struct {
	AllowedTables map[string]struct{}
}

// New returns a Validator with no table allow-list configured.
func New() *Validator {
	return &Validator{}
}

// WithAllowedTables returns a copy of v restricted to only the given
// tables.
func (v *Validator) WithAllowedTables(tables []string) *Validator {
	allowed := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		allowed[strings.ToLower(t)] = struct{}{}
	}
	return &Validator{AllowedTables: allowed}
}

// Validate parses sql and checks it against every rule. columnMap, when
// non-nil, is consulted for qualified column reference checks; its keys are
// table names and its values are that table's known columns.
func (v *Validator) Validate(sql string, columnMap map[string]map[string]struct{}) Result {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return Result{OK: false, Reason: fmt.Sprintf("parse error: %v", err)}
	}

	if reason := forbiddenStatementKind(stmt); reason != "" {
		return Result{OK: false, Reason: reason}
	}

	aliasToTable, tables, dupReason, err := collectTables(stmt)
	if err != nil {
		return Result{OK: false, Reason: fmt.Sprintf("walking statement: %v", err)}
	}
	if dupReason != "" {
		return Result{OK: false, Reason: dupReason, Tables: tables}
	}

	if columnMap != nil {
		if reason := checkQualifiedColumns(stmt, aliasToTable, columnMap); reason != "" {
			return Result{OK: false, Reason: reason, Tables: tables}
		}
	}

	if len(v.AllowedTables) > 0 {
		for _, t := range tables {
			if _, ok := v.AllowedTables[strings.ToLower(t)]; !ok {
				return Result{OK: false, Reason: fmt.Sprintf("table %q is not in the allowed list", t), Tables: tables}
			}
		}
	}

	return Result{OK: true, Tables: tables}
}

// forbiddenStatementKind walks the entire tree (so subqueries are covered)
// looking for a DROP, DELETE, ALTER, or CREATE node. INSERT, UPDATE, and
// SELECT are permitted; everything else is refused.
func forbiddenStatementKind(root sqlparser.Statement) string {
	var reason string
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch node.(type) {
		case *sqlparser.Delete:
			reason = "DELETE is forbidden"
			return false, nil
		case *sqlparser.DropTable, *sqlparser.DropView:
			reason = "DROP is forbidden"
			return false, nil
		case *sqlparser.AlterTable, *sqlparser.AlterView:
			reason = "ALTER is forbidden"
			return false, nil
		case *sqlparser.CreateTable, *sqlparser.CreateView:
			reason = "CREATE is forbidden"
			return false, nil
		}
		return true, nil
	}, root)

	switch root.(type) {
	case *sqlparser.Select, *sqlparser.Insert, *sqlparser.Update:
		// permitted root kinds
	default:
		if reason == "" {
			reason = "unsupported statement kind"
		}
	}
	return reason
}

// collectTables walks the statement for every AliasedTableExpr, returning
// the alias (or bare table name when unaliased) -> table name map, the
// deduplicated list of referenced table names, and a non-empty reason if
// two distinct tables share a case-insensitive alias.
func collectTables(root sqlparser.Statement) (aliasToTable map[string]string, tables []string, dupReason string, err error) {
	aliasToTable = make(map[string]string)
	seenTables := make(map[string]struct{})

	walkErr := sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		ate, ok := node.(*sqlparser.AliasedTableExpr)
		if !ok {
			return true, nil
		}
		tableName, ok := ate.Expr.(sqlparser.TableName)
		if !ok {
			return true, nil
		}
		name := tableName.Name.String()
		if name == "" {
			return true, nil
		}

		alias := ate.As.String()
		if alias == "" {
			alias = name
		}
		key := strings.ToLower(alias)

		if existing, ok := aliasToTable[key]; ok && !strings.EqualFold(existing, name) && dupReason == "" {
			dupReason = fmt.Sprintf("alias %q is used for both %q and %q", alias, existing, name)
		}
		aliasToTable[key] = name

		if _, ok := seenTables[name]; !ok {
			seenTables[name] = struct{}{}
			tables = append(tables, name)
		}
		return true, nil
	}, root)
	return aliasToTable, tables, dupReason, walkErr
}

// checkQualifiedColumns walks the statement for every qualified column
// reference alias.col, resolves alias to a table via aliasToTable, and
// checks col against columnMap[table]. Unqualified columns are never
// checked, to avoid false positives on projection labels and computed
// expressions. A table not present in columnMap is treated as unknown and
// skipped, since the map may only cover tables the caller cared to
// introspect.
func checkQualifiedColumns(root sqlparser.Statement, aliasToTable map[string]string, columnMap map[string]map[string]struct{}) string {
	var reason string
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if reason != "" {
			return false, nil
		}
		col, ok := node.(*sqlparser.ColName)
		if !ok {
			return true, nil
		}
		qualifier := col.Qualifier.Name.String()
		if qualifier == "" {
			return true, nil
		}

		table, ok := aliasToTable[strings.ToLower(qualifier)]
		if !ok {
			return true, nil
		}
		cols, ok := columnMap[table]
		if !ok {
			return true, nil
		}

		colName := col.Name.String()
		if _, ok := cols[colName]; !ok {
			reason = fmt.Sprintf("column %q is not known on table %q", colName, table)
			return false, nil
		}
		return true, nil
	}, root)
	return reason
}
