package sqlvalidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ForbidsDropDeleteAlterCreate(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"drop table", "DROP TABLE asset;"},
		{"delete", "DELETE FROM asset WHERE id = 1;"},
		{"alter table", "ALTER TABLE asset ADD COLUMN foo INT;"},
		{"create table", "CREATE TABLE foo (id INT);"},
		{"delete with a subquery is still a delete root", "DELETE FROM asset WHERE id IN (SELECT id FROM task_transaction);"},
	}
	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.sql, nil)
			assert.False(t, result.OK)
			assert.NotEmpty(t, result.Reason)
		})
	}
}

func TestValidate_PermitsSelectInsertUpdate(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"select", "SELECT * FROM asset LIMIT 100;"},
		{"insert", "INSERT INTO asset (name) VALUES ('pump');"},
		{"update", "UPDATE asset SET name = 'pump' WHERE id = 1;"},
	}
	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.Validate(tt.sql, nil)
			assert.True(t, result.OK, result.Reason)
		})
	}
}

func TestValidate_RejectsDuplicateCaseInsensitiveAlias(t *testing.T) {
	v := New()
	result := v.Validate(
		"SELECT a.name FROM asset AS A JOIN task_transaction AS a ON a.id = A.id;",
		nil,
	)
	assert.False(t, result.OK)
	assert.Contains(t, result.Reason, "alias")
}

func TestValidate_QualifiedColumnAgainstColumnMap(t *testing.T) {
	v := New()
	columnMap := map[string]map[string]struct{}{
		"asset": {"id": {}, "name": {}},
	}

	t.Run("known qualified column passes", func(t *testing.T) {
		result := v.Validate("SELECT a.name FROM asset AS a LIMIT 100;", columnMap)
		assert.True(t, result.OK, result.Reason)
	})

	t.Run("unknown qualified column fails", func(t *testing.T) {
		result := v.Validate("SELECT a.bogus_column FROM asset AS a LIMIT 100;", columnMap)
		assert.False(t, result.OK)
		assert.Contains(t, result.Reason, "bogus_column")
	})

	t.Run("unqualified column is never checked", func(t *testing.T) {
		result := v.Validate("SELECT bogus_column FROM asset LIMIT 100;", columnMap)
		assert.True(t, result.OK, result.Reason)
	})
}

func TestValidate_AllowList(t *testing.T) {
	v := New().WithAllowedTables([]string{"asset"})

	result := v.Validate("SELECT * FROM asset LIMIT 100;", nil)
	assert.True(t, result.OK, result.Reason)

	result = v.Validate("SELECT * FROM task_transaction LIMIT 100;", nil)
	assert.False(t, result.OK)
	assert.Contains(t, result.Reason, "task_transaction")
}

func TestValidate_ParseError(t *testing.T) {
	v := New()
	result := v.Validate("SELEKT * FRON;;; nonsense", nil)
	require.False(t, result.OK)
	assert.Contains(t, result.Reason, "parse error")
}

func TestValidate_TablesReported(t *testing.T) {
	v := New()
	result := v.Validate("SELECT a.id FROM asset a JOIN task_transaction t ON t.asset_id = a.id LIMIT 100;", nil)
	require.True(t, result.OK, result.Reason)
	assert.ElementsMatch(t, []string{"asset", "task_transaction"}, result.Tables)
}
