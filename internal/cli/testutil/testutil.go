// Package testutil holds project fixtures for command tests.
package testutil

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ShopFiles is a small project: a seed, an ephemeral staging model, a
// table with a generic test, a view and a singular warn test. The target is
// a DuckDB file inside the project.
var ShopFiles = map[string]string{
	"leapgraph.yaml": `
name: shop
models:
  shop:
    +materialized: table
    staging:
      +materialized: ephemeral
target:
  type: duckdb
  database: warehouse.duckdb
  threads: 1
`,
	"seeds/raw_customers.csv": "id,name,tier\n1,Alice,gold\n2,Bob,silver\n3,Carol,gold\n",
	"models/staging/stg_customers.sql": `select id as customer_id, name as customer_name, tier
from {{ ref("raw_customers") }}`,
	"models/customers.sql": `/*---
tags: [core]
tests:
  - unique: [customer_id]
---*/
select * from {{ ref("stg_customers") }}`,
	"models/gold_customers.sql": `/*---
materialized: view
---*/
select * from {{ ref("customers") }} where tier = 'gold'`,
	"tests/assert_two_gold.sql": `/*---
severity: warn
---*/
select count(*) as n from {{ ref("gold_customers") }} having count(*) <> 2`,
}

// WriteProject writes files, keyed by slash path, into a temporary
// directory and returns it.
func WriteProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	return dir
}

// ShopProject writes ShopFiles.
func ShopProject(t *testing.T) string {
	t.Helper()
	return WriteProject(t, ShopFiles)
}

var ansi = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI fails when s carries terminal escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	assert.False(t, ansi.MatchString(s), "unexpected ANSI escapes in %q", s)
}
