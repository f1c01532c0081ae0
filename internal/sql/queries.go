package sql

import "embed"

// Migrations holds the Postgres schema files, applied in filename order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/kv_get.sql
var KVGet string

//go:embed queries/kv_set.sql
var KVSet string

//go:embed queries/kv_delete.sql
var KVDelete string

//go:embed queries/kv_iterate.sql
var KVIterate string

//go:embed queries/kv_clear.sql
var KVClear string
