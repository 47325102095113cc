// Package migrations embeds the MySQL schema applied by storage/mysql on
// startup and by the `ivad migrate` command.
package migrations

import "embed"

// Files 保存按版本号排序的 SQL 迁移脚本。
//
//go:embed *.sql
var Files embed.FS
