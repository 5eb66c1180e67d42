// 版权所有 2024 MeshFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 fashion_items 元数据表的 Schema 版本，支持
PostgreSQL 与 SQLite，基于 golang-migrate 实现。

# 概述

各方言的 SQL 迁移文件通过 embed.FS 内嵌，版本号在两种方言间保持一致。
000001 创建规范 schema，000002 增加 folder_id / source_file 两个来源列
以及 category 索引。

# 核心类型

  - Migrator：Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info/Close。
  - DefaultMigrator：基于 golang-migrate 的实现。
  - CLI：终端输出层，状态以表格显示。

# 工厂函数

NewMigratorFromConfig / NewMigratorFromDatabaseConfig / NewMigratorFromURL
从不同配置源创建迁移器。
*/
package migration
