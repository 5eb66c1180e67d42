// 版权所有 2024 MeshFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 负责打开元数据库连接并管理 GORM 连接池。

# 概述

Open 根据 config.DatabaseConfig 选择方言（PostgreSQL 或纯 Go 的 SQLite），
并把 GORM 的慢查询与错误日志转发到 zap。PoolManager 封装底层
sql.DB 的连接池参数，可选地启动后台健康检查，把连接数上报到
metrics.Collector。

# 核心类型

  - PoolManager：持有 GORM DB 与底层 sql.DB，提供 DB()、Ping()、
    Stats()、GetStats()、Close()。
  - PoolConfig：最大空闲连接数、最大打开连接数、生命周期、空闲超时
    与健康检查间隔。
  - PoolStats：友好格式的连接池统计信息。

SQLite 只允许一个写连接，PoolConfigFrom 会把连接数压到 1。
*/
package database
