// Copyright (c) MeshFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 MeshFlow 命令行入口。

# 概述

cmd/meshflow 基于 cobra + fang 构建，提供摄取批处理、检索 API、
数据库迁移与版本查询四个子命令。配置按 默认值 → YAML → 环境变量
的顺序加载，启动前读取可选的 .env 文件。

# 子命令

  - run: 执行一次摄取：扫描 → OBJ 转 GLB → 分析 → 写入两个存储，
    结束后打印汇总表，可选导出 Parquet 报告与 Prometheus textfile
  - serve: 启动检索 API，/metrics 可独立端口或挂在主端口
  - migrate: up / down / steps / goto / force / reset / status / version / info
  - version: 打印构建信息

# 中间件链

RequestID → Recovery → SecurityHeaders → RequestLogger → MetricsMiddleware →
OTelTracing → CORS → RateLimiter（按客户端 IP 的令牌桶，超限返回 429）

# 构建注入

Version、BuildTime、GitCommit 通过 ldflags 设置。
*/
package main
